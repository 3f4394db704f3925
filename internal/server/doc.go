// Package server implements the core of the RelayChat service: the hub that
// registers WebSocket clients and fans accepted chat messages out to every
// other connection, the bounded persisted history those messages land in,
// and the HTTP surface around them.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, history persistence, routing, and HTTP handlers
// to keep the codebase maintainable and testable as the project grows.
package server
