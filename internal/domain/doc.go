// Package domain defines the core domain types shared across the client.
//
// This package contains concept-oriented files (connection.go, envelope.go,
// analysis.go) with shared types and message contracts. No implementation
// code lives here; keeping contracts on the consumer side prevents circular
// imports.
package domain
