// Package storage defines the unified Store interface that abstracts turn
// persistence. Two backends are provided: SQLite (default, zero-config) and
// PostgreSQL (production).
package storage

import (
	"context"

	"github.com/novusai/novus/internal/history"
)

// Driver identifiers returned by Store.Driver().
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Store is the unified persistence interface. Both backends implement it.
type Store interface {
	// Turns returns the durable turn store backing conversation history.
	Turns() history.TurnStore

	// Ping checks the backing connection for readiness probes.
	Ping(ctx context.Context) error

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error

	// Driver returns the backend identifier ("sqlite" or "postgres").
	Driver() string
}
