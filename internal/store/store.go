// Package store is the persistence layer: squirrel-built SQL executed
// through a pgx connection pool. One repository file per aggregate.
package store

import (
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// psql builds queries with PostgreSQL dollar placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store bundles all repositories over one pool.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// joinColumns renders a column list for RETURNING clauses.
func joinColumns(columns []string) string {
	return strings.Join(columns, ", ")
}

// Registration is one wallet device's registration for pass updates.
type Registration struct {
	ID              uuid.UUID
	DeviceLibraryID string
	PassTypeID      string
	SerialNumber    string
	PushToken       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PushLogOutcome labels a push delivery attempt in the audit log.
type PushLogOutcome string

const (
	PushOutcomeSent   PushLogOutcome = "sent"
	PushOutcomeFailed PushLogOutcome = "failed"
	PushOutcomePruned PushLogOutcome = "pruned"
)

// PushLogEntry is one row in the push delivery audit log.
type PushLogEntry struct {
	SerialNumber string
	PushToken    string
	Outcome      PushLogOutcome
	Detail       string
}
