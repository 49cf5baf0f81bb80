package core

import "lineagecore/internal/infra/persistence/postgres"

// PostgresStore persists lineages to a PostgreSQL JSONB table.
type PostgresStore = postgres.Store

// NewPostgresStore connects using dsn, falling back to the local default.
func NewPostgresStore(dsn string, engine *RulesEngine) (*PostgresStore, error) {
	return postgres.NewStore(dsn, engine)
}
