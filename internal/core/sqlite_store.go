package core

import "lineagecore/internal/infra/persistence/sqlite"

// SQLiteStore persists lineages to an embedded SQLite file.
type SQLiteStore = sqlite.Store

// NewSQLiteStore opens (or creates) the SQLite database at path.
func NewSQLiteStore(path string, engine *RulesEngine) (*SQLiteStore, error) {
	return sqlite.NewStore(path, engine)
}
