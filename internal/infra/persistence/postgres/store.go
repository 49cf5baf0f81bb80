// Package postgres provides a Postgres-backed persistent store that mirrors the
// in-memory semantics and snapshots each lineage to a JSONB row.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"lineagecore/internal/infra/persistence/memory"
	"lineagecore/pkg/domain"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/lineagecore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists state to Postgres while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	db        *sql.DB
	mu        sync.Mutex
	persisted map[string]struct{}
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to defaultDSN).
// It ensures the lineage table exists and hydrates the in-memory store from it.
func NewStore(dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureLineageTable(ctx, db); err != nil {
		return nil, err
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore(engine)
	mem.ImportState(snapshot)
	persisted := make(map[string]struct{}, len(snapshot.Lineages))
	for id := range snapshot.Lineages {
		persisted[id] = struct{}{}
	}
	return &Store{Store: mem, db: db, persisted: persisted}, nil
}

// RunInTransaction applies the provided function within a transaction, then
// snapshots to Postgres. A failed snapshot rolls the in-memory state back.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.ExportState()
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.persist(ctx); err != nil {
		s.ImportState(before)
		return res, err
	}
	return res, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

func ensureLineageTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS lineages (
		id TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure lineages table: %w", err)
	}
	return nil
}

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, payload FROM lineages`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select lineages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snapshot := memory.Snapshot{Lineages: make(map[string]domain.Lineage)}
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan lineage: %w", err)
		}
		if len(payload) == 0 {
			continue
		}
		var l domain.Lineage
		if err := json.Unmarshal(payload, &l); err != nil {
			return memory.Snapshot{}, fmt.Errorf("decode lineage %s: %w", id, err)
		}
		snapshot.Lineages[id] = l
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate lineages: %w", err)
	}
	return snapshot, nil
}

func (s *Store) persist(ctx context.Context) error {
	snapshot := s.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for id := range s.persisted {
		if _, ok := snapshot.Lineages[id]; ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM lineages WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
	}
	for id, l := range snapshot.Lineages {
		data, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("encode %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO lineages(id,payload) VALUES($1,$2) ON CONFLICT(id) DO UPDATE SET payload=EXCLUDED.payload`, id, data); err != nil {
			return fmt.Errorf("upsert %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	s.persisted = make(map[string]struct{}, len(snapshot.Lineages))
	for id := range snapshot.Lineages {
		s.persisted[id] = struct{}{}
	}
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
