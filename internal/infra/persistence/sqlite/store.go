// Package sqlite persists lineages to an embedded SQLite database. State is
// held by the in-memory store and snapshotted after every committed transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"lineagecore/internal/infra/persistence/memory"
	"lineagecore/pkg/domain"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.PersistentStore = (*Store)(nil)

const defaultPath = "lineagecore.db"

// Store persists each lineage as one JSON row.
type Store struct {
	*memory.Store
	db        *sql.DB
	mu        sync.Mutex
	path      string
	persisted map[string]struct{}
}

// NewStore constructs a snapshotting SQLite-backed persistent store.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS lineages (
		id TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create lineages table: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine), db: db, path: path, persisted: make(map[string]struct{})}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT id, payload FROM lineages`)
	if err != nil {
		return fmt.Errorf("select lineages: %w", err)
	}
	defer func() { _ = rows.Close() }()
	snapshot := memory.Snapshot{Lineages: make(map[string]domain.Lineage)}
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		var l domain.Lineage
		if err := json.Unmarshal(payload, &l); err != nil {
			return fmt.Errorf("decode lineage %s: %w", id, err)
		}
		snapshot.Lineages[id] = l
		s.persisted[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate lineages: %w", err)
	}
	s.ImportState(snapshot)
	return nil
}

func (s *Store) persist(ctx context.Context) (retErr error) {
	snapshot := s.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for id := range s.persisted {
		if _, ok := snapshot.Lineages[id]; ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM lineages WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
	}
	for id, l := range snapshot.Lineages {
		data, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("encode %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO lineages(id,payload) VALUES(?,?) ON CONFLICT(id) DO UPDATE SET payload=excluded.payload`, id, data); err != nil {
			return fmt.Errorf("upsert %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.persisted = make(map[string]struct{}, len(snapshot.Lineages))
	for id := range snapshot.Lineages {
		s.persisted[id] = struct{}{}
	}
	return nil
}

// RunInTransaction applies the provided function within a transaction, then
// snapshots state to SQLite. The in-memory state is restored when the
// snapshot cannot be written.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.ExportState()
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if pErr := s.persist(ctx); pErr != nil {
		s.ImportState(before)
		return res, pErr
	}
	return res, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
