// Package memory provides an in-memory implementation of the lineage
// persistence store used for tests, ephemeral runs, and as the transactional
// core of the durable backends.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"lineagecore/pkg/domain"
	"lineagecore/pkg/lineage"
	"sort"
	"sync"
	"time"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Lineage aliases domain.Lineage for in-memory persistence operations.
	Lineage = domain.Lineage
	// DivisionEvent aliases domain.DivisionEvent.
	DivisionEvent = domain.DivisionEvent
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// Committed lineages are never mutated in place; a transaction clones a
// lineage before dividing it, so copying the map is enough to isolate state.
type memoryState struct {
	lineages map[string]Lineage
	cells    cellIndex
}

// cellIndex maps every cell id to the lineage holding it. Transactions record
// their additions and removals in delta and leave base untouched until commit.
type cellIndex struct {
	base  map[lineage.CellID]string
	delta map[lineage.CellID]string // "" marks a removed cell
}

func (c cellIndex) lookup(id lineage.CellID) (string, bool) {
	if owner, ok := c.delta[id]; ok {
		return owner, owner != ""
	}
	owner, ok := c.base[id]
	return owner, ok
}

func (c *cellIndex) set(id lineage.CellID, owner string) {
	if c.delta == nil {
		c.delta = make(map[lineage.CellID]string)
	}
	c.delta[id] = owner
}

// commit folds delta into base. Callers must hold the store write lock.
func (c cellIndex) commit() cellIndex {
	for id, owner := range c.delta {
		if owner == "" {
			delete(c.base, id)
			continue
		}
		c.base[id] = owner
	}
	return cellIndex{base: c.base}
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Lineages map[string]Lineage `json:"lineages"`
}

func newMemoryState() memoryState {
	return memoryState{
		lineages: make(map[string]Lineage),
		cells:    cellIndex{base: make(map[lineage.CellID]string)},
	}
}

// clone copies the lineage map and starts an empty cell delta over the shared base.
func (s memoryState) clone() memoryState {
	cp := memoryState{lineages: make(map[string]Lineage, len(s.lineages)), cells: cellIndex{base: s.cells.base}}
	for k, v := range s.lineages {
		cp.lineages[k] = v
	}
	return cp
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	snap := Snapshot{Lineages: make(map[string]Lineage, len(state.lineages))}
	for k, v := range state.lineages {
		snap.Lineages[k] = v.Clone()
	}
	return snap
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Lineages {
		if v.Tree == nil {
			continue
		}
		if v.ID == "" {
			v.ID = k
		}
		state.lineages[k] = v.Clone()
		for _, cell := range cellIDs(v.Tree) {
			state.cells.base[cell] = k
		}
	}
	return state
}

// Store provides an in-memory transactional store for lineages.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the time provider, mainly for deterministic tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.nowFn = fn
	s.mu.Unlock()
}

// RunInTransaction applies fn to a private copy of the state, evaluates the
// rules engine over the recorded changes, and commits unless a blocking
// violation or error occurs.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = memoryState{lineages: tx.state.lineages, cells: tx.state.cells.commit()}
	return result, nil
}

// View executes fn against the committed state. Transactions wait until fn returns.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(newTransactionView(&s.state))
}

// GetLineage returns a copy of the lineage with the given id.
func (s *Store) GetLineage(id string) (Lineage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.state.lineages[id]
	if !ok {
		return Lineage{}, false
	}
	return l.Clone(), true
}

// ListLineages returns copies of all lineages ordered by id.
func (s *Store) ListLineages() []Lineage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListLineages()
}

// LocateCell returns the lineage containing the cell id.
func (s *Store) LocateCell(id lineage.CellID) (Lineage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).LocateCell(id)
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) ListLineages() []Lineage {
	out := make([]Lineage, 0, len(v.state.lineages))
	for _, l := range v.state.lineages {
		out = append(out, l.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v transactionView) FindLineage(id string) (Lineage, bool) {
	l, ok := v.state.lineages[id]
	if !ok {
		return Lineage{}, false
	}
	return l.Clone(), true
}

func (v transactionView) LocateCell(id lineage.CellID) (Lineage, bool) {
	owner, ok := v.state.cells.lookup(id)
	if !ok {
		return Lineage{}, false
	}
	return v.FindLineage(owner)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindLineage exposes lineage lookup within the transaction scope.
func (tx *transaction) FindLineage(id string) (Lineage, bool) {
	return newTransactionView(&tx.state).FindLineage(id)
}

// CreateLineage stores a new lineage. Its founder must not already appear in
// another lineage.
func (tx *transaction) CreateLineage(l Lineage) (Lineage, error) {
	if l.Tree == nil {
		return Lineage{}, fmt.Errorf("lineage requires a tree")
	}
	if err := l.Tree.Validate(); err != nil {
		return Lineage{}, err
	}
	if l.ID == "" {
		l.ID = tx.store.newID()
	}
	if _, exists := tx.state.lineages[l.ID]; exists {
		return Lineage{}, fmt.Errorf("lineage %q already exists", l.ID)
	}
	cells := cellIDs(l.Tree)
	for _, cell := range cells {
		if owner, ok := tx.state.cells.lookup(cell); ok {
			return Lineage{}, fmt.Errorf("cell %s already tracked by lineage %q: %w", cell, owner, lineage.ErrDuplicateCellID)
		}
	}
	l.CreatedAt = tx.now
	l.UpdatedAt = tx.now
	stored := l.Clone()
	tx.state.lineages[l.ID] = stored
	for _, cell := range cells {
		tx.state.cells.set(cell, l.ID)
	}
	tx.recordChange(Change{Entity: domain.EntityLineage, Action: domain.ActionCreate, After: stored})
	return l.Clone(), nil
}

// DivideCell applies a division event to the lineage.
func (tx *transaction) DivideCell(lineageID string, event DivisionEvent) (Lineage, error) {
	current, ok := tx.state.lineages[lineageID]
	if !ok {
		return Lineage{}, fmt.Errorf("lineage %q not found", lineageID)
	}
	for _, d := range event.Daughters {
		if owner, ok := tx.state.cells.lookup(d); ok && owner != lineageID {
			return Lineage{}, fmt.Errorf("cell %s already tracked by lineage %q: %w", d, owner, lineage.ErrDuplicateCellID)
		}
	}
	// current stays untouched: it is committed state or an earlier change's After.
	updated := current.Clone()
	if err := updated.Tree.Divide(event.Mother, event.Daughters, event.Time); err != nil {
		return Lineage{}, fmt.Errorf("lineage %q: %w", lineageID, err)
	}
	updated.UpdatedAt = tx.now
	tx.state.lineages[lineageID] = updated
	for _, d := range event.Daughters {
		tx.state.cells.set(d, lineageID)
	}
	ev := event
	tx.recordChange(Change{Entity: domain.EntityLineage, Action: domain.ActionDivide, Before: current, After: updated, Division: &ev})
	return updated.Clone(), nil
}

// DeleteLineage removes a lineage from the transaction state.
func (tx *transaction) DeleteLineage(id string) error {
	current, ok := tx.state.lineages[id]
	if !ok {
		return fmt.Errorf("lineage %q not found", id)
	}
	delete(tx.state.lineages, id)
	for _, cell := range cellIDs(current.Tree) {
		tx.state.cells.set(cell, "")
	}
	tx.recordChange(Change{Entity: domain.EntityLineage, Action: domain.ActionDelete, Before: current})
	return nil
}

func cellIDs(t *lineage.Tree) []lineage.CellID {
	var out []lineage.CellID
	t.Walk(func(n lineage.Node, _ int) bool {
		out = append(out, n.ID())
		return true
	})
	return out
}
