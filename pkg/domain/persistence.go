package domain

import (
	"context"
	"lineagecore/pkg/lineage"
)

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateLineage(Lineage) (Lineage, error)
	DivideCell(lineageID string, event DivisionEvent) (Lineage, error)
	DeleteLineage(id string) error
	FindLineage(id string) (Lineage, bool)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	RuleView
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetLineage(id string) (Lineage, bool)
	ListLineages() []Lineage
	LocateCell(id lineage.CellID) (Lineage, bool)
}
