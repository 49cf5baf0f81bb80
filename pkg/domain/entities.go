// Package domain defines the persisted lineage records, division events, and
// rule evaluation primitives used by lineagecore.
package domain

import (
	"lineagecore/pkg/lineage"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityLineage identifies a lineage record.
	EntityLineage EntityType = "lineage"
)

// Severity captures rule outcomes.
type Severity string

// Rule severities.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	// SeverityLog is informational only.
	SeverityLog Severity = "log"
)

// Base carries identity and audit timestamps shared by persisted records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Lineage is the persisted division history of one founding cell.
type Lineage struct {
	Base
	Label string        `json:"label,omitempty"`
	Tree  *lineage.Tree `json:"tree"`
}

// Founder returns the founding cell id.
func (l Lineage) Founder() lineage.CellID { return l.Tree.Founder() }

// Clone returns a deep copy that shares no tree structure with l.
func (l Lineage) Clone() Lineage {
	cp := l
	cp.Tree = l.Tree.Clone()
	return cp
}

// DivisionEvent is one division reported by a simulator.
type DivisionEvent struct {
	Mother    lineage.CellID    `json:"mother"`
	Daughters [2]lineage.CellID `json:"daughters"`
	Time      float64           `json:"time"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity   EntityType
	Action   Action
	Before   any
	After    any
	Division *DivisionEvent
}

// Action indicates the type of modification performed.
type Action string

// Change actions captured in the audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionDivide indicates a division was applied to a lineage.
	ActionDivide Action = "divide"
	// ActionDelete indicates a lineage was removed.
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
