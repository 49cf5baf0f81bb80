package core

import "lineagecore/pkg/domain"

// DefaultCellCap bounds lineage size in the default rules engine. A sweep run
// to t=100 with a doubling time near 10 stays far below it.
const DefaultCellCap = 1 << 20

// NewRulesEngine constructs an empty engine instance.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewLineageIntegrityRule())
	engine.Register(NewDivisionChronologyRule())
	engine.Register(NewCellCapRule(DefaultCellCap))
	return engine
}
