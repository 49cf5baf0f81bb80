package core

import (
	"context"
	"fmt"
	"lineagecore/pkg/domain"
)

// NewLineageIntegrityRule returns a blocking rule that re-validates every
// lineage written by the transaction.
func NewLineageIntegrityRule() domain.Rule {
	return lineageIntegrityRule{}
}

type lineageIntegrityRule struct{}

func (lineageIntegrityRule) Name() string { return "lineage_integrity" }

func (r lineageIntegrityRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	checked := make(map[string]struct{})
	for _, change := range changes {
		after, ok := change.After.(domain.Lineage)
		if change.Entity != domain.EntityLineage || !ok {
			continue
		}
		if _, done := checked[after.ID]; done {
			continue
		}
		checked[after.ID] = struct{}{}
		if after.Tree == nil {
			res.Violations = append(res.Violations, r.violation(after.ID, "lineage has no tree"))
			continue
		}
		if err := after.Tree.Validate(); err != nil {
			res.Violations = append(res.Violations, r.violation(after.ID, err.Error()))
		}
	}
	return res, nil
}

func (r lineageIntegrityRule) violation(id, msg string) domain.Violation {
	return domain.Violation{
		Rule:     r.Name(),
		Severity: domain.SeverityBlock,
		Message:  fmt.Sprintf("lineage %s is malformed: %s", id, msg),
		Entity:   domain.EntityLineage,
		EntityID: id,
	}
}
