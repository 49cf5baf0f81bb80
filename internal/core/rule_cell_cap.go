package core

import (
	"context"
	"fmt"
	"lineagecore/pkg/domain"
)

// NewCellCapRule returns a blocking rule rejecting writes that leave a lineage
// with more than limit nodes. A non-positive limit disables the rule.
func NewCellCapRule(limit int) domain.Rule {
	return cellCapRule{limit: limit}
}

type cellCapRule struct {
	limit int
}

func (cellCapRule) Name() string { return "cell_cap" }

func (r cellCapRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	if r.limit <= 0 {
		return res, nil
	}
	for _, change := range changes {
		after, ok := change.After.(domain.Lineage)
		if !ok || after.Tree == nil {
			continue
		}
		if count := after.Tree.CellCount(); count > r.limit {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("lineage %s over cell cap: %d/%d cells", after.ID, count, r.limit),
				Entity:   domain.EntityLineage,
				EntityID: after.ID,
			})
		}
	}
	return res, nil
}
