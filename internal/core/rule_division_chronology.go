package core

import (
	"context"
	"fmt"
	"lineagecore/pkg/domain"
)

// NewDivisionChronologyRule returns a warning rule flagging divisions reported
// earlier than the latest division already recorded in the same lineage.
// Out-of-order events are legal for the tree but usually point at a simulator
// emitting events from stale state.
func NewDivisionChronologyRule() domain.Rule {
	return divisionChronologyRule{}
}

type divisionChronologyRule struct{}

func (divisionChronologyRule) Name() string { return "division_chronology" }

func (r divisionChronologyRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Action != domain.ActionDivide || change.Division == nil {
			continue
		}
		before, ok := change.Before.(domain.Lineage)
		if !ok || before.Tree == nil {
			continue
		}
		last, found := before.Tree.LastDivision()
		if !found || change.Division.Time >= last {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityWarn,
			Message: fmt.Sprintf("division of %s at t=%g precedes the latest recorded division at t=%g",
				change.Division.Mother, change.Division.Time, last),
			Entity:   domain.EntityLineage,
			EntityID: before.ID,
		})
	}
	return res, nil
}
