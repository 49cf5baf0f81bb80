package core

import (
	"context"
	"testing"

	"lineagecore/pkg/domain"
	"lineagecore/pkg/lineage"
)

func TestDefaultRulesEngineRegistersBuiltins(t *testing.T) {
	var names []string
	for _, rule := range NewDefaultRulesEngine().Rules() {
		names = append(names, rule.Name())
	}
	want := []string{"lineage_integrity", "division_chronology", "cell_cap"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
}

func TestLineageIntegrityRule(t *testing.T) {
	ctx := context.Background()
	good := Lineage{Base: Base{ID: "ok"}, Tree: lineage.New("0", 0)}
	cases := []struct {
		name    string
		changes []Change
		want    int
	}{
		{"valid lineage", []Change{{Entity: EntityLineage, Action: ActionCreate, After: good}}, 0},
		{"missing tree", []Change{{Entity: EntityLineage, Action: ActionCreate, After: Lineage{Base: Base{ID: "bad"}}}}, 1},
		{"deletes are skipped", []Change{{Entity: EntityLineage, Action: ActionDelete, Before: good}}, 0},
		{"checked once per lineage", []Change{
			{Entity: EntityLineage, Action: ActionCreate, After: Lineage{Base: Base{ID: "bad"}}},
			{Entity: EntityLineage, Action: ActionDivide, After: Lineage{Base: Base{ID: "bad"}}},
		}, 1},
	}
	rule := NewLineageIntegrityRule()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := rule.Evaluate(ctx, nil, tc.changes)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if len(res.Violations) != tc.want {
				t.Fatalf("expected %d violations, got %+v", tc.want, res.Violations)
			}
			for _, v := range res.Violations {
				if v.Severity != SeverityBlock {
					t.Fatalf("integrity violations must block: %+v", v)
				}
			}
		})
	}
}

func TestDivisionChronologyRule(t *testing.T) {
	ctx := context.Background()
	before := lineage.New("0", 0)
	if err := before.Divide("0", daughters("1", "2"), 5); err != nil {
		t.Fatalf("divide: %v", err)
	}
	prior := Lineage{Base: Base{ID: "lin"}, Tree: before}
	rule := NewDivisionChronologyRule()
	cases := []struct {
		name string
		at   float64
		want int
	}{
		{"later", 6, 0},
		{"simultaneous", 5, 0},
		{"earlier", 4.5, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := DivisionEvent{Mother: "1", Daughters: daughters("3", "4"), Time: tc.at}
			res, err := rule.Evaluate(ctx, nil, []Change{{Entity: EntityLineage, Action: ActionDivide, Before: prior, Division: &ev}})
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if len(res.Violations) != tc.want {
				t.Fatalf("expected %d violations, got %+v", tc.want, res.Violations)
			}
			if tc.want > 0 && (res.Violations[0].Severity != SeverityWarn || res.HasBlocking()) {
				t.Fatalf("chronology must only warn: %+v", res.Violations)
			}
		})
	}

	founderOnly := Lineage{Base: Base{ID: "f"}, Tree: lineage.New("f", 3)}
	ev := DivisionEvent{Mother: "f", Daughters: daughters("a", "b"), Time: 3}
	res, _ := rule.Evaluate(ctx, nil, []Change{{Entity: EntityLineage, Action: ActionDivide, Before: founderOnly, Division: &ev}})
	if len(res.Violations) != 0 {
		t.Fatalf("first division has nothing to precede: %+v", res.Violations)
	}
}

func TestCellCapRule(t *testing.T) {
	ctx := context.Background()
	tree := lineage.New("0", 0)
	if err := tree.Divide("0", daughters("1", "2"), 1); err != nil {
		t.Fatalf("divide: %v", err)
	}
	change := []Change{{Entity: EntityLineage, Action: ActionDivide, After: Lineage{Base: Base{ID: "lin"}, Tree: tree}}}
	for _, tc := range []struct {
		max  int
		want int
	}{{0, 0}, {3, 0}, {2, 1}} {
		res, err := NewCellCapRule(tc.max).Evaluate(ctx, nil, change)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if len(res.Violations) != tc.want {
			t.Fatalf("max %d: expected %d violations, got %+v", tc.max, tc.want, res.Violations)
		}
	}
}

var _ domain.Rule = NewCellCapRule(1)
