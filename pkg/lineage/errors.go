package lineage

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownMother is returned when a division names a cell that is not a live leaf.
	ErrUnknownMother = errors.New("lineage: mother is not a live leaf")
	// ErrInvalidTimeOrdering is returned for a division before the mother's birth,
	// or a layout end time before some birth time.
	ErrInvalidTimeOrdering = errors.New("lineage: invalid time ordering")
	// ErrDuplicateCellID is returned when a daughter id is already used in the lineage.
	ErrDuplicateCellID = errors.New("lineage: duplicate cell id")
	// ErrMalformedTree is returned when decoded or validated structure breaks a tree invariant.
	ErrMalformedTree = errors.New("lineage: malformed tree")
)

// DivisionError describes a rejected division. The tree is unchanged when it is returned.
type DivisionError struct {
	Mother CellID
	Cell   CellID // offending id, set for duplicates
	Time   float64
	Err    error
}

func (e *DivisionError) Error() string {
	switch {
	case errors.Is(e.Err, ErrDuplicateCellID):
		return fmt.Sprintf("divide %s at %g: daughter %s: %v", e.Mother, e.Time, e.Cell, e.Err)
	default:
		return fmt.Sprintf("divide %s at %g: %v", e.Mother, e.Time, e.Err)
	}
}

func (e *DivisionError) Unwrap() error { return e.Err }

// LayoutError describes a layout request that could not be satisfied.
type LayoutError struct {
	Cell CellID
	TEnd float64
	Err  error
}

func (e *LayoutError) Error() string {
	if e.Cell == "" {
		return fmt.Sprintf("layout to %g: %v", e.TEnd, e.Err)
	}
	return fmt.Sprintf("layout to %g: cell %s: %v", e.TEnd, e.Cell, e.Err)
}

func (e *LayoutError) Unwrap() error { return e.Err }
