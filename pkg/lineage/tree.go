package lineage

import (
	"fmt"
	"math"
)

// Tree is the division history of one founding cell. It exclusively owns its
// nodes. A Tree is not safe for concurrent mutation; Layout and Contains may
// run concurrently with each other while no Divide is in flight.
type Tree struct {
	root      Node
	cellCount int
}

// New returns a lineage holding only the founding cell.
func New(founder CellID, birth float64) *Tree {
	return &Tree{root: &Leaf{CellID: founder, Birth: birth}, cellCount: 1}
}

// Founder returns the id of the founding cell.
func (t *Tree) Founder() CellID {
	if t == nil || t.root == nil {
		return ""
	}
	return t.root.ID()
}

// FounderBirth returns the birth time of the founding cell.
func (t *Tree) FounderBirth() float64 {
	if t == nil || t.root == nil {
		return 0
	}
	return t.root.BirthTime()
}

// CellCount returns the number of cells ever created in the lineage, which is
// the number of leaf plus internal nodes. Use LiveCells for the number of
// undivided cells, which grows by one per division.
func (t *Tree) CellCount() int {
	if t == nil {
		return 0
	}
	return t.cellCount
}

// Divisions returns the number of division events applied.
func (t *Tree) Divisions() int {
	if t == nil || t.cellCount == 0 {
		return 0
	}
	return (t.cellCount - 1) / 2
}

// LiveCells returns the number of undivided cells (leaves).
func (t *Tree) LiveCells() int {
	if t == nil || t.root == nil {
		return 0
	}
	return t.Divisions() + 1
}

// Root returns a deep copy of the root node.
func (t *Tree) Root() Node {
	if t == nil {
		return nil
	}
	return cloneNode(t.root)
}

// Clone returns an independent copy of the lineage.
func (t *Tree) Clone() *Tree {
	if t == nil {
		return nil
	}
	return &Tree{root: cloneNode(t.root), cellCount: t.cellCount}
}

// Walk visits nodes depth-first, mother before daughters, left before right.
// Returning false from fn stops the walk.
func (t *Tree) Walk(fn func(n Node, depth int) bool) {
	if t == nil || t.root == nil {
		return
	}
	walk(t.root, 0, fn)
}

func walk(n Node, depth int, fn func(Node, int) bool) bool {
	if !fn(n, depth) {
		return false
	}
	if in, ok := n.(*Internal); ok {
		if !walk(in.Left, depth+1, fn) {
			return false
		}
		return walk(in.Right, depth+1, fn)
	}
	return true
}

// Leaves returns the live cell ids in left-to-right diagram order.
func (t *Tree) Leaves() []CellID {
	var out []CellID
	t.Walk(func(n Node, _ int) bool {
		if l, ok := n.(*Leaf); ok {
			out = append(out, l.CellID)
		}
		return true
	})
	return out
}

// LastDivision returns the latest division time in the lineage.
func (t *Tree) LastDivision() (float64, bool) {
	last, found := 0.0, false
	t.Walk(func(n Node, _ int) bool {
		if in, ok := n.(*Internal); ok && (!found || in.Division > last) {
			last, found = in.Division, true
		}
		return true
	})
	return last, found
}

// Validate checks every structural invariant of the lineage.
func (t *Tree) Validate() error {
	if t == nil || t.root == nil {
		return fmt.Errorf("%w: empty lineage", ErrMalformedTree)
	}
	seen := make(map[CellID]struct{}, t.cellCount)
	nodes := 0
	var err error
	t.Walk(func(n Node, _ int) bool {
		nodes++
		if _, dup := seen[n.ID()]; dup {
			err = fmt.Errorf("%w: %s", ErrDuplicateCellID, n.ID())
			return false
		}
		seen[n.ID()] = struct{}{}
		if !finite(n.BirthTime()) {
			err = fmt.Errorf("%w: cell %s has no finite birth time", ErrInvalidTimeOrdering, n.ID())
			return false
		}
		in, ok := n.(*Internal)
		if !ok {
			return true
		}
		if in.Left == nil || in.Right == nil {
			err = fmt.Errorf("%w: cell %s is missing a daughter", ErrMalformedTree, in.CellID)
			return false
		}
		if !finite(in.Division) || in.Division < in.Birth {
			err = fmt.Errorf("%w: cell %s divides at %g before birth %g", ErrInvalidTimeOrdering, in.CellID, in.Division, in.Birth)
			return false
		}
		if in.Left.BirthTime() != in.Division || in.Right.BirthTime() != in.Division {
			err = fmt.Errorf("%w: daughters of %s not born at division %g", ErrInvalidTimeOrdering, in.CellID, in.Division)
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	if nodes != t.cellCount {
		return fmt.Errorf("%w: cell count %d, found %d nodes", ErrMalformedTree, t.cellCount, nodes)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
