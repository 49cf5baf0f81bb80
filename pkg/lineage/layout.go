package lineage

import "fmt"

// SegmentKind distinguishes lifetime stems from division bars.
type SegmentKind string

const (
	// SegmentVertical is a branch lifetime at one slot from T0 to T1.
	SegmentVertical SegmentKind = "vertical"
	// SegmentHorizontal is a division bar from slot X0 to X1 at time T0.
	SegmentHorizontal SegmentKind = "horizontal"
)

// Segment is one drawable line of a lineage diagram. Slots are horizontal
// positions (leaves get integers, mothers the midpoint of their daughters);
// T values are simulation times. Vertical segments have X0 == X1, horizontal
// ones T0 == T1.
type Segment struct {
	Kind   SegmentKind `json:"kind"`
	X0     float64     `json:"x0"`
	X1     float64     `json:"x1"`
	T0     float64     `json:"t0"`
	T1     float64     `json:"t1"`
	CellID CellID      `json:"cell_id"`
}

func vertical(x, t0, t1 float64, id CellID) Segment {
	return Segment{Kind: SegmentVertical, X0: x, X1: x, T0: t0, T1: t1, CellID: id}
}

func horizontal(x0, x1, t float64, id CellID) Segment {
	return Segment{Kind: SegmentHorizontal, X0: x0, X1: x1, T0: t, T1: t, CellID: id}
}

// Offset returns the segment shifted right by dx slots.
func (s Segment) Offset(dx float64) Segment {
	s.X0 += dx
	s.X1 += dx
	return s
}

// Layout is the drawable geometry of a lineage at a given end time.
type Layout struct {
	// Width is the number of slots used, equal to the number of live cells.
	Width    int       `json:"width"`
	Segments []Segment `json:"segments"`
}

// Layout derives the dendrogram of the lineage with every live cell drawn up
// to tEnd. Leaves take consecutive slots in left-to-right order; each mother
// sits at the midpoint of its daughters. The result depends only on the tree
// and tEnd.
func (t *Tree) Layout(tEnd float64) (Layout, error) {
	if !finite(tEnd) {
		return Layout{}, &LayoutError{TEnd: tEnd, Err: ErrInvalidTimeOrdering}
	}
	if t == nil || t.root == nil {
		return Layout{}, nil
	}
	w := &layoutWalker{tEnd: tEnd, segments: make([]Segment, 0, 2*t.cellCount)}
	if _, err := w.place(t.root); err != nil {
		return Layout{}, err
	}
	return Layout{Width: w.next, Segments: w.segments}, nil
}

type layoutWalker struct {
	tEnd     float64
	next     int
	segments []Segment
}

// place lays out the subtree rooted at n and returns the slot of its stem.
func (w *layoutWalker) place(n Node) (float64, error) {
	switch n := n.(type) {
	case *Leaf:
		if n.Birth > w.tEnd {
			return 0, &LayoutError{Cell: n.CellID, TEnd: w.tEnd, Err: ErrInvalidTimeOrdering}
		}
		x := float64(w.next)
		w.segments = append(w.segments, vertical(x, n.Birth, w.tEnd, n.CellID))
		w.next++
		return x, nil
	case *Internal:
		left, err := w.place(n.Left)
		if err != nil {
			return 0, err
		}
		right, err := w.place(n.Right)
		if err != nil {
			return 0, err
		}
		w.segments = append(w.segments, horizontal(left, right, n.Division, n.CellID))
		mid := (left + right) / 2
		w.segments = append(w.segments, vertical(mid, n.Birth, n.Division, n.CellID))
		return mid, nil
	default:
		return 0, fmt.Errorf("%w: unexpected node %T", ErrMalformedTree, n)
	}
}

// Arrange places layouts side by side, shifting each by the total width of
// the ones before it.
func Arrange(layouts ...Layout) Layout {
	var out Layout
	for _, l := range layouts {
		dx := float64(out.Width)
		for _, s := range l.Segments {
			out.Segments = append(out.Segments, s.Offset(dx))
		}
		out.Width += l.Width
	}
	return out
}
