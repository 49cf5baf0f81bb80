// Package lineage models the clonal division history of a founding cell as a
// binary tree. It answers membership queries and derives dendrogram geometry
// (slot x time line segments) that a separate renderer can draw.
package lineage

// CellID is an opaque, caller-assigned cell identifier.
type CellID string

// Node is one of *Leaf or *Internal.
type Node interface {
	// ID returns the cell id carried by the node (the mother label for internal nodes).
	ID() CellID
	// BirthTime returns the simulation time the cell came into existence.
	BirthTime() float64

	sealed()
}

// Leaf is a cell that has not divided.
type Leaf struct {
	CellID CellID
	Birth  float64
}

// Internal is a cell that lived from Birth to Division and then produced
// exactly two daughters, both born at Division.
type Internal struct {
	CellID   CellID
	Birth    float64
	Division float64
	Left     Node
	Right    Node
}

func (l *Leaf) ID() CellID         { return l.CellID }
func (l *Leaf) BirthTime() float64 { return l.Birth }
func (*Leaf) sealed()              {}

func (n *Internal) ID() CellID         { return n.CellID }
func (n *Internal) BirthTime() float64 { return n.Birth }
func (*Internal) sealed()              {}

func cloneNode(n Node) Node {
	switch n := n.(type) {
	case *Leaf:
		cp := *n
		return &cp
	case *Internal:
		return &Internal{
			CellID:   n.CellID,
			Birth:    n.Birth,
			Division: n.Division,
			Left:     cloneNode(n.Left),
			Right:    cloneNode(n.Right),
		}
	default:
		return nil
	}
}
