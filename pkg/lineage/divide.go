package lineage

// Divide replaces the live leaf mother with an internal node that keeps the
// mother's birth time, divides at tDiv, and owns two new leaves born at tDiv.
//
// The call is rejected, leaving the tree unchanged, when mother is not a live
// leaf (ErrUnknownMother), tDiv is not finite or precedes the mother's birth
// (ErrInvalidTimeOrdering), or a daughter id is already in use (ErrDuplicateCellID).
func (t *Tree) Divide(mother CellID, daughters [2]CellID, tDiv float64) error {
	if t == nil || t.root == nil {
		return &DivisionError{Mother: mother, Time: tDiv, Err: ErrUnknownMother}
	}
	slot := findLeaf(&t.root, mother)
	if slot == nil {
		return &DivisionError{Mother: mother, Time: tDiv, Err: ErrUnknownMother}
	}
	leaf := (*slot).(*Leaf)
	if !finite(tDiv) || tDiv < leaf.Birth {
		return &DivisionError{Mother: mother, Time: tDiv, Err: ErrInvalidTimeOrdering}
	}
	if daughters[0] == daughters[1] {
		return &DivisionError{Mother: mother, Cell: daughters[1], Time: tDiv, Err: ErrDuplicateCellID}
	}
	for _, d := range daughters {
		if t.Contains(d) {
			return &DivisionError{Mother: mother, Cell: d, Time: tDiv, Err: ErrDuplicateCellID}
		}
	}

	*slot = &Internal{
		CellID:   leaf.CellID,
		Birth:    leaf.Birth,
		Division: tDiv,
		Left:     &Leaf{CellID: daughters[0], Birth: tDiv},
		Right:    &Leaf{CellID: daughters[1], Birth: tDiv},
	}
	t.cellCount += 2
	return nil
}

// findLeaf returns the owning slot of the leaf labelled id, or nil.
func findLeaf(slot *Node, id CellID) *Node {
	switch n := (*slot).(type) {
	case *Leaf:
		if n.CellID == id {
			return slot
		}
	case *Internal:
		if s := findLeaf(&n.Left, id); s != nil {
			return s
		}
		return findLeaf(&n.Right, id)
	}
	return nil
}
