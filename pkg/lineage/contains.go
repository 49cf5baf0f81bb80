package lineage

// Contains reports whether id labels any cell of the lineage, live or divided.
// Each call scans the tree from the root.
func (t *Tree) Contains(id CellID) bool {
	if t == nil || t.root == nil {
		return false
	}
	return contains(t.root, id)
}

func contains(n Node, id CellID) bool {
	switch n := n.(type) {
	case *Leaf:
		return n.CellID == id
	case *Internal:
		return n.CellID == id || contains(n.Left, id) || contains(n.Right, id)
	}
	return false
}

// IsLive reports whether id labels an undivided cell.
func (t *Tree) IsLive(id CellID) bool {
	if t == nil || t.root == nil {
		return false
	}
	root := t.root
	return findLeaf(&root, id) != nil
}
