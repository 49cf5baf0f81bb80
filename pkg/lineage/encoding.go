package lineage

import (
	"encoding/json"
	"fmt"
)

const (
	kindLeaf     = "leaf"
	kindInternal = "internal"
)

type nodeJSON struct {
	Kind     string     `json:"kind"`
	CellID   CellID     `json:"cell_id"`
	Birth    float64    `json:"birth"`
	Division *float64   `json:"division,omitempty"`
	Children []nodeJSON `json:"children,omitempty"`
}

type treeJSON struct {
	CellCount int       `json:"cell_count"`
	Root      *nodeJSON `json:"root"`
}

// MarshalJSON encodes the lineage as nested leaf/internal records.
func (t *Tree) MarshalJSON() ([]byte, error) {
	if t == nil || t.root == nil {
		return json.Marshal(treeJSON{})
	}
	root := encodeNode(t.root)
	return json.Marshal(treeJSON{CellCount: t.cellCount, Root: &root})
}

func encodeNode(n Node) nodeJSON {
	switch n := n.(type) {
	case *Internal:
		div := n.Division
		return nodeJSON{
			Kind:     kindInternal,
			CellID:   n.CellID,
			Birth:    n.Birth,
			Division: &div,
			Children: []nodeJSON{encodeNode(n.Left), encodeNode(n.Right)},
		}
	case *Leaf:
		return nodeJSON{Kind: kindLeaf, CellID: n.CellID, Birth: n.Birth}
	default:
		return nodeJSON{}
	}
}

// UnmarshalJSON decodes a lineage and rejects any payload that breaks a tree invariant.
func (t *Tree) UnmarshalJSON(data []byte) error {
	var raw treeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Root == nil {
		return fmt.Errorf("%w: missing root", ErrMalformedTree)
	}
	root, err := decodeNode(*raw.Root)
	if err != nil {
		return err
	}
	decoded := Tree{root: root, cellCount: raw.CellCount}
	if err := decoded.Validate(); err != nil {
		return err
	}
	*t = decoded
	return nil
}

func decodeNode(raw nodeJSON) (Node, error) {
	switch raw.Kind {
	case kindLeaf:
		if len(raw.Children) != 0 || raw.Division != nil {
			return nil, fmt.Errorf("%w: leaf %s carries division data", ErrMalformedTree, raw.CellID)
		}
		return &Leaf{CellID: raw.CellID, Birth: raw.Birth}, nil
	case kindInternal:
		if len(raw.Children) != 2 || raw.Division == nil {
			return nil, fmt.Errorf("%w: internal %s needs a division time and two daughters", ErrMalformedTree, raw.CellID)
		}
		left, err := decodeNode(raw.Children[0])
		if err != nil {
			return nil, err
		}
		right, err := decodeNode(raw.Children[1])
		if err != nil {
			return nil, err
		}
		return &Internal{CellID: raw.CellID, Birth: raw.Birth, Division: *raw.Division, Left: left, Right: right}, nil
	default:
		return nil, fmt.Errorf("%w: unknown node kind %q", ErrMalformedTree, raw.Kind)
	}
}
