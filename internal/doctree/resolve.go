package doctree

import "fmt"

// Resolved describes a position within one tree snapshot. Position 0 is
// immediately inside the document root; every node occupies the
// half-open span [start, start+size). A Resolved value is only
// meaningful for the tree it was computed from.
type Resolved struct {
	// Pos is the resolved position.
	Pos int

	// Ancestors is the chain of enclosing nodes from the root down to
	// the position's immediate parent.
	Ancestors []*Node

	// Starts[d] is the position immediately before Ancestors[d].
	// Starts[0] is 0 by convention; the root has no before-position.
	Starts []int

	// PathIndexes[d] is the child index of Ancestors[d+1] within
	// Ancestors[d]; it has Depth() entries.
	PathIndexes []int

	// Index is the number of parent children before the position.
	Index int

	// ParentOffset is the offset within the parent's content.
	ParentOffset int

	// NodeBefore and NodeAfter are the siblings immediately adjacent to
	// the position. Both are nil inside paragraph text; either may be
	// nil at a content edge.
	NodeBefore *Node
	NodeAfter  *Node

	// InText is true when the position falls inside paragraph text.
	InText bool
}

// Depth is the number of ancestors above the immediate parent; depth 0
// means the position sits directly inside the document root.
func (r *Resolved) Depth() int {
	return len(r.Ancestors) - 1
}

// Parent is the node whose content directly contains the position.
func (r *Resolved) Parent() *Node {
	return r.Ancestors[len(r.Ancestors)-1]
}

// Before returns the position immediately before the ancestor at the
// given depth. Depth 0 (the root) has no such position.
func (r *Resolved) Before(depth int) (int, error) {
	if depth <= 0 || depth > r.Depth() {
		return 0, fmt.Errorf("%w: no position before depth %d", ErrOutOfRange, depth)
	}
	return r.Starts[depth], nil
}

// Resolve maps a position to its location in the tree.
func Resolve(root *Node, pos int) (*Resolved, error) {
	if root == nil || pos < 0 || pos > root.ContentSize() {
		return nil, fmt.Errorf("%w: position %d", ErrOutOfRange, pos)
	}

	r := &Resolved{
		Pos:       pos,
		Ancestors: []*Node{root},
		Starts:    []int{0},
	}
	cur := root
	rel := pos
	contentBase := 0 // absolute position of cur's content start

	for {
		if cur.Kind == KindParagraph {
			r.InText = true
			r.ParentOffset = rel
			return r, nil
		}

		off := 0
		descended := false
		for i, child := range cur.Content {
			size := child.Size()
			if rel == off {
				r.ParentOffset = rel
				r.Index = i
				if i > 0 {
					r.NodeBefore = cur.Content[i-1]
				}
				r.NodeAfter = child
				return r, nil
			}
			if rel < off+size {
				childStart := contentBase + off
				r.Ancestors = append(r.Ancestors, child)
				r.Starts = append(r.Starts, childStart)
				r.PathIndexes = append(r.PathIndexes, i)
				cur = child
				rel -= off + 1
				contentBase = childStart + 1
				descended = true
				break
			}
			off += size
		}
		if descended {
			continue
		}
		if rel != off {
			return nil, fmt.Errorf("%w: position %d", ErrOutOfRange, pos)
		}
		r.ParentOffset = rel
		r.Index = len(cur.Content)
		if len(cur.Content) > 0 {
			r.NodeBefore = cur.Content[len(cur.Content)-1]
		}
		return r, nil
	}
}

// ChildStart returns the start position of the child at the given index
// by summing the sizes of the preceding siblings. parentStart is the
// parent's own start position (-1 for the document root, whose content
// begins at 0). index may equal the child count, addressing the end of
// the content.
func ChildStart(parent *Node, parentStart, index int) (int, error) {
	if index < 0 || index > len(parent.Content) {
		return 0, fmt.Errorf("%w: index %d of %d", ErrIndexOutOfBounds, index, len(parent.Content))
	}
	pos := parentStart + 1
	for _, child := range parent.Content[:index] {
		pos += child.Size()
	}
	return pos, nil
}

// NodeAt returns the node whose span starts exactly at pos.
func NodeAt(root *Node, pos int) (*Node, error) {
	r, err := Resolve(root, pos)
	if err != nil {
		return nil, err
	}
	if r.NodeAfter == nil {
		return nil, fmt.Errorf("%w: no node starts at %d", ErrInvalidPosition, pos)
	}
	return r.NodeAfter, nil
}
