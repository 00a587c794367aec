// Package transaction composes ordered delete/insert/attribute steps
// into a single atomic change against an immutable document tree. A
// transaction is applied only if it actually alters the tree; on any
// step failure the base tree is returned untouched.
package transaction

import (
	"fmt"

	"github.com/bagofwords1/bagofwords-sub004/internal/doctree"
)

// Step is one primitive tree operation.
type Step interface {
	apply(root *doctree.Node) (*doctree.Node, error)
}

type deleteStep struct {
	from, to int
}

type insertStep struct {
	pos  int
	node *doctree.Node
}

type setAttrsStep struct {
	pos   int
	attrs map[string]any
}

// Tx accumulates steps against a base tree.
type Tx struct {
	base  *doctree.Node
	steps []Step
}

// New starts a transaction against the given tree.
func New(base *doctree.Node) *Tx {
	return &Tx{base: base}
}

// Delete removes the span [from, to).
func (t *Tx) Delete(from, to int) *Tx {
	t.steps = append(t.steps, deleteStep{from: from, to: to})
	return t
}

// Insert adds node as a whole child at pos.
func (t *Tx) Insert(pos int, node *doctree.Node) *Tx {
	t.steps = append(t.steps, insertStep{pos: pos, node: node})
	return t
}

// SetAttrs replaces the attribute map of the node starting at pos.
func (t *Tx) SetAttrs(pos int, attrs map[string]any) *Tx {
	t.steps = append(t.steps, setAttrsStep{pos: pos, attrs: attrs})
	return t
}

// StepCount returns the number of accumulated steps.
func (t *Tx) StepCount() int {
	return len(t.steps)
}

// Apply runs the steps in order against progressively updated trees.
// changed is true only if the final tree differs structurally from the
// base; callers must not commit, re-render or persist an unchanged
// transaction. On error the base tree is returned and no step has any
// observable effect.
func (t *Tx) Apply() (tree *doctree.Node, changed bool, err error) {
	cur := t.base
	for _, step := range t.steps {
		cur, err = step.apply(cur)
		if err != nil {
			return t.base, false, err
		}
	}
	return cur, !doctree.Eq(cur, t.base), nil
}

// MoveAdjust implements the single adjustment of the move-by-delete-
// then-insert ordering rule: when the target position lies after the
// deleted span in pre-delete addressing, the span's size is subtracted
// exactly once.
func MoveAdjust(targetPos, sourcePos, size int) int {
	if targetPos > sourcePos {
		return targetPos - size
	}
	return targetPos
}

func (s deleteStep) apply(root *doctree.Node) (*doctree.Node, error) {
	return Delete(root, s.from, s.to)
}

func (s insertStep) apply(root *doctree.Node) (*doctree.Node, error) {
	return Insert(root, s.pos, s.node)
}

func (s setAttrsStep) apply(root *doctree.Node) (*doctree.Node, error) {
	return SetAttrs(root, s.pos, s.attrs)
}

// Delete removes [from, to) and returns the new tree. Both endpoints
// must sit between sibling boundaries within the same parent (fully
// enclosing zero or more whole children), or inside the text of the
// same paragraph; anything else would leave the tree unbalanced.
func Delete(root *doctree.Node, from, to int) (*doctree.Node, error) {
	if from > to {
		return nil, fmt.Errorf("%w: delete span [%d, %d)", doctree.ErrInvalidRange, from, to)
	}
	rf, err := doctree.Resolve(root, from)
	if err != nil {
		return nil, err
	}
	rt, err := doctree.Resolve(root, to)
	if err != nil {
		return nil, err
	}
	if !sameParent(rf, rt) {
		return nil, fmt.Errorf("%w: delete span [%d, %d)", doctree.ErrInvalidRange, from, to)
	}

	parent := rf.Parent()
	if rf.InText {
		runes := []rune(parent.Text)
		next := parent.WithText(string(runes[:rf.ParentOffset]) + string(runes[rt.ParentOffset:]))
		return rebuild(rf, next), nil
	}

	children := make([]*doctree.Node, 0, len(parent.Content)-(rt.Index-rf.Index))
	children = append(children, parent.Content[:rf.Index]...)
	children = append(children, parent.Content[rt.Index:]...)
	return rebuild(rf, parent.WithContent(children)), nil
}

// Insert places node as a whole child at pos. pos must fall on a child
// boundary inside a node whose kind accepts the child's kind.
func Insert(root *doctree.Node, pos int, node *doctree.Node) (*doctree.Node, error) {
	r, err := doctree.Resolve(root, pos)
	if err != nil {
		return nil, err
	}
	if r.InText {
		return nil, fmt.Errorf("%w: %d is inside paragraph text", doctree.ErrInvalidPosition, pos)
	}
	parent := r.Parent()
	if !parent.Kind.AllowsChild(node.Kind) {
		return nil, fmt.Errorf("%w: %s does not accept %s", doctree.ErrInvalidPosition, parent.Kind, node.Kind)
	}

	children := make([]*doctree.Node, 0, len(parent.Content)+1)
	children = append(children, parent.Content[:r.Index]...)
	children = append(children, node)
	children = append(children, parent.Content[r.Index:]...)
	return rebuild(r, parent.WithContent(children)), nil
}

// SetAttrs replaces the attribute map of the node starting at pos. It
// never changes the node's size or content.
func SetAttrs(root *doctree.Node, pos int, attrs map[string]any) (*doctree.Node, error) {
	r, err := doctree.Resolve(root, pos)
	if err != nil {
		return nil, err
	}
	if r.InText || r.NodeAfter == nil {
		return nil, fmt.Errorf("%w: no node starts at %d", doctree.ErrInvalidPosition, pos)
	}
	parent := r.Parent()
	children := make([]*doctree.Node, len(parent.Content))
	copy(children, parent.Content)
	children[r.Index] = r.NodeAfter.WithAttrs(attrs)
	return rebuild(r, parent.WithContent(children)), nil
}

// sameParent reports whether two resolved positions sit under the same
// parent occurrence. Subtrees are shared across the tree, so one *Node
// can appear at several positions; the ancestor index paths must match,
// not just the node pointers.
func sameParent(a, b *doctree.Resolved) bool {
	if a.Depth() != b.Depth() {
		return false
	}
	for i := range a.PathIndexes {
		if a.PathIndexes[i] != b.PathIndexes[i] {
			return false
		}
	}
	return true
}

// rebuild replaces the resolved position's parent with next and copies
// the ancestor path up to a new root. Untouched subtrees are shared.
func rebuild(r *doctree.Resolved, next *doctree.Node) *doctree.Node {
	node := next
	for d := r.Depth() - 1; d >= 0; d-- {
		parent := r.Ancestors[d]
		idx := r.PathIndexes[d]
		children := make([]*doctree.Node, len(parent.Content))
		copy(children, parent.Content)
		children[idx] = node
		node = parent.WithContent(children)
	}
	return node
}
