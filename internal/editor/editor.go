// Package editor hosts one block-document editing instance: the current
// tree, its revision counter, the selection, and the interactive
// drag-reorder and resize protocols built on the transaction engine.
//
// An Editor is confined to a single goroutine. All mutation happens in
// response to discrete events; the protocols are explicit states stored
// on the instance, never blocking calls.
package editor

import (
	"errors"
	"fmt"

	"github.com/bagofwords1/bagofwords-sub004/internal/doctree"
	"github.com/bagofwords1/bagofwords-sub004/internal/transaction"
)

var (
	// ErrStaleRevision indicates a position computed against an older
	// tree snapshot. Positions are only meaningful relative to one
	// snapshot; stale ones fail loudly instead of corrupting content.
	ErrStaleRevision = errors.New("position references a stale tree revision")

	// ErrNoDrag indicates a drag protocol call without an active drag.
	ErrNoDrag = errors.New("no drag in progress")

	// ErrNoResize indicates a resize call without an active resize.
	ErrNoResize = errors.New("no resize in progress")

	// ErrBusy indicates an interaction started while another is active.
	ErrBusy = errors.New("another interaction is in progress")
)

// Pos is a document position tagged with the revision of the tree it
// was computed against. Every mutating call bumps the revision, so a
// Pos from before a transaction is rejected with ErrStaleRevision.
type Pos struct {
	Offset int    `json:"offset"`
	Rev    uint64 `json:"rev"`
}

// Selection is either a collapsed cursor or a node selection whose
// Anchor is the selected node's start position. The editor replaces it
// wholesale on every transaction; it is never mutated in place.
type Selection struct {
	Anchor int
	Node   bool
}

// Editor owns one document tree and the interaction state around it.
type Editor struct {
	doc *doctree.Node
	rev uint64
	sel Selection

	views *Registry

	editable   bool
	textSelect bool

	drag     dragState
	lastDrag DragPhase
	resize   resizeState

	// Pointer listeners attached for the duration of an interaction.
	// Terminal transitions must detach them on every exit path.
	onPointerMove func(x, y int)
	onPointerUp   func(x, y int)
}

// New creates an editor seeded with the host-supplied initial tree.
func New(doc *doctree.Node) *Editor {
	return NewAt(doc, 1)
}

// NewAt creates an editor seeded at a specific revision, used when a
// host replaces content wholesale without resetting the revision
// sequence its clients hold.
func NewAt(doc *doctree.Node, rev uint64) *Editor {
	return &Editor{
		doc:        doc,
		rev:        rev,
		views:      DefaultRegistry(),
		editable:   true,
		textSelect: true,
	}
}

// Doc returns the current tree snapshot.
func (e *Editor) Doc() *doctree.Node { return e.doc }

// Rev returns the current tree revision.
func (e *Editor) Rev() uint64 { return e.rev }

// Pos tags an offset with the current revision.
func (e *Editor) Pos(offset int) Pos { return Pos{Offset: offset, Rev: e.rev} }

// Views returns the node view registry.
func (e *Editor) Views() *Registry { return e.views }

// Selection returns the current selection.
func (e *Editor) Selection() Selection { return e.sel }

// Editable reports whether the editor accepts content edits. The
// resize protocol turns this off for the duration of an interaction.
func (e *Editor) Editable() bool { return e.editable }

// TextSelectionEnabled reports whether document-wide text selection is
// allowed (disabled while resizing).
func (e *Editor) TextSelectionEnabled() bool { return e.textSelect }

// SetCursor replaces the selection with a collapsed cursor.
func (e *Editor) SetCursor(p Pos) error {
	if err := e.checkRev(p); err != nil {
		return err
	}
	if _, err := doctree.Resolve(e.doc, p.Offset); err != nil {
		return err
	}
	e.sel = Selection{Anchor: p.Offset}
	return nil
}

// SelectNode replaces the selection with a node selection of the node
// starting at p.
func (e *Editor) SelectNode(p Pos) error {
	if err := e.checkRev(p); err != nil {
		return err
	}
	if _, err := doctree.NodeAt(e.doc, p.Offset); err != nil {
		return err
	}
	e.sel = Selection{Anchor: p.Offset, Node: true}
	return nil
}

// InsertBlock inserts node as a whole child at p.
func (e *Editor) InsertBlock(p Pos, node *doctree.Node) (bool, error) {
	if err := e.checkRev(p); err != nil {
		return false, err
	}
	return e.Apply(transaction.New(e.doc).Insert(p.Offset, node))
}

// DeleteRange removes the span [from, to).
func (e *Editor) DeleteRange(from, to Pos) (bool, error) {
	if err := e.checkRev(from); err != nil {
		return false, err
	}
	if err := e.checkRev(to); err != nil {
		return false, err
	}
	return e.Apply(transaction.New(e.doc).Delete(from.Offset, to.Offset))
}

// Apply runs a transaction built against the current tree and commits
// it only if it changed the tree. The transaction must have been
// created with New(e.Doc()).
func (e *Editor) Apply(tx *transaction.Tx) (bool, error) {
	tree, changed, err := tx.Apply()
	if err != nil {
		return false, err
	}
	if changed {
		e.commit(tree)
	}
	return changed, nil
}

// FindAncestorOfType walks upward from the selection's anchor through
// the ancestor chain and returns the position before the nearest
// enclosing node of the requested type. When no ancestor matches and
// the selection is a node selection of that very type, the selected
// node's own start position is returned. ok is false when there is no
// eligible target; callers must surface that instead of guessing a
// default location.
func (e *Editor) FindAncestorOfType(typeName string) (pos int, ok bool) {
	kind, err := doctree.KindFromString(typeName)
	if err != nil {
		return 0, false
	}
	r, err := doctree.Resolve(e.doc, e.sel.Anchor)
	if err != nil {
		return 0, false
	}
	for d := r.Depth(); d >= 1; d-- {
		if r.Ancestors[d].Kind == kind {
			before, err := r.Before(d)
			if err != nil {
				return 0, false
			}
			return before, true
		}
	}
	if e.sel.Node {
		if n, err := doctree.NodeAt(e.doc, e.sel.Anchor); err == nil && n.Kind == kind {
			return e.sel.Anchor, true
		}
	}
	return 0, false
}

// HandlePointerMove dispatches a pointer-move event to the listener
// attached by the active interaction, if any.
func (e *Editor) HandlePointerMove(x, y int) {
	if e.onPointerMove != nil {
		e.onPointerMove(x, y)
	}
}

// HandlePointerUp dispatches a pointer-up event to the listener
// attached by the active interaction, if any.
func (e *Editor) HandlePointerUp(x, y int) {
	if e.onPointerUp != nil {
		e.onPointerUp(x, y)
	}
}

// ActivePointerListeners counts the attached pointer listeners. Zero
// after every completed interaction.
func (e *Editor) ActivePointerListeners() int {
	n := 0
	if e.onPointerMove != nil {
		n++
	}
	if e.onPointerUp != nil {
		n++
	}
	return n
}

func (e *Editor) attachPointerListeners(move func(x, y int), up func(x, y int)) {
	e.onPointerMove = move
	e.onPointerUp = up
}

func (e *Editor) detachPointerListeners() {
	e.onPointerMove = nil
	e.onPointerUp = nil
}

func (e *Editor) checkRev(p Pos) error {
	if p.Rev != e.rev {
		return fmt.Errorf("%w: got %d, tree is at %d", ErrStaleRevision, p.Rev, e.rev)
	}
	return nil
}

// commit swaps in the new tree, bumps the revision and replaces the
// selection wholesale, clamped to the new content bounds.
func (e *Editor) commit(tree *doctree.Node) {
	e.doc = tree
	e.rev++
	anchor := e.sel.Anchor
	if max := tree.ContentSize(); anchor > max {
		anchor = max
	}
	e.sel = Selection{Anchor: anchor}
}
