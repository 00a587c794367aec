package editor

import (
	"fmt"

	"github.com/bagofwords1/bagofwords-sub004/internal/doctree"
	"github.com/bagofwords1/bagofwords-sub004/internal/transaction"
)

// Dimension floors enforced by the resize protocol. The model itself
// never clamps; only pointer-driven resizing does.
const (
	MinBlockWidth  = 50
	MinBlockHeight = 30
)

type resizeState struct {
	active   bool
	blockPos int
	startX   int
	startY   int
	startW   int
	startH   int
	attrs    map[string]any

	prevEditable   bool
	prevTextSelect bool
}

// Resizing reports whether a resize interaction is active.
func (e *Editor) Resizing() bool { return e.resize.active }

// ResizeStart begins a pointer-drag resize of the atomic block starting
// at block. It captures the starting pointer coordinates and the
// block's current dimensions, disables document-wide text selection and
// puts the editor into a non-editable mode for the duration. Both are
// restored on every exit path.
func (e *Editor) ResizeStart(block Pos, x, y int) error {
	if err := e.checkRev(block); err != nil {
		return err
	}
	if e.resize.active || e.drag.phase == Dragging {
		return ErrBusy
	}
	node, err := doctree.NodeAt(e.doc, block.Offset)
	if err != nil {
		return err
	}
	if node.Kind != doctree.KindAtomicBlock {
		return fmt.Errorf("%w: node at %d is %s, not an atomic block", doctree.ErrInvalidPosition, block.Offset, node.Kind)
	}

	e.resize = resizeState{
		active:         true,
		blockPos:       block.Offset,
		startX:         x,
		startY:         y,
		startW:         node.IntAttr("width", doctree.DefaultBlockWidth),
		startH:         node.IntAttr("height", doctree.DefaultBlockHeight),
		attrs:          node.Attrs,
		prevEditable:   e.editable,
		prevTextSelect: e.textSelect,
	}
	e.editable = false
	e.textSelect = false
	e.attachPointerListeners(
		func(mx, my int) { _, _ = e.ResizeMove(mx, my) },
		func(mx, my int) { e.ResizeEnd() },
	)
	return nil
}

// ResizeMove applies the pointer delta to the block's dimensions,
// floored at 50×30, through a SetAttrs transaction. The block's span in
// the document is unaffected; only visual attributes change, so the
// captured block position stays valid across moves.
func (e *Editor) ResizeMove(x, y int) (bool, error) {
	if !e.resize.active {
		return false, ErrNoResize
	}
	width := e.resize.startW + (x - e.resize.startX)
	if width < MinBlockWidth {
		width = MinBlockWidth
	}
	height := e.resize.startH + (y - e.resize.startY)
	if height < MinBlockHeight {
		height = MinBlockHeight
	}

	// SetAttrs replaces the whole attribute map, so carry the block's
	// other attributes (kind, payload) along with the new dimensions.
	attrs := make(map[string]any, len(e.resize.attrs)+2)
	for k, v := range e.resize.attrs {
		attrs[k] = v
	}
	attrs["width"] = width
	attrs["height"] = height

	tree, changed, err := transaction.New(e.doc).SetAttrs(e.resize.blockPos, attrs).Apply()
	if err != nil {
		e.ResizeEnd()
		return false, err
	}
	if changed {
		e.commit(tree)
	}
	return changed, nil
}

// ResizeEnd restores text selection and editability, detaches the
// pointer listeners and returns to idle. It is idempotent; abrupt
// pointer-cancel paths may call it more than once.
func (e *Editor) ResizeEnd() {
	if !e.resize.active {
		return
	}
	e.editable = e.resize.prevEditable
	e.textSelect = e.resize.prevTextSelect
	e.resize = resizeState{}
	e.detachPointerListeners()
}
