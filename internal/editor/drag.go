package editor

import (
	"fmt"

	"github.com/bagofwords1/bagofwords-sub004/internal/doctree"
	"github.com/bagofwords1/bagofwords-sub004/internal/transaction"
)

// DragPhase is the drag-reorder state machine's current state:
// idle → dragging → dropped|cancelled → idle.
type DragPhase int

const (
	DragIdle DragPhase = iota
	Dragging
	DragDropped
	DragCancelled
)

func (p DragPhase) String() string {
	switch p {
	case DragIdle:
		return "idle"
	case Dragging:
		return "dragging"
	case DragDropped:
		return "dropped"
	case DragCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

type dragState struct {
	phase        DragPhase
	rev          uint64
	containerPos int
	node         *doctree.Node
	sourcePos    int
	size         int
	sourceIndex  int
	hoverIndex   int
}

// DragPhase returns the protocol's current state.
func (e *Editor) DragPhase() DragPhase { return e.drag.phase }

// DragHoverIndex returns the advisory drop target recorded by DragOver,
// or -1 when none is pending.
func (e *Editor) DragHoverIndex() int {
	if e.drag.phase != Dragging {
		return -1
	}
	return e.drag.hoverIndex
}

// DragStart begins dragging the child at childIndex of the container
// starting at container. The dragged child's node, start position, size
// and index are captured now; all drop arithmetic runs against this
// snapshot.
func (e *Editor) DragStart(container Pos, childIndex int) error {
	if err := e.checkRev(container); err != nil {
		return err
	}
	if e.drag.phase == Dragging || e.resize.active {
		return ErrBusy
	}
	cnode, err := doctree.NodeAt(e.doc, container.Offset)
	if err != nil {
		return err
	}
	if cnode.Kind != doctree.KindContainer {
		return fmt.Errorf("%w: node at %d is %s, not a container", doctree.ErrInvalidPosition, container.Offset, cnode.Kind)
	}
	child, err := cnode.ChildAt(childIndex)
	if err != nil {
		return err
	}
	start, err := doctree.ChildStart(cnode, container.Offset, childIndex)
	if err != nil {
		return err
	}

	e.drag = dragState{
		phase:        Dragging,
		rev:          e.rev,
		containerPos: container.Offset,
		node:         child,
		sourcePos:    start,
		size:         child.Size(),
		sourceIndex:  childIndex,
		hoverIndex:   -1,
	}
	e.attachPointerListeners(
		func(x, y int) {}, // visual feedback only; the host calls DragOver
		func(x, y int) { e.DragEnd() },
	)
	return nil
}

// DragOver records the advisory hover target for visual feedback. It
// never mutates the tree.
func (e *Editor) DragOver(targetIndex int) error {
	if e.drag.phase != Dragging {
		return ErrNoDrag
	}
	e.drag.hoverIndex = targetIndex
	return nil
}

// Drop moves the dragged child to targetIndex within its container.
// Dropping on the source index cancels without building a transaction.
// Any failure aborts the interaction and leaves the tree unchanged.
func (e *Editor) Drop(targetIndex int) (bool, error) {
	if e.drag.phase != Dragging {
		return false, ErrNoDrag
	}
	src := e.drag
	if e.rev != src.rev {
		e.finishDrag(DragCancelled)
		return false, fmt.Errorf("%w: tree changed during drag", ErrStaleRevision)
	}
	if targetIndex == src.sourceIndex {
		e.finishDrag(DragCancelled)
		return false, nil
	}

	cnode, err := doctree.NodeAt(e.doc, src.containerPos)
	if err != nil {
		e.finishDrag(DragCancelled)
		return false, err
	}
	if targetIndex < 0 || targetIndex >= cnode.ChildCount() {
		e.finishDrag(DragCancelled)
		return false, fmt.Errorf("%w: drop target %d of %d", doctree.ErrInvalidRange, targetIndex, cnode.ChildCount())
	}

	// Raw target position in the pre-delete tree: sum sibling sizes up
	// to targetIndex skipping the dragged child, then account for the
	// dragged node still sitting ahead of the target when moving down.
	contentStart := src.containerPos + 1
	targetDocPos := contentStart
	counted := 0
	for i, child := range cnode.Content {
		if counted == targetIndex {
			break
		}
		if i == src.sourceIndex {
			continue
		}
		targetDocPos += child.Size()
		counted++
	}
	if targetIndex > src.sourceIndex {
		targetDocPos += src.size
	}

	finalInsertPos := transaction.MoveAdjust(targetDocPos, src.sourcePos, src.size)
	if postEnd := contentStart + cnode.ContentSize() - src.size; finalInsertPos < contentStart || finalInsertPos > postEnd {
		e.finishDrag(DragCancelled)
		return false, fmt.Errorf("%w: insert position %d outside container content", doctree.ErrInvalidRange, finalInsertPos)
	}

	tree, changed, err := transaction.New(e.doc).
		Delete(src.sourcePos, src.sourcePos+src.size).
		Insert(finalInsertPos, src.node).
		Apply()
	if err != nil {
		e.finishDrag(DragCancelled)
		return false, err
	}
	if changed {
		e.commit(tree)
	}
	e.finishDrag(DragDropped)
	return changed, nil
}

// DragEnd clears any pending drag-over state and returns to idle. It
// runs on every exit path, including pointer-up outside a drop target,
// and is safe to call when no drag is active.
func (e *Editor) DragEnd() {
	if e.drag.phase == Dragging {
		e.finishDrag(DragCancelled)
		return
	}
	e.drag = dragState{phase: DragIdle, hoverIndex: -1}
	// A stray drag-end while a resize is active must not strip the
	// resize's pointer listeners; pointer-up still has to reach
	// ResizeEnd.
	if !e.resize.active {
		e.detachPointerListeners()
	}
}

// DragLeave clears the advisory hover target without ending the drag.
func (e *Editor) DragLeave() {
	if e.drag.phase == Dragging {
		e.drag.hoverIndex = -1
	}
}

// finishDrag records the terminal transition and settles back to idle,
// detaching the pointer listeners on the way out.
func (e *Editor) finishDrag(terminal DragPhase) {
	e.lastDrag = terminal
	e.drag = dragState{phase: DragIdle, hoverIndex: -1}
	e.detachPointerListeners()
}

// LastDragOutcome reports the terminal state of the most recent drag
// interaction (dropped or cancelled), or idle if none completed yet.
func (e *Editor) LastDragOutcome() DragPhase { return e.lastDrag }
