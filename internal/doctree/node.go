package doctree

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Kind identifies a node type. The set is closed: rendering and nesting
// rules switch exhaustively over it.
type Kind int

const (
	// KindDocument is the root node.
	KindDocument Kind = iota

	// KindContainer holds an ordered sequence of blocks.
	KindContainer

	// KindParagraph is a leaf text block.
	KindParagraph

	// KindAtomicBlock is an opaque block carrying typed attributes
	// (e.g. a chart placeholder) with no editable child content.
	KindAtomicBlock
)

// Default visual dimensions for atomic blocks.
const (
	DefaultBlockWidth  = 250
	DefaultBlockHeight = 150
)

func (k Kind) String() string {
	switch k {
	case KindDocument:
		return "document"
	case KindContainer:
		return "container"
	case KindParagraph:
		return "paragraph"
	case KindAtomicBlock:
		return "atomicBlock"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// KindFromString maps a type name to its Kind.
func KindFromString(name string) (Kind, error) {
	switch name {
	case "document":
		return KindDocument, nil
	case "container":
		return KindContainer, nil
	case "paragraph":
		return KindParagraph, nil
	case "atomicBlock":
		return KindAtomicBlock, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
}

// AllowsChild reports whether a node of this kind accepts a child of
// kind c. Atomic blocks live on a container canvas, never directly in
// the document root; paragraphs and atomic blocks accept nothing.
func (k Kind) AllowsChild(c Kind) bool {
	switch k {
	case KindDocument:
		return c == KindContainer || c == KindParagraph
	case KindContainer:
		return c == KindContainer || c == KindParagraph || c == KindAtomicBlock
	default:
		return false
	}
}

// Node is a single element of the document tree. Nodes are immutable:
// callers must never modify Attrs, Content or Text after construction,
// and all With* methods return a new node sharing unchanged children.
type Node struct {
	Kind    Kind
	Attrs   map[string]any
	Text    string  // paragraphs only
	Content []*Node // document and container only
}

// NewDocument creates a document root with the given children.
func NewDocument(children ...*Node) *Node {
	return &Node{Kind: KindDocument, Content: children}
}

// NewContainer creates a container holding the given blocks.
func NewContainer(children ...*Node) *Node {
	return &Node{Kind: KindContainer, Content: children}
}

// NewParagraph creates a leaf text block.
func NewParagraph(text string) *Node {
	return &Node{Kind: KindParagraph, Text: text}
}

// NewAtomicBlock creates an atomic block of the given block kind
// (chart, kpi, table, ...) with default dimensions.
func NewAtomicBlock(blockKind string, payload map[string]any) *Node {
	attrs := map[string]any{
		"kind":   blockKind,
		"width":  DefaultBlockWidth,
		"height": DefaultBlockHeight,
	}
	if payload != nil {
		attrs["payload"] = payload
	}
	return &Node{Kind: KindAtomicBlock, Attrs: attrs}
}

// Size is the node's span in the flattened document: 2 boundary tokens
// plus the children's sizes for document/container nodes, 2 plus the
// text length for paragraphs, and 1 for atomic blocks.
func (n *Node) Size() int {
	switch n.Kind {
	case KindDocument, KindContainer:
		return 2 + n.ContentSize()
	case KindParagraph:
		return 2 + utf8.RuneCountInString(n.Text)
	default:
		return 1
	}
}

// ContentSize is the sum of the children's sizes (or the text length
// for paragraphs).
func (n *Node) ContentSize() int {
	if n.Kind == KindParagraph {
		return utf8.RuneCountInString(n.Text)
	}
	total := 0
	for _, c := range n.Content {
		total += c.Size()
	}
	return total
}

// ChildCount returns the number of direct children.
func (n *Node) ChildCount() int {
	return len(n.Content)
}

// ChildAt returns the child at index i.
func (n *Node) ChildAt(i int) (*Node, error) {
	if i < 0 || i >= len(n.Content) {
		return nil, fmt.Errorf("%w: index %d of %d", ErrIndexOutOfBounds, i, len(n.Content))
	}
	return n.Content[i], nil
}

// WithAttrs returns a copy of the node whose attribute map is replaced
// by attrs. Content and text are shared unchanged.
func (n *Node) WithAttrs(attrs map[string]any) *Node {
	out := *n
	out.Attrs = attrs
	return &out
}

// WithContent returns a copy of the node with the given children.
func (n *Node) WithContent(children []*Node) *Node {
	out := *n
	out.Content = children
	return &out
}

// WithText returns a copy of a paragraph with new text.
func (n *Node) WithText(text string) *Node {
	out := *n
	out.Text = text
	return &out
}

// IntAttr reads an integer attribute, tolerating the float64 values
// produced by JSON decoding. Returns fallback when absent.
func (n *Node) IntAttr(name string, fallback int) int {
	if n.Attrs == nil {
		return fallback
	}
	switch v := n.Attrs[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// Eq reports structural equality of two trees.
func Eq(a, b *Node) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.Kind != b.Kind || a.Text != b.Text {
		return false
	}
	if !attrsEq(a.Attrs, b.Attrs) {
		return false
	}
	if len(a.Content) != len(b.Content) {
		return false
	}
	for i := range a.Content {
		if !Eq(a.Content[i], b.Content[i]) {
			return false
		}
	}
	return true
}

func attrsEq(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok {
			return false
		}
		if !valueEq(av, bv) {
			return false
		}
	}
	return true
}

// valueEq compares attribute values, treating numeric types uniformly
// so a tree round-tripped through JSON still compares equal.
func valueEq(a, b any) bool {
	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		return bok && af == bf
	}
	switch av := a.(type) {
	case map[string]any:
		bm, ok := b.(map[string]any)
		return ok && attrsEq(av, bm)
	case []any:
		bs, ok := b.([]any)
		if !ok || len(av) != len(bs) {
			return false
		}
		for i := range av {
			if !valueEq(av[i], bs[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// Clone returns a deep copy of the tree. Mutating code never needs it
// (trees are rebuilt structurally) but callers crossing an ownership
// boundary do.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{Kind: n.Kind, Text: n.Text}
	if n.Attrs != nil {
		out.Attrs = make(map[string]any, len(n.Attrs))
		for k, v := range n.Attrs {
			out.Attrs[k] = v
		}
	}
	if n.Content != nil {
		out.Content = make([]*Node, len(n.Content))
		for i, c := range n.Content {
			out.Content[i] = c.Clone()
		}
	}
	return out
}

// PlainText extracts the concatenated paragraph text of the subtree,
// used by the search indexer.
func (n *Node) PlainText() string {
	var sb strings.Builder
	n.appendText(&sb)
	return strings.TrimSpace(sb.String())
}

func (n *Node) appendText(sb *strings.Builder) {
	if n.Kind == KindParagraph {
		if n.Text != "" {
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(n.Text)
		}
		return
	}
	for _, c := range n.Content {
		c.appendText(sb)
	}
}

type nodeJSON struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Text    string         `json:"text,omitempty"`
	Content []*Node        `json:"content,omitempty"`
}

// MarshalJSON serializes the node as {type, attrs, text, content}.
func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(nodeJSON{
		Type:    n.Kind.String(),
		Attrs:   n.Attrs,
		Text:    n.Text,
		Content: n.Content,
	})
}

// UnmarshalJSON parses the serialized form, rejecting unknown types.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw nodeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	kind, err := KindFromString(raw.Type)
	if err != nil {
		return err
	}
	n.Kind = kind
	n.Attrs = raw.Attrs
	n.Text = raw.Text
	n.Content = raw.Content
	return nil
}

// Parse decodes a serialized document tree.
func Parse(data []byte) (*Node, error) {
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// ValidateNesting checks the nesting-rule table over the whole tree.
// Parse does not enforce it; hosts accepting whole documents from
// outside must.
func ValidateNesting(n *Node) error {
	for _, c := range n.Content {
		if !n.Kind.AllowsChild(c.Kind) {
			return fmt.Errorf("%w: %s cannot contain %s", ErrInvalidPosition, n.Kind, c.Kind)
		}
		if err := ValidateNesting(c); err != nil {
			return err
		}
	}
	return nil
}
