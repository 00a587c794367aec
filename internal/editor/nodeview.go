package editor

import (
	"fmt"
	"html"

	"github.com/bagofwords1/bagofwords-sub004/internal/doctree"
)

// Renderer describes how one node type presents itself. Container
// renderers project their child content; atomic renderers produce fixed
// markup from the node's own attributes and ignore children entirely.
type Renderer struct {
	Name     string
	Projects bool
	Render   func(n *doctree.Node, children string) string
}

// Registry maps node type names to renderers. Hosts may register
// additional descriptors (e.g. a custom chart renderer) over the
// built-in table.
type Registry struct {
	byName map[string]Renderer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Renderer)}
}

// DefaultRegistry returns a registry covering every built-in kind.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, k := range []doctree.Kind{
		doctree.KindDocument,
		doctree.KindContainer,
		doctree.KindParagraph,
		doctree.KindAtomicBlock,
	} {
		r.Register(builtinRenderer(k))
	}
	return r
}

// Register adds or replaces the renderer for its type name.
func (r *Registry) Register(rend Renderer) {
	r.byName[rend.Name] = rend
}

// Resolve looks up the renderer for a type name. ok is false for
// unknown names; callers must fall back to neutral markup, never crash.
func (r *Registry) Resolve(typeName string) (Renderer, bool) {
	rend, ok := r.byName[typeName]
	return rend, ok
}

// RenderTree renders a subtree to HTML, projecting child content
// through container renderers and substituting a neutral fallback for
// unregistered types.
func (r *Registry) RenderTree(n *doctree.Node) string {
	rend, ok := r.Resolve(n.Kind.String())
	if !ok {
		return `<div class="block block-unknown"></div>` + "\n"
	}
	children := ""
	if rend.Projects {
		for _, c := range n.Content {
			children += r.RenderTree(c)
		}
	}
	return rend.Render(n, children)
}

// builtinRenderer is the exhaustive renderer table over the closed kind
// set.
func builtinRenderer(k doctree.Kind) Renderer {
	switch k {
	case doctree.KindDocument:
		return Renderer{
			Name:     k.String(),
			Projects: true,
			Render: func(n *doctree.Node, children string) string {
				return children
			},
		}
	case doctree.KindContainer:
		return Renderer{
			Name:     k.String(),
			Projects: true,
			Render: func(n *doctree.Node, children string) string {
				return fmt.Sprintf("<section class=\"canvas\">\n%s</section>\n", children)
			},
		}
	case doctree.KindParagraph:
		return Renderer{
			Name: k.String(),
			Render: func(n *doctree.Node, children string) string {
				return fmt.Sprintf("<p>%s</p>\n", html.EscapeString(n.Text))
			},
		}
	case doctree.KindAtomicBlock:
		return Renderer{
			Name: k.String(),
			Render: func(n *doctree.Node, children string) string {
				blockKind := "block"
				if n.Attrs != nil {
					if v, ok := n.Attrs["kind"].(string); ok && v != "" {
						blockKind = v
					}
				}
				width := n.IntAttr("width", doctree.DefaultBlockWidth)
				height := n.IntAttr("height", doctree.DefaultBlockHeight)
				return fmt.Sprintf(
					"<figure class=\"block block-%s\" style=\"width:%dpx;height:%dpx\"></figure>\n",
					html.EscapeString(blockKind), width, height,
				)
			},
		}
	default:
		// Kind is a closed set; unreachable.
		return Renderer{
			Name:   k.String(),
			Render: func(n *doctree.Node, children string) string { return "" },
		}
	}
}
