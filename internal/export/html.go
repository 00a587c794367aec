package export

import (
	"encoding/json"
	"fmt"

	"github.com/bagofwords1/bagofwords-sub004/internal/doctree"
	"github.com/bagofwords1/bagofwords-sub004/internal/editor"
)

// RenderDocHTML converts a serialized block document to HTML through
// the node view registry, so exports and the live editor agree on
// markup.
func RenderDocHTML(views *editor.Registry, raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: empty document", ErrContentUnavailable)
	}
	tree, err := doctree.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}
	return views.RenderTree(tree), nil
}
