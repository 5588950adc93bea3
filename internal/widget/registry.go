// Package widget maps server-emitted widget tags to interactive input
// behaviour. The registry is a pure lookup: unknown tags resolve to a
// visible fallback so the conversation stays usable when the server is
// ahead of the client.
package widget

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/sumit-dhanorkar/sitewizard/internal/api"
	"github.com/sumit-dhanorkar/sitewizard/internal/profile"
)

// Well-known widget tags.
const (
	TagText        = "text"
	TagTextarea    = "textarea"
	TagSelect      = "select"
	TagMultiSelect = "multi_select"
	TagConfirm     = "confirm"
	TagColorPicker = "color_picker"
)

// Renderer collects one answer for a widget. The current profile is
// passed so a renderer can prefill from already-collected values. The
// returned string is handed verbatim to the conversation as if it had
// been typed.
type Renderer interface {
	Render(d api.WidgetDescriptor, p *profile.BusinessProfile) (string, error)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(d api.WidgetDescriptor, p *profile.BusinessProfile) (string, error)

func (f RendererFunc) Render(d api.WidgetDescriptor, p *profile.BusinessProfile) (string, error) {
	return f(d, p)
}

// Registry resolves widget tags to renderers.
type Registry struct {
	mu        sync.RWMutex
	renderers map[string]Renderer
	fallback  Renderer
}

// NewRegistry builds a registry with the built-in renderers installed.
func NewRegistry() *Registry {
	r := &Registry{
		renderers: make(map[string]Renderer),
		fallback:  RendererFunc(renderFallback),
	}
	r.Register(TagText, RendererFunc(renderText))
	r.Register(TagTextarea, RendererFunc(renderTextarea))
	r.Register(TagSelect, RendererFunc(renderSelect))
	r.Register(TagMultiSelect, RendererFunc(renderMultiSelect))
	r.Register(TagConfirm, RendererFunc(renderConfirm))
	r.Register(TagColorPicker, RendererFunc(renderColorPicker))
	return r
}

func (r *Registry) Register(tag string, renderer Renderer) {
	r.mu.Lock()
	r.renderers[tag] = renderer
	r.mu.Unlock()
}

// Resolve returns the renderer for tag, or the fallback for tags the
// client does not recognize. It never returns nil.
func (r *Registry) Resolve(tag string) Renderer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if renderer, ok := r.renderers[tag]; ok {
		return renderer
	}
	return r.fallback
}

// Known reports whether tag has a dedicated renderer.
func (r *Registry) Known(tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.renderers[tag]
	return ok
}

// EncodeAnswer converts a widget's output to the text-message
// representation: primitives stay raw text, composites are serialized.
// A widget completion and a typed message are indistinguishable inputs.
func EncodeAnswer(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
