// Package widget declares the contracts of the external map rendering
// library: the DOM container it mounts into, the dynamically loaded module,
// and the map instance itself. mapkit never renders anything; it only
// sequences these collaborators.
package widget

import "context"

// Widget-native event names.
const (
	EventStyleLoad = "style.load"
	EventError     = "error"
	EventMoveEnd   = "moveend"
)

// LngLat is a geographic coordinate.
type LngLat struct {
	Lng float64 `json:"lng" toml:"lng"`
	Lat float64 `json:"lat" toml:"lat"`
}

// Options are passed to the module when a map is constructed.
type Options struct {
	Style  string  `json:"style" toml:"style"`
	Center LngLat  `json:"center" toml:"center"`
	Zoom   float64 `json:"zoom" toml:"zoom"`
	// AccessToken is filled in by the initializer from the token resource.
	AccessToken string `json:"-" toml:"-"`
}

// Event is delivered to listeners registered with Map.On.
type Event struct {
	Type   string
	Err    error
	Center LngLat
	Zoom   float64
}

// Listener handles a widget event.
type Listener func(Event)

// Container is the mount point the caller supplies.
type Container interface {
	// ID identifies the container in logs.
	ID() string

	// Connected reports whether the element is still attached to the document.
	Connected() bool

	// Size returns the rendered size in pixels.
	Size() (width, height int)
}

// Loader resolves the rendering module.
type Loader interface {
	Load(ctx context.Context) (Module, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) (Module, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context) (Module, error) {
	return f(ctx)
}

// Module is a loaded rendering library instance.
type Module interface {
	// Ready is the loader's own readiness flag.
	Ready() bool

	// NewMap constructs a map inside container.
	NewMap(container Container, opts Options) (Map, error)
}

// Map is a constructed widget instance.
type Map interface {
	// IsStyleLoaded reports whether the style has been applied.
	IsStyleLoaded() bool

	// SetStyle replaces the style; the widget fires style.load when done.
	SetStyle(style string)

	// On registers a listener and returns a function that removes it.
	On(event string, fn Listener) (off func())

	// Remove destroys the instance. Calling it twice is safe.
	Remove()
}
