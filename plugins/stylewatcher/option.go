package stylewatcher

import "github.com/bft-labs/mapkit/pkg/mapcore"

// WithStyleWatcher returns a mapcore Option that reloads the map style
// whenever the configured file changes.
//
// Usage:
//
//	core, err := mapcore.New(cfg,
//	    mapcore.WithLoader(loader),
//	    stylewatcher.WithStyleWatcher(stylewatcher.Config{
//	        Path:          "/etc/mapkit/style.json",
//	        DebounceDelay: 100 * time.Millisecond,
//	    }),
//	)
func WithStyleWatcher(cfg Config) mapcore.Option {
	return mapcore.WithPlugin(New(cfg))
}
