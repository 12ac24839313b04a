package mapcore

import (
	"context"

	"github.com/bft-labs/mapkit/pkg/event"
	"github.com/bft-labs/mapkit/pkg/log"
)

// Plugin extends a Core with optional behavior.
type Plugin interface {
	// Name returns the plugin identifier used in logs.
	Name() string

	// Initialize is called after the map reaches ready.
	Initialize(ctx context.Context, cfg PluginConfig) error

	// Shutdown is called during Cleanup, in reverse registration order.
	Shutdown(ctx context.Context) error
}

// Styler replaces the map style.
type Styler interface {
	ReloadStyle(ctx context.Context, style string) error
}

// PluginConfig is handed to plugins on Initialize.
type PluginConfig struct {
	Logger log.Logger
	Bus    *event.Bus
	Styler Styler
}
