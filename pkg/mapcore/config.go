package mapcore

import (
	"fmt"
	"time"

	"github.com/bft-labs/mapkit/internal/domain"
	"github.com/bft-labs/mapkit/pkg/resource"
	"github.com/bft-labs/mapkit/pkg/widget"
)

// DefaultStyleLoadTimeout bounds the wait for the first style.load.
const DefaultStyleLoadTimeout = 10 * time.Second

// Config holds the configuration of a map lifecycle controller.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config struct {
	// Token configures the token source chain.
	Token resource.TokenConfig

	// ValidateInstance requires the loaded module to report ready.
	ValidateInstance bool
	// ValidateDependencies makes module acquisition wait for the token.
	ValidateDependencies bool

	// ValidateSize enforces MinWidth x MinHeight on the container.
	ValidateSize bool
	MinWidth     int
	MinHeight    int

	// StyleLoadTimeout bounds every wait for style.load.
	StyleLoadTimeout time.Duration

	// InitRecoveries is how many rollbacks one Initialize call may attempt
	// before it gives up. At least one; SetDefaults turns zero into 1.
	InitRecoveries int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Token: resource.TokenConfig{
			ValidationWindow: resource.DefaultValidationWindow,
		},
		ValidateInstance:     true,
		ValidateDependencies: true,
		ValidateSize:         true,
		MinWidth:             100,
		MinHeight:            100,
		StyleLoadTimeout:     DefaultStyleLoadTimeout,
		InitRecoveries:       1,
	}
}

// SetDefaults fills zero values that have a default.
func (c *Config) SetDefaults() {
	if c.StyleLoadTimeout == 0 {
		c.StyleLoadTimeout = DefaultStyleLoadTimeout
	}
	if c.Token.ValidationWindow == 0 {
		c.Token.ValidationWindow = resource.DefaultValidationWindow
	}
	if c.InitRecoveries == 0 {
		c.InitRecoveries = 1
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.StyleLoadTimeout < 0 {
		return fmt.Errorf("%w: style load timeout must be positive", domain.ErrInvalidConfig)
	}
	if c.MinWidth < 0 || c.MinHeight < 0 {
		return fmt.Errorf("%w: minimum container size must not be negative", domain.ErrInvalidConfig)
	}
	if c.InitRecoveries < 1 {
		return fmt.Errorf("%w: init recoveries must be at least 1", domain.ErrInvalidConfig)
	}
	return nil
}

func (c *Config) resourceConfig(loader widget.Loader, container widget.Container) resource.Config {
	return resource.Config{
		Token: c.Token,
		Module: resource.ModuleConfig{
			Loader:               loader,
			ValidateInstance:     c.ValidateInstance,
			ValidateDependencies: c.ValidateDependencies,
		},
		DOM: resource.DOMConfig{
			Container:    container,
			ValidateSize: c.ValidateSize,
			MinWidth:     c.MinWidth,
			MinHeight:    c.MinHeight,
		},
	}
}
