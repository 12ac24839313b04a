package mapcore

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/bft-labs/mapkit/pkg/event"
	"github.com/bft-labs/mapkit/pkg/log"
	"github.com/bft-labs/mapkit/pkg/telemetry"
	"github.com/bft-labs/mapkit/pkg/token"
	"github.com/bft-labs/mapkit/pkg/widget"
)

const tracerName = "github.com/bft-labs/mapkit/pkg/mapcore"

// Option configures optional behavior of Core.
type Option func(*options)

type options struct {
	logger     log.Logger
	loader     widget.Loader
	httpClient token.HTTPClient
	bus        *event.Bus
	tracer     trace.Tracer
	plugins    []Plugin
	tokenCache token.Cache
	metrics    *telemetry.Metrics
}

func defaultOptions() options {
	return options{
		logger: log.NewNoopLogger(),
		tracer: otel.Tracer(tracerName),
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLoader sets the loader of the rendering module. Required.
func WithLoader(loader widget.Loader) Option {
	return func(o *options) {
		o.loader = loader
	}
}

// WithHTTPClient sets the client used for token backend calls and probes.
func WithHTTPClient(client token.HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithEventBus shares an existing bus. By default each Core owns a new one.
func WithEventBus(bus *event.Bus) Option {
	return func(o *options) {
		o.bus = bus
	}
}

// WithTracer sets the tracer for initialization phases.
// Defaults to the global otel tracer provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithPlugin registers a plugin started after a successful Initialize.
// Plugins are started in registration order and shut down in reverse order.
func WithPlugin(plugin Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, plugin)
	}
}

// WithTokenCache enables the persisted token source.
func WithTokenCache(cache token.Cache) Option {
	return func(o *options) {
		o.tokenCache = cache
	}
}

// WithMetrics feeds lifecycle events and recovery outcomes into m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
