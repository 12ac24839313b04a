package mapcore

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bft-labs/mapkit/internal/domain"
	"github.com/bft-labs/mapkit/pkg/event"
	"github.com/bft-labs/mapkit/pkg/lifecycle"
	"github.com/bft-labs/mapkit/pkg/log"
	"github.com/bft-labs/mapkit/pkg/resource"
	"github.com/bft-labs/mapkit/pkg/rollback"
	"github.com/bft-labs/mapkit/pkg/widget"
)

// Phase names, also used as the phase of initializer error events.
const (
	PhasePrerequisites = "prerequisites"
	PhaseConfigure     = "configure"
	PhaseAcquire       = "acquire"
	PhaseConstruct     = "construct"
	PhaseFeatures      = "features"
	PhaseStyle         = "style"
	PhaseReady         = "ready"
)

// phaseResult is the outcome of one bring-up phase.
type phaseResult struct {
	err error
	// fatal failures skip rollback; structural configuration errors are
	// not retried.
	fatal bool
}

func passed() phaseResult { return phaseResult{} }

func failed(err error) phaseResult { return phaseResult{err: err} }

func fatal(err error) phaseResult { return phaseResult{err: err, fatal: true} }

type phase struct {
	name string
	run  func(ctx context.Context) phaseResult
}

// Initializer drives bring-up from uninitialized to ready.
//
// Each phase returns an explicit result. Success creates a checkpoint.
// Failure attempts recovery against the latest checkpoint and, if that
// succeeds, resumes from the phase matching the restored lifecycle state.
// When recovery is impossible, fails or the budget is spent, exactly one
// error event is published and the lifecycle moves to error.
type Initializer struct {
	cfg       Config
	loader    widget.Loader
	lifecycle lifecycle.Manager
	resources *resource.Manager
	rollback  *rollback.Manager
	widget    *handle
	bus       *event.Bus
	tracer    trace.Tracer
	logger    log.Logger

	phases []phase
}

func newInitializer(cfg Config, loader widget.Loader, lc lifecycle.Manager, resources *resource.Manager,
	rb *rollback.Manager, h *handle, bus *event.Bus, tracer trace.Tracer, logger log.Logger) *Initializer {
	in := &Initializer{
		cfg:       cfg,
		loader:    loader,
		lifecycle: lc,
		resources: resources,
		rollback:  rb,
		widget:    h,
		bus:       bus,
		tracer:    tracer,
		logger:    log.Named(logger, "initializer"),
	}
	in.phases = []phase{
		{PhasePrerequisites, in.prerequisites},
		{PhaseConfigure, in.configure},
		{PhaseAcquire, in.acquire},
		{PhaseConstruct, in.construct},
		{PhaseFeatures, in.features},
		{PhaseStyle, in.style},
		{PhaseReady, in.ready},
	}
	return in
}

// Run performs a complete bring-up into container. It never panics and
// never returns an error: failures are published on the bus.
func (in *Initializer) Run(ctx context.Context, container widget.Container, opts widget.Options) bool {
	in.widget.prepare(container, opts)

	ctx, span := in.tracer.Start(ctx, "mapkit.initialize",
		trace.WithAttributes(attribute.String("container", containerID(container))))
	defer span.End()

	success := in.runFrom(ctx, 0, in.cfg.InitRecoveries)
	if !success {
		span.SetStatus(codes.Error, "initialize failed")
	}
	return success
}

// Resume continues bring-up from the phase matching the current lifecycle
// state. It is used after a runtime recovery has rewound the state.
func (in *Initializer) Resume(ctx context.Context) bool {
	ctx, span := in.tracer.Start(ctx, "mapkit.resume",
		trace.WithAttributes(attribute.String("state", in.lifecycle.State().String())))
	defer span.End()

	return in.runFrom(ctx, in.resumeIndex(), 0)
}

func (in *Initializer) runFrom(ctx context.Context, start, recoveries int) (success bool) {
	current := ""
	defer func() {
		if r := recover(); r != nil {
			in.fail(current, fmt.Errorf("panic during %s: %v", current, r))
			success = false
		}
	}()

	for i := start; i < len(in.phases); i++ {
		p := in.phases[i]
		current = p.name

		res := in.runPhase(ctx, p)
		if res.err == nil {
			continue
		}

		in.logger.Warn("phase failed", log.String("phase", p.name), log.Err(res.err))
		if res.fatal || recoveries <= 0 {
			in.fail(p.name, res.err)
			return false
		}

		cp, found := in.rollback.Latest()
		if !found {
			in.fail(p.name, fmt.Errorf("%w: %w", domain.ErrNoCheckpoint, res.err))
			return false
		}
		if _, err := in.rollback.RecoverToCheckpoint(ctx, cp); err != nil {
			in.logger.Warn("rollback failed", log.String("phase", p.name), log.Err(err))
			in.fail(p.name, fmt.Errorf("%w: %w", res.err, err))
			return false
		}

		recoveries--
		// Resume at the phase that matches the restored state; the loop
		// increment is compensated.
		i = in.resumeIndex() - 1
	}
	return true
}

func (in *Initializer) runPhase(ctx context.Context, p phase) phaseResult {
	ctx, span := in.tracer.Start(ctx, "mapkit.phase."+p.name,
		trace.WithAttributes(
			attribute.String("phase", p.name),
			attribute.String("state", in.lifecycle.State().String()),
		))
	defer span.End()

	res := p.run(ctx)
	if res.err != nil {
		span.RecordError(res.err)
		span.SetStatus(codes.Error, res.err.Error())
		return res
	}
	span.SetStatus(codes.Ok, "")
	return res
}

// resumeIndex maps the lifecycle state to the next phase to run.
func (in *Initializer) resumeIndex() int {
	switch in.lifecycle.State() {
	case lifecycle.StatePrerequisitesChecking:
		return 1
	case lifecycle.StateResourcesAcquiring:
		return 2
	case lifecycle.StateCoreInitializing:
		if in.widget.IsInitialized() {
			return 4
		}
		return 3
	case lifecycle.StateFeaturesActivating:
		return 5
	case lifecycle.StateReady:
		return len(in.phases)
	default:
		return 0
	}
}

// fail publishes the single error event of a failed bring-up and moves the
// lifecycle to error.
func (in *Initializer) fail(phaseName string, err error) {
	in.logger.Error("initialization failed", log.String("phase", phaseName), log.Err(err))
	in.bus.Publish(event.NewErrorEvent("initializer", phaseName, err))

	if in.lifecycle.State() == lifecycle.StateError {
		return
	}
	if terr := in.lifecycle.TransitionTo(lifecycle.StateError, phaseName+" failed"); terr != nil {
		_ = in.lifecycle.Restore(lifecycle.StateError, phaseName+" failed")
	}
}

func (in *Initializer) prerequisites(ctx context.Context) phaseResult {
	if err := in.lifecycle.TransitionTo(lifecycle.StatePrerequisitesChecking, "initialize"); err != nil {
		return fatal(err)
	}
	in.rollback.CreateCheckpoint("prerequisites")
	return passed()
}

func (in *Initializer) configure(ctx context.Context) phaseResult {
	in.widget.mu.RLock()
	container := in.widget.container
	in.widget.mu.RUnlock()

	results := in.resources.Configure(in.cfg.resourceConfig(in.loader, container))
	var invalid []string
	for _, kind := range domain.AllKinds {
		if !results[kind] {
			invalid = append(invalid, kind.String())
		}
	}
	if len(invalid) > 0 {
		return fatal(fmt.Errorf("%w: %s", domain.ErrInvalidConfig, strings.Join(invalid, ", ")))
	}

	if err := in.lifecycle.TransitionTo(lifecycle.StateResourcesAcquiring, "resources configured"); err != nil {
		return fatal(err)
	}
	in.rollback.CreateCheckpoint("post-configuration")
	return passed()
}

// acquire brings every resource that is not ready to ready. All kinds are
// attempted before the combined result is evaluated.
func (in *Initializer) acquire(ctx context.Context) phaseResult {
	var failures []string
	for _, kind := range domain.AllKinds {
		if in.resources.GetResourceState(kind).Status == resource.StatusReady {
			continue
		}
		if !in.resources.AcquireResource(ctx, kind) {
			st := in.resources.GetResourceState(kind)
			failures = append(failures, fmt.Sprintf("%s: %s", kind, st.Error))
		}
	}
	if len(failures) > 0 {
		return failed(fmt.Errorf("%w: %s", domain.ErrResourcesNotReady, strings.Join(failures, "; ")))
	}
	in.rollback.CreateCheckpoint("post-acquisition")
	return passed()
}

func (in *Initializer) construct(ctx context.Context) phaseResult {
	// Acquisition normally advances the state on its own.
	if in.lifecycle.State() != lifecycle.StateCoreInitializing {
		if err := in.lifecycle.TransitionTo(lifecycle.StateCoreInitializing, "resources acquired"); err != nil {
			return failed(err)
		}
	}
	in.rollback.CreateCheckpoint("core-initializing")

	if err := in.widget.construct(); err != nil {
		return failed(err)
	}
	return passed()
}

func (in *Initializer) features(ctx context.Context) phaseResult {
	if err := in.lifecycle.TransitionTo(lifecycle.StateFeaturesActivating, "map constructed"); err != nil {
		return failed(err)
	}
	in.rollback.CreateCheckpoint("post-construction")
	return passed()
}

func (in *Initializer) style(ctx context.Context) phaseResult {
	if err := in.widget.waitStyle(ctx); err != nil {
		return failed(err)
	}
	return passed()
}

func (in *Initializer) ready(ctx context.Context) phaseResult {
	if err := in.lifecycle.TransitionTo(lifecycle.StateReady, "style loaded"); err != nil {
		return failed(err)
	}
	in.rollback.CreateCheckpoint("ready")
	in.logger.Info("map ready")
	return passed()
}

func containerID(c widget.Container) string {
	if c == nil {
		return ""
	}
	return c.ID()
}
