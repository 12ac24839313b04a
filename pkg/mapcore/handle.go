package mapcore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/mapkit/internal/domain"
	"github.com/bft-labs/mapkit/pkg/log"
	"github.com/bft-labs/mapkit/pkg/resource"
	"github.com/bft-labs/mapkit/pkg/widget"
)

// handle owns the constructed map instance and implements
// rollback.WidgetController.
type handle struct {
	resources    *resource.Manager
	events       *Events
	styleTimeout time.Duration
	logger       log.Logger

	// reset is the full teardown used by level 4 recovery.
	reset func(ctx context.Context) error

	mu        sync.RWMutex
	m         widget.Map
	container widget.Container
	opts      widget.Options
}

func (h *handle) prepare(container widget.Container, opts widget.Options) {
	h.mu.Lock()
	h.container = container
	h.opts = opts
	h.mu.Unlock()
}

func (h *handle) current() widget.Map {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.m
}

// IsInitialized reports whether a map instance exists.
func (h *handle) IsInitialized() bool {
	return h.current() != nil
}

// IsStyleLoaded reports whether the map has its style.
func (h *handle) IsStyleLoaded() bool {
	m := h.current()
	return m != nil && m.IsStyleLoaded()
}

// construct builds a map from the acquired module and token, replacing any
// existing instance.
func (h *handle) construct() error {
	h.destroy()

	mod := h.resources.Module().Module()
	if mod == nil {
		return domain.ErrModuleNotReady
	}
	tok, err := h.resources.Token().Secret().Reveal()
	if err != nil {
		return err
	}

	h.mu.RLock()
	container, opts := h.container, h.opts
	h.mu.RUnlock()
	if container == nil {
		return domain.ErrContainerDetached
	}
	opts.AccessToken = tok

	m, err := mod.NewMap(container, opts)
	if err != nil {
		return fmt.Errorf("construct map: %w", err)
	}

	h.mu.Lock()
	h.m = m
	h.mu.Unlock()

	h.events.Attach(m)
	h.logger.Info("map constructed",
		log.String("container", container.ID()),
		log.String("style", opts.Style),
	)
	return nil
}

// destroy detaches events and removes the map. Safe without a map.
func (h *handle) destroy() {
	bound := h.events.Bound()
	h.events.Detach()

	h.mu.Lock()
	m := h.m
	h.m = nil
	h.mu.Unlock()

	if m != nil {
		m.Remove()
		h.logger.Debug("map removed", log.Int("bindings", bound))
	}
}

// waitStyle blocks until the map reports its style loaded, the map reports
// an error, the timeout elapses or ctx is done.
func (h *handle) waitStyle(ctx context.Context) error {
	m := h.current()
	if m == nil {
		return domain.ErrNoMap
	}

	done := make(chan error, 1)
	offLoad := m.On(widget.EventStyleLoad, func(widget.Event) {
		select {
		case done <- nil:
		default:
		}
	})
	defer offLoad()
	offErr := m.On(widget.EventError, func(e widget.Event) {
		err := e.Err
		if err == nil {
			err = errors.New("widget error")
		}
		select {
		case done <- err:
		default:
		}
	})
	defer offErr()

	if m.IsStyleLoaded() {
		return nil
	}

	timer := time.NewTimer(h.styleTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("style load failed: %w", err)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%w after %s", domain.ErrStyleLoadTimeout, h.styleTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// setStyle stores style as the current style and applies it.
func (h *handle) setStyle(ctx context.Context, style string) error {
	m := h.current()
	if m == nil {
		return domain.ErrNoMap
	}
	h.mu.Lock()
	h.opts.Style = style
	h.mu.Unlock()

	m.SetStyle(style)
	return h.waitStyle(ctx)
}

// ReloadStyle re-applies the current style and waits for it.
func (h *handle) ReloadStyle(ctx context.Context) error {
	h.mu.RLock()
	style := h.opts.Style
	h.mu.RUnlock()
	return h.setStyle(ctx, style)
}

// Reconstruct replaces the map in the same container.
func (h *handle) Reconstruct(ctx context.Context) error {
	return h.construct()
}

// Reset runs the full teardown.
func (h *handle) Reset(ctx context.Context) error {
	if h.reset == nil {
		return nil
	}
	return h.reset(ctx)
}
