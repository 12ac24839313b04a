// Package stylewatcher reloads the map style when a style file changes.
// The file holds a style reference, either a URL or an inline style
// document; its trimmed contents are handed to the map as-is.
package stylewatcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/mapkit/internal/domain"
	"github.com/bft-labs/mapkit/pkg/log"
	"github.com/bft-labs/mapkit/pkg/mapcore"
)

// Read failure codes, used in logs.
const (
	ErrCodeFileNotFound     = "FILE_NOT_FOUND"
	ErrCodePermissionDenied = "PERMISSION_DENIED"
	ErrCodeReadError        = "READ_ERROR"
	ErrCodeEmpty            = "EMPTY"
)

// Plugin watches a style file and applies it on change.
type Plugin struct {
	mu sync.Mutex

	path          string
	applyInitial  bool
	retryInterval time.Duration
	maxAttempts   int
	debounceDelay time.Duration

	logger   log.Logger
	styler   mapcore.Styler
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce *time.Timer
	last     string
}

// Config holds configuration options for the style watcher plugin.
type Config struct {
	// Path is the style file to watch. Required.
	Path string

	// ApplyInitial applies the file once when the plugin starts.
	ApplyInitial bool

	// DebounceDelay is the delay after a file change before reloading.
	// Default: 100 milliseconds
	DebounceDelay time.Duration

	// RetryInterval is the delay between reload attempts.
	// Default: 1 second
	RetryInterval time.Duration

	// MaxAttempts bounds reload attempts per change.
	// Default: 3
	MaxAttempts int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(path string) Config {
	return Config{
		Path:          path,
		DebounceDelay: 100 * time.Millisecond,
		RetryInterval: time.Second,
		MaxAttempts:   3,
	}
}

// New creates a style watcher plugin.
func New(cfg Config) *Plugin {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Plugin{
		path:          cfg.Path,
		applyInitial:  cfg.ApplyInitial,
		retryInterval: cfg.RetryInterval,
		maxAttempts:   cfg.MaxAttempts,
		debounceDelay: cfg.DebounceDelay,
		logger:        log.NewNoopLogger(),
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "stylewatcher"
}

// Initialize starts watching the style file.
func (p *Plugin) Initialize(ctx context.Context, cfg mapcore.PluginConfig) error {
	p.mu.Lock()
	if cfg.Logger != nil {
		p.logger = log.Named(cfg.Logger, "stylewatcher")
	}
	p.styler = cfg.Styler
	p.mu.Unlock()

	if p.path == "" || p.styler == nil {
		p.logger.Warn("style watcher disabled: no style file or styler")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory so editors that replace the file are seen.
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		watcher.Close()
		return err
	}

	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel

	p.logger.Info("style watcher started", log.String("path", p.path))

	p.wg.Add(1)
	go p.watchLoop(watchCtx, watcher)

	if p.applyInitial {
		p.schedule(watchCtx, 0)
	}
	return nil
}

// Shutdown stops the watcher and any pending reload.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Lock()
	if p.debounce != nil {
		p.debounce.Stop()
		p.debounce = nil
	}
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}

func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()
	defer watcher.Close()

	name := filepath.Base(p.path)
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			p.schedule(ctx, p.debounceDelay)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("style watcher error", log.Err(err))
		}
	}
}

// schedule debounces reloads. The reload runs on the timer goroutine, which
// Shutdown does not wait for.
func (p *Plugin) schedule(ctx context.Context, delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.debounce = time.AfterFunc(delay, func() {
		p.reload(ctx)
	})
}

func (p *Plugin) reload(ctx context.Context) {
	style, err := p.readStyle()
	if err != nil {
		p.logger.Warn("style file unreadable",
			log.String("path", p.path),
			log.String("code", errorToCode(err)),
			log.Err(err))
		return
	}

	p.mu.Lock()
	unchanged := style == p.last
	p.mu.Unlock()
	if unchanged {
		return
	}

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		err = p.styler.ReloadStyle(ctx, style)
		if err == nil {
			p.mu.Lock()
			p.last = style
			p.mu.Unlock()
			p.logger.Info("style reloaded from file", log.String("path", p.path))
			return
		}
		// No map to reload; a later Initialize picks up the file again.
		if errors.Is(err, domain.ErrNoMap) {
			p.logger.Debug("style reload skipped, map not ready")
			return
		}

		p.logger.Warn("style reload failed",
			log.Int("attempt", attempt),
			log.Err(err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.retryInterval):
		}
	}
	p.logger.Error("style reload gave up", log.Int("attempts", p.maxAttempts))
}

var errEmptyStyle = errors.New("style file is empty")

func (p *Plugin) readStyle() (string, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return "", err
	}
	style := strings.TrimSpace(string(data))
	if style == "" {
		return "", errEmptyStyle
	}
	return style, nil
}

func errorToCode(err error) string {
	switch {
	case errors.Is(err, errEmptyStyle):
		return ErrCodeEmpty
	case os.IsNotExist(err):
		return ErrCodeFileNotFound
	case os.IsPermission(err):
		return ErrCodePermissionDenied
	default:
		return ErrCodeReadError
	}
}

var _ mapcore.Plugin = (*Plugin)(nil)
