package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/awnumar/memguard"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/mapkit/internal/cliconfig"
	"github.com/bft-labs/mapkit/pkg/event"
	"github.com/bft-labs/mapkit/pkg/log"
	"github.com/bft-labs/mapkit/pkg/mapcore"
	"github.com/bft-labs/mapkit/pkg/telemetry"
	"github.com/bft-labs/mapkit/pkg/token"
	"github.com/bft-labs/mapkit/pkg/widget"
	"github.com/bft-labs/mapkit/pkg/widget/headless"
	"github.com/bft-labs/mapkit/plugins/stylewatcher"
)

const longHelp = `Drive a map widget through its full lifecycle from the command line.

mapkit resolves a provider token (flag, encrypted cache or token backend),
loads the rendering module, mounts a map and keeps it healthy with
checkpoint-based recovery. The simulate command runs the controller against
a headless widget, which is useful for checking tokens, styles and
recovery behavior without a browser.`

var exampleUsage = strings.TrimSpace(`
  mapkit token --token pk.eyJ1Ijoi...
  mapkit simulate --style-file ./style.json --metrics-addr :9464
  mapkit simulate --config $HOME/.mapkit/config.toml --once
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	err := newRootCommand().Execute()
	memguard.Purge()
	if err != nil {
		l := cliconfig.Logger("error")
		l.Error().Err(err).Msg("mapkit")
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	root := &cobra.Command{
		Use:           "mapkit",
		Short:         "Map widget lifecycle controller",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.mapkit/config.toml)")
	pf.StringVar(&cfg.Token, "token", cfg.Token, "access token override")
	pf.StringVar(&cfg.BackendURL, "backend-url", cfg.BackendURL, "token backend base URL")
	pf.StringVar(&cfg.BackendAuth, "backend-auth", cfg.BackendAuth, "bearer token for the token backend")
	pf.IntVar(&cfg.BackendRetries, "backend-retries", cfg.BackendRetries, "extra token backend attempts after a transport error or 5xx")
	pf.StringVar(&cfg.ProbeURL, "probe-url", cfg.ProbeURL, "tile endpoint used to check tokens")
	pf.StringVar(&cfg.Cache, "cache", cfg.Cache, "token cache backend: file, badger or none")
	pf.StringVar(&cfg.CacheDir, "cache-dir", cfg.CacheDir, "token cache directory (default: $HOME/.mapkit)")
	pf.StringVar(&cfg.CachePassphrase, "cache-passphrase", cfg.CachePassphrase, "passphrase sealing the token cache")
	pf.DurationVar(&cfg.CacheMaxAge, "cache-max-age", cfg.CacheMaxAge, "maximum age of a cached token")
	pf.DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "HTTP timeout")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	if err := pf.MarkHidden("backend-auth"); err != nil {
		l := cliconfig.Logger("info")
		l.Info().Err(err).Msg("failed to hide backend-auth flag")
	}

	load := func(cmd *cobra.Command) (zerolog.Logger, error) {
		if err := loadConfig(cmd, &cfg, cfgPath); err != nil {
			return zerolog.Nop(), err
		}
		logger := cliconfig.Logger(cfg.LogLevel)
		logger.Debug().Interface("config", cfg.Redacted()).Msg("configuration")
		return logger, nil
	}

	root.AddCommand(newTokenCommand(&cfg, load), newSimulateCommand(&cfg, load))
	return root
}

// loadConfig layers the config file, then MAPKIT_* variables, under the
// flags the user set explicitly.
func loadConfig(cmd *cobra.Command, cfg *cliconfig.Config, cfgPath string) error {
	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(cfg, fc, changed); err != nil {
			return err
		}
	}

	if err := cliconfig.ApplyEnvConfig(cfg, changed); err != nil {
		return err
	}
	return cfg.Validate()
}

type loader func(cmd *cobra.Command) (zerolog.Logger, error)

func newTokenCommand(cfg *cliconfig.Config, load loader) *cobra.Command {
	var clearCache, save bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Resolve and check the access token",
		Long: `Walk the token source chain (override, cache, backend), check the first
usable candidate against the probe endpoint and report where it came from.
An accepted backend token is written to the cache.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := load(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			cache, closeCache, err := openCache(cfg)
			if err != nil {
				return err
			}
			defer closeCache()

			if clearCache {
				if cache == nil {
					return errors.New("token cache is disabled")
				}
				if err := cache.Clear(ctx); err != nil {
					return fmt.Errorf("clear cache: %w", err)
				}
				logger.Info().Msg("token cache cleared")
				return nil
			}

			mc := cfg.MapConfig()
			provider := token.NewProvider(token.ProviderConfig{
				Override:       mc.Token.Override,
				BackendURL:     mc.Token.BackendURL,
				BackendAuth:    mc.Token.BackendAuth,
				BackendRetries: mc.Token.BackendRetries,
				CacheMaxAge:    mc.Token.CacheMaxAge,
				ProbeURL:       mc.Token.ProbeURL,
			}, &http.Client{Timeout: cfg.HTTPTimeout}, cache, log.NewZerologAdapterWithLogger(logger))

			res, err := provider.Resolve(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "token %s accepted from %s\n", res.Secret, res.Source)

			if save && res.Source != token.SourceCache {
				if cache == nil {
					return errors.New("token cache is disabled")
				}
				tok, err := res.Secret.Reveal()
				if err != nil {
					return err
				}
				if err := provider.Save(ctx, tok); err != nil {
					return fmt.Errorf("save token: %w", err)
				}
				logger.Info().Str("source", res.Source).Msg("token saved to cache")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearCache, "clear", false, "remove the cached token and exit")
	cmd.Flags().BoolVar(&save, "save", false, "persist the accepted token to the cache")
	return cmd
}

func newSimulateCommand(cfg *cliconfig.Config, load loader) *cobra.Command {
	var styleDelay time.Duration

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the lifecycle controller against a headless map",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := load(cmd)
			if err != nil {
				return err
			}
			return simulate(cmd.Context(), cfg, styleDelay, logger)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Style, "style", cfg.Style, "map style URL or document")
	f.StringVar(&cfg.StyleFile, "style-file", cfg.StyleFile, "reload the style whenever this file changes")
	f.IntVar(&cfg.Width, "width", cfg.Width, "container width in pixels")
	f.IntVar(&cfg.Height, "height", cfg.Height, "container height in pixels")
	f.Float64Var(&cfg.Lng, "lng", cfg.Lng, "initial center longitude")
	f.Float64Var(&cfg.Lat, "lat", cfg.Lat, "initial center latitude")
	f.Float64Var(&cfg.Zoom, "zoom", cfg.Zoom, "initial zoom")
	f.DurationVar(&cfg.StyleTimeout, "style-timeout", cfg.StyleTimeout, "maximum wait for the style to load")
	f.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address")
	f.BoolVar(&cfg.Once, "once", cfg.Once, "initialize, report and exit")
	f.DurationVar(&styleDelay, "style-delay", 50*time.Millisecond, "simulated style load latency")
	return cmd
}

func simulate(ctx context.Context, cfg *cliconfig.Config, styleDelay time.Duration, zl zerolog.Logger) error {
	logger := log.NewZerologAdapterWithLogger(zl)

	cache, closeCache, err := openCache(cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	metrics := telemetry.NewMetrics()
	module := headless.NewModule(headless.ModuleConfig{StyleDelay: styleDelay})

	opts := []mapcore.Option{
		mapcore.WithLogger(logger),
		mapcore.WithLoader(module.Loader()),
		mapcore.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		mapcore.WithMetrics(metrics),
	}
	if cache != nil {
		opts = append(opts, mapcore.WithTokenCache(cache))
	}
	if cfg.StyleFile != "" {
		wc := stylewatcher.DefaultConfig(cfg.StyleFile)
		wc.ApplyInitial = true
		opts = append(opts, stylewatcher.WithStyleWatcher(wc))
	}

	core, err := mapcore.New(cfg.MapConfig(), opts...)
	if err != nil {
		return fmt.Errorf("create controller: %w", err)
	}
	core.Bus().SubscribeAll(func(e event.Event) { logEvent(zl, e) })

	var srv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zl.Error().Err(err).Msg("metrics server failed")
			}
		}()
		zl.Info().Str("addr", cfg.MetricsAddr).Msg("serving metrics")
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	container := headless.NewContainer("simulate", cfg.Width, cfg.Height)
	ok := core.Initialize(ctx, container, widget.Options{
		Style:  cfg.Style,
		Center: widget.LngLat{Lng: cfg.Lng, Lat: cfg.Lat},
		Zoom:   cfg.Zoom,
	})
	if ok {
		zl.Info().Str("state", core.State().String()).Bool("style_loaded", core.IsStyleLoaded()).Msg("map ready")
	}

	if ok && !cfg.Once {
		<-ctx.Done()
		zl.Info().Msg("received signal, stopping...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	core.Cleanup(shutdownCtx)
	if srv != nil {
		_ = srv.Shutdown(shutdownCtx)
	}

	if !ok {
		return fmt.Errorf("initialization failed in state %s", core.State())
	}
	return nil
}

// openCache opens the configured token cache. The returned close function is
// always safe to call.
func openCache(cfg *cliconfig.Config) (token.Cache, func(), error) {
	noop := func() {}
	switch cfg.Cache {
	case cliconfig.CacheFile:
		return token.NewFileCache(cfg.CacheDir, token.NewSealer(cfg.CachePassphrase)), noop, nil
	case cliconfig.CacheBadger:
		db, err := token.OpenBadger(filepath.Join(cfg.CacheDir, "badger"))
		if err != nil {
			return nil, noop, err
		}
		return token.NewBadgerCache(db, token.NewSealer(cfg.CachePassphrase)), func() { _ = db.Close() }, nil
	default:
		return nil, noop, nil
	}
}

func logEvent(zl zerolog.Logger, e event.Event) {
	switch ev := e.(type) {
	case event.StateChangeEvent:
		zl.Info().Str("from", ev.Previous).Str("to", ev.Current).Str("reason", ev.Reason).Msg("state change")
	case event.ResourceUpdateEvent:
		l := zl.Debug()
		if ev.Error != "" {
			l = zl.Warn().Str("error", ev.Error)
		}
		l.Str("resource", ev.Kind.String()).Str("status", ev.Status).Msg("resource update")
	case event.ErrorEvent:
		zl.Error().Str("source", ev.Source).Str("phase", ev.Phase).Msg(ev.Message)
	case event.LocationUpdateEvent:
		zl.Info().Float64("lng", ev.Lng).Float64("lat", ev.Lat).Float64("zoom", ev.Zoom).Msg("location update")
	}
}
