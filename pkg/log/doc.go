// Package log provides the logging abstraction used by every mapkit component.
//
// Components depend on the [Logger] interface only. A zerolog adapter is
// provided for real output and a no-op logger is the default everywhere a
// logger is optional.
//
// # Usage
//
//	logger := log.NewConsoleAdapter(os.Stderr, "debug")
//	states := lifecycle.NewManager(log.Named(logger, "state"), emitter)
//
// Domain fields keep entries uniform across packages:
//
//	logger.Error("acquire failed", log.Kind(domain.KindToken), log.Err(err))
package log
