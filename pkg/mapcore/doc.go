// Package mapcore brings a map widget up, keeps it running and tears it down.
//
// A [Core] owns everything one widget mount needs: the lifecycle state
// machine, the token, module and DOM resources, the checkpoint history and
// the map instance. The rest of the application only calls four methods:
//
//	core, err := mapcore.New(mapcore.DefaultConfig(),
//	    mapcore.WithLoader(loader),
//	    mapcore.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	if !core.Initialize(ctx, container, widget.Options{Style: style}) {
//	    // details were published as error events
//	}
//	m := core.Map()
//	loaded := core.IsStyleLoaded()
//	core.Cleanup(ctx)
//
// # Bring-up
//
// Initialize runs seven phases: prerequisites, configure, acquire,
// construct, features, style and ready. Each successful phase records a
// checkpoint. A failed phase triggers recovery against the latest
// checkpoint; structural configuration errors are never retried. When
// recovery is impossible or fails, exactly one error event is published and
// the lifecycle moves to error.
//
// # Events
//
// Subscribe on [Core.Bus] for stateChange, resourceUpdate, error and
// locationUpdate events. Handlers run synchronously on the publishing
// goroutine.
//
// # Plugins
//
// Plugins registered with [WithPlugin] start after the map first reaches
// ready and stop, in reverse order, on Cleanup.
package mapcore
