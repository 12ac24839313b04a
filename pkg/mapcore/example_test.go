package mapcore_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/bft-labs/mapkit/pkg/event"
	"github.com/bft-labs/mapkit/pkg/mapcore"
	"github.com/bft-labs/mapkit/pkg/widget"
	"github.com/bft-labs/mapkit/pkg/widget/headless"
)

// ExampleNew demonstrates mounting a map and tearing it down.
func ExampleNew() {
	// Stand-in for the provider's tile endpoint.
	tiles := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer tiles.Close()

	cfg := mapcore.DefaultConfig()
	cfg.Token.Override = "pk.eyJ1IjoiZXhhbXBsZSJ9.c2ln"
	cfg.Token.ProbeURL = tiles.URL

	module := headless.NewModule(headless.ModuleConfig{})
	core, err := mapcore.New(cfg,
		mapcore.WithLoader(module.Loader()),
		mapcore.WithHTTPClient(tiles.Client()),
	)
	if err != nil {
		fmt.Printf("failed to create controller: %v\n", err)
		return
	}

	ctx := context.Background()
	ok := core.Initialize(ctx, headless.NewContainer("map", 640, 480), widget.Options{Style: "streets"})
	fmt.Println(ok, core.State(), core.IsStyleLoaded())

	core.Cleanup(ctx)
	fmt.Println(core.State())

	// Output:
	// true ready true
	// uninitialized
}

// Example_errorEvents demonstrates surfacing initialization failures.
func Example_errorEvents() {
	cfg := mapcore.DefaultConfig()
	cfg.Token.Override = "pk.eyJ1IjoiZXhhbXBsZSJ9.c2ln"

	module := headless.NewModule(headless.ModuleConfig{})
	core, err := mapcore.New(cfg, mapcore.WithLoader(module.Loader()))
	if err != nil {
		fmt.Printf("failed to create controller: %v\n", err)
		return
	}

	core.Bus().Subscribe(event.TopicError, func(e event.Event) {
		ev := e.(event.ErrorEvent)
		fmt.Printf("%s failed during %s\n", ev.Source, ev.Phase)
	})

	// The container was removed from the page before mounting.
	container := headless.NewContainer("map", 640, 480)
	container.Detach()

	ok := core.Initialize(context.Background(), container, widget.Options{})
	fmt.Println(ok, core.State())

	// Output:
	// initializer failed during configure
	// false error
}
