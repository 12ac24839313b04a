package mapcore

import (
	"context"

	"github.com/bft-labs/mapkit/pkg/lifecycle"
	"github.com/bft-labs/mapkit/pkg/log"
	"github.com/bft-labs/mapkit/pkg/resource"
	"github.com/bft-labs/mapkit/pkg/rollback"
)

// Cleanup tears a map down deterministically:
//
//  1. detach event bindings
//  2. remove the map
//  3. release dom, module, token
//  4. reset the lifecycle to uninitialized
//  5. clear checkpoints and attempt counters
//
// Every step is safe when the previous state never existed, so Run is
// idempotent and valid on a never-initialized controller.
type Cleanup struct {
	widget    *handle
	resources *resource.Manager
	lifecycle lifecycle.Manager
	rollback  *rollback.Manager
	logger    log.Logger
}

// Run performs the teardown.
func (c *Cleanup) Run(ctx context.Context) error {
	c.widget.destroy()
	c.resources.ReleaseAll()

	if err := c.lifecycle.Reset("cleanup"); err != nil {
		c.logger.Warn("lifecycle reset failed", log.Err(err))
		return err
	}

	c.rollback.Reset()
	c.logger.Debug("cleanup complete")
	return nil
}
