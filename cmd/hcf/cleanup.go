package main

import (
	"context"
	"fmt"

	"github.com/fwojciec/hcf"
	"github.com/fwojciec/hcf/queue"
	"github.com/fwojciec/hcf/retry"
)

// Run executes the cleanup command.
func (c *CleanupCmd) Run(deps *Dependencies) error {
	router, err := deps.Router()
	if err != nil {
		return err
	}
	frontier := deps.Config.FrontierID()
	if err := queue.Cleanup(deps.Ctx, deps.Store, frontier, router.Names(), deps.RetryPolicy()); err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", hcf.ErrorMessage(err))
		return err
	}
	fmt.Fprintf(deps.Stdout, "Deleted batches of %d slots of %s\n", router.Count(), frontier)

	if !c.States {
		return nil
	}
	err = retry.Do(deps.Ctx, deps.RetryPolicy(), func(ctx context.Context) error {
		return deps.Store.DeleteStates(ctx, frontier)
	}, nil)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", hcf.ErrorMessage(err))
		return err
	}
	fmt.Fprintf(deps.Stdout, "Deleted states of %s\n", frontier)
	return nil
}
