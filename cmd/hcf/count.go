package main

import (
	"fmt"

	"github.com/fwojciec/hcf"
	"github.com/fwojciec/hcf/queue"
)

// Run executes the count command.
func (c *CountCmd) Run(deps *Dependencies) error {
	router, err := deps.Router()
	if err != nil {
		return err
	}
	n, err := queue.Count(deps.Ctx, deps.Store, deps.Config.FrontierID(), router.Names(), deps.RetryPolicy())
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", hcf.ErrorMessage(err))
		return err
	}
	fmt.Fprintln(deps.Stdout, n)
	return nil
}
