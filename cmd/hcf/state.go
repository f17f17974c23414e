package main

import (
	"fmt"

	"github.com/fwojciec/hcf"
	"github.com/fwojciec/hcf/states"
)

func newStateCache(deps *Dependencies) (*states.Cache[hcf.CrawlState], error) {
	return states.NewCache[hcf.CrawlState](deps.Store, deps.Config.FrontierID(), states.CrawlStateCodec{},
		states.WithSizeLimit(deps.Config.StatesCacheSize),
		states.WithFlushInterval(deps.Config.StatesFlushEvery()),
		states.WithRetry(deps.RetryPolicy()),
		states.WithLogger(deps.Logger),
	)
}

// Run executes the state get command.
func (c *StateGetCmd) Run(deps *Dependencies) error {
	cache, err := newStateCache(deps)
	if err != nil {
		return err
	}

	fps := make([]hcf.Fingerprint, len(c.Fingerprints))
	for i, fp := range c.Fingerprints {
		fps[i] = hcf.Fingerprint(fp)
	}
	if err := cache.Fetch(deps.Ctx, fps); err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", hcf.ErrorMessage(err))
		return err
	}

	for _, fp := range fps {
		s, ok, err := cache.Get(deps.Ctx, fp)
		if err != nil {
			fmt.Fprintf(deps.Stderr, "error: %s\n", hcf.ErrorMessage(err))
			return err
		}
		if !ok {
			fmt.Fprintf(deps.Stdout, "%s\t-\n", fp)
			continue
		}
		fmt.Fprintf(deps.Stdout, "%s\t%s\n", fp, s)
	}
	return nil
}

// Run executes the state set command.
func (c *StateSetCmd) Run(deps *Dependencies) error {
	s, err := hcf.ParseCrawlState(c.State)
	if err != nil {
		return err
	}
	cache, err := newStateCache(deps)
	if err != nil {
		return err
	}
	if _, err := cache.Set(hcf.Fingerprint(c.Fingerprint), s); err != nil {
		return err
	}

	ctx, cancel := deps.ShutdownContext()
	defer cancel()
	if err := cache.Flush(ctx); err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", hcf.ErrorMessage(err))
		return err
	}
	fmt.Fprintf(deps.Stdout, "Set %s to %s\n", c.Fingerprint, s)
	return nil
}
