package main

import (
	"encoding/json"
	"fmt"

	"github.com/fwojciec/hcf"
	"github.com/fwojciec/hcf/queue"
)

// Run executes the consume command.
func (c *ConsumeCmd) Run(deps *Dependencies) error {
	router, err := deps.Router()
	if err != nil {
		return err
	}
	idx := deps.Config.ConsumerSlot
	if c.Slot != nil {
		idx = *c.Slot
	}
	if idx < 0 || idx >= router.Count() {
		return hcf.Errorf(hcf.EINVALID, "slot %d out of range [0, %d)", idx, router.Count())
	}
	mode, err := queue.ParseAckMode(deps.Config.ConsumerAckMode)
	if err != nil {
		return err
	}
	if c.NoAck {
		mode = queue.AckManual
	}

	slotName := router.Name(idx)
	consumer, err := queue.NewConsumer(deps.Store, deps.Config.FrontierID(), []string{slotName},
		queue.WithMaxBatches(deps.Config.ConsumerMaxBatches),
		queue.WithAckMode(mode),
		queue.WithRetry(deps.RetryPolicy()),
		queue.WithLogger(deps.Logger),
	)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(deps.Stdout)
	var total int
	for deps.Ctx.Err() == nil {
		d, pullErr := consumer.Pull(deps.Ctx)
		if d != nil {
			for _, r := range d.Requests {
				if err := enc.Encode(r); err != nil {
					return err
				}
			}
			total += len(d.Requests)
		}
		if pullErr != nil {
			fmt.Fprintf(deps.Stderr, "error: %s\n", hcf.ErrorMessage(pullErr))
			return pullErr
		}

		if mode == queue.AckManual && !c.NoAck && len(d.BatchIDs) > 0 {
			if err := consumer.Ack(deps.Ctx, d.BatchIDs...); err != nil {
				fmt.Fprintf(deps.Stderr, "error: %s\n", hcf.ErrorMessage(err))
				return err
			}
		}
		if !c.Drain || len(d.BatchIDs) == 0 {
			break
		}
	}

	fmt.Fprintf(deps.Stderr, "Consumed %d requests from slot %s\n", total, slotName)
	return nil
}
