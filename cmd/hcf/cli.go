package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/fwojciec/hcf"
	"github.com/fwojciec/hcf/retry"
	"github.com/fwojciec/hcf/slot"
)

// Dependencies holds all services and configuration for command execution.
type Dependencies struct {
	Ctx    context.Context
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Config *hcf.Config
	Store  hcf.Store
	Logger *slog.Logger
}

// RetryPolicy returns the retry policy configured for store calls.
func (d *Dependencies) RetryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = d.Config.RetryAttempts
	p.Timeout = d.Config.RequestTimeout
	return p
}

// Router returns the slot router configured for the frontier.
func (d *Dependencies) Router() (*slot.Router, error) {
	return slot.NewRouter(d.Config.NumberOfSlots, d.Config.SlotPrefix)
}

// ShutdownContext returns a context bounding the final flush. It outlives
// cancellation of Ctx so an interrupt still flushes buffered work.
func (d *Dependencies) ShutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(d.Ctx), d.Config.ShutdownTimeout)
}

// CLI defines the command-line interface structure for Kong.
type CLI struct {
	Verbose     bool   `short:"v" help:"Enable debug logging"`
	MetricsAddr string `name:"metrics-addr" help:"Serve Prometheus metrics on this address"`

	Produce ProduceCmd `cmd:"" help:"Enqueue requests read from stdin"`
	Consume ConsumeCmd `cmd:"" help:"Pull requests from a slot and print them as JSON lines"`
	Cleanup CleanupCmd `cmd:"" help:"Delete every batch of the frontier"`
	Count   CountCmd   `cmd:"" help:"Print a lower estimate of queued requests"`
	State   StateCmd   `cmd:"" help:"Read or write crawl states"`
}

// ProduceCmd is the "produce" subcommand.
type ProduceCmd struct {
	Dedupe uint `help:"Suppress duplicate fingerprints among this many expected requests (0 disables)" default:"0"`
}

// ConsumeCmd is the "consume" subcommand.
type ConsumeCmd struct {
	Slot  *int `help:"Slot index to consume (defaults to HCF_CONSUMER_SLOT)"`
	Drain bool `help:"Keep pulling until the slot is empty"`
	NoAck bool `name:"no-ack" help:"Print without acknowledging (batches stay queued)"`
}

// CleanupCmd is the "cleanup" subcommand.
type CleanupCmd struct {
	States bool `help:"Also delete the stored states"`
}

// CountCmd is the "count" subcommand.
type CountCmd struct{}

// StateCmd groups the state subcommands.
type StateCmd struct {
	Get StateGetCmd `cmd:"" help:"Print the states of fingerprints"`
	Set StateSetCmd `cmd:"" help:"Set the state of a fingerprint"`
}

// StateGetCmd is the "state get" subcommand.
type StateGetCmd struct {
	Fingerprints []string `arg:"" help:"Fingerprints to look up"`
}

// StateSetCmd is the "state set" subcommand.
type StateSetCmd struct {
	Fingerprint string `arg:"" help:"Fingerprint"`
	State       string `arg:"" enum:"not_crawled,queued,crawled,error" help:"State (not_crawled, queued, crawled, error)"`
}
