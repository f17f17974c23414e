package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/fwojciec/hcf"
	"github.com/fwojciec/hcf/queue"
)

// dedupeFalsePositiveRate is the Bloom filter error rate of --dedupe.
const dedupeFalsePositiveRate = 0.001

// Run executes the produce command.
func (c *ProduceCmd) Run(deps *Dependencies) error {
	router, err := deps.Router()
	if err != nil {
		return err
	}

	opts := []queue.Option{
		queue.WithBatchSize(deps.Config.ProducerBatchSize),
		queue.WithFlushInterval(deps.Config.ProducerFlushEvery()),
		queue.WithRetry(deps.RetryPolicy()),
		queue.WithLogger(deps.Logger),
	}
	if c.Dedupe > 0 {
		opts = append(opts, queue.WithDedupe(c.Dedupe, dedupeFalsePositiveRate))
	}
	if deps.Config.CleanupOnStart {
		opts = append(opts, queue.WithCleanupOnStart())
	}
	p, err := queue.NewProducer(deps.Store, deps.Config.FrontierID(), router, opts...)
	if err != nil {
		return err
	}
	if err := p.Start(deps.Ctx); err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", hcf.ErrorMessage(err))
		return err
	}

	var (
		skipped int
		errs    []error
	)
	sc := bufio.NewScanner(deps.Stdin)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() && deps.Ctx.Err() == nil {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		req, err := parseRequest(line)
		if err != nil {
			fmt.Fprintf(deps.Stderr, "skipping line: %s\n", hcf.ErrorMessage(err))
			continue
		}
		ok, err := p.Enqueue(deps.Ctx, req)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			skipped++
		}
	}
	if err := sc.Err(); err != nil {
		errs = append(errs, fmt.Errorf("read input: %w", err))
	}

	ctx, cancel := deps.ShutdownContext()
	defer cancel()
	if err := p.Stop(ctx); err != nil {
		errs = append(errs, err)
	}

	stats := p.Stats()
	fmt.Fprintf(deps.Stdout, "Enqueued %d requests in %d batches", stats.Enqueued, stats.Flushed)
	if skipped > 0 {
		fmt.Fprintf(deps.Stdout, " (%d duplicates suppressed)", skipped)
	}
	fmt.Fprintln(deps.Stdout)

	if err := errors.Join(errs...); err != nil {
		reportDataLoss(deps, err)
		return err
	}
	return nil
}

// parseRequest reads a request from a JSON object or a bare URL.
// Requests without a fingerprint get the hash of their URL.
func parseRequest(line string) (hcf.Request, error) {
	var req hcf.Request
	if strings.HasPrefix(line, "{") {
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			return req, hcf.Errorf(hcf.EINVALID, "invalid request: %v", err)
		}
	} else {
		req.URL = line
	}
	if req.Fingerprint == "" {
		if req.URL == "" {
			return req, hcf.Errorf(hcf.EINVALID, "request needs a fingerprint or a URL")
		}
		req.Fingerprint = fingerprint(req.URL)
	}
	return req, nil
}

// fingerprint returns the hex xxhash of url.
func fingerprint(url string) hcf.Fingerprint {
	return hcf.Fingerprint(fmt.Sprintf("%016x", xxhash.Sum64String(url)))
}

// reportDataLoss lists the requests of undelivered batches on stderr so they
// can be re-submitted.
func reportDataLoss(deps *Dependencies, err error) {
	for _, e := range unwrapAll(err) {
		var dl *hcf.DataLossError
		if !errors.As(e, &dl) {
			fmt.Fprintf(deps.Stderr, "error: %s\n", hcf.ErrorMessage(e))
			continue
		}
		fmt.Fprintf(deps.Stderr, "error: %d requests of slot %s were not delivered: %v\n", len(dl.Requests), dl.Slot, dl.Err)
		for _, r := range dl.Requests {
			fmt.Fprintf(deps.Stderr, "undelivered: %s\n", r.URL)
		}
	}
}

// unwrapAll flattens joined errors.
func unwrapAll(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range j.Unwrap() {
			out = append(out, unwrapAll(e)...)
		}
		return out
	}
	return []error{err}
}
