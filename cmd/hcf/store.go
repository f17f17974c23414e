package main

import (
	"context"
	"strings"

	"github.com/fwojciec/hcf"
	hcfhttp "github.com/fwojciec/hcf/http"
	"github.com/fwojciec/hcf/memory"
	"github.com/fwojciec/hcf/redis"
	"github.com/fwojciec/hcf/sqlite"
)

// openStore opens the store addressed by cfg.Store:
// memory://, sqlite://<path>, redis://<addr>, or an http(s) service URL.
func openStore(ctx context.Context, cfg *hcf.Config) (hcf.Store, error) {
	addr := cfg.Store
	switch {
	case strings.HasPrefix(addr, "memory://"):
		return memory.NewStore(), nil
	case strings.HasPrefix(addr, "sqlite://"):
		path := strings.TrimPrefix(addr, "sqlite://")
		if path == "" {
			return nil, hcf.Errorf(hcf.ECONFIG, "sqlite store requires a path")
		}
		db := sqlite.NewDB(path)
		if err := db.Open(ctx); err != nil {
			return nil, err
		}
		return sqlite.NewStore(db), nil
	case strings.HasPrefix(addr, "redis://"), strings.HasPrefix(addr, "rediss://"):
		return redis.Open(ctx, addr)
	case strings.HasPrefix(addr, "http://"), strings.HasPrefix(addr, "https://"):
		return hcfhttp.NewStore(addr, cfg.Auth,
			hcfhttp.WithTimeout(cfg.RequestTimeout),
			hcfhttp.WithRateLimit(cfg.RateLimit),
		), nil
	}
	return nil, hcf.Errorf(hcf.ECONFIG, "unsupported store address %q", addr)
}
