// Package envconfig loads hcf.Config from environment variables.
package envconfig

import (
	"context"

	"github.com/fwojciec/hcf"
	goenv "github.com/sethvargo/go-envconfig"
)

// Load reads the configuration from the process environment and validates it.
func Load(ctx context.Context) (*hcf.Config, error) {
	return LoadFrom(ctx, goenv.OsLookuper())
}

// LoadFrom reads the configuration from lookuper and validates it.
func LoadFrom(ctx context.Context, lookuper goenv.Lookuper) (*hcf.Config, error) {
	var cfg hcf.Config
	if err := goenv.ProcessWith(ctx, &goenv.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, hcf.Errorf(hcf.ECONFIG, "load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
