package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fwojciec/hcf"
	"github.com/fwojciec/hcf/envconfig"
	"github.com/fwojciec/hcf/prometheus"
	hcfslog "github.com/fwojciec/hcf/slog"
	goenv "github.com/sethvargo/go-envconfig"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := NewMain()

	if err := m.Run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Main represents the program.
type Main struct {
	// Lookuper resolves configuration variables. Defaults to the process
	// environment.
	Lookuper goenv.Lookuper

	// Store overrides the store selected by HCF_STORE. It is not closed by
	// Main.
	Store hcf.Store

	// store is the store opened by Run.
	store hcf.Store
}

// NewMain returns a new instance of Main with defaults.
func NewMain() *Main {
	return &Main{
		Lookuper: goenv.OsLookuper(),
	}
}

// Close gracefully stops the program.
func (m *Main) Close() error {
	if m.store != nil {
		return m.store.Close()
	}
	return nil
}

// Run executes the CLI with the given arguments.
func (m *Main) Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	deps := &Dependencies{
		Ctx:    ctx,
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
	}

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("hcf"),
		kong.Description("Synchronize a crawl frontier's queue and states with a shared batch store."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}), // Don't exit on help
		kong.Bind(deps),
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	if len(args) == 0 {
		_, _ = parser.Parse([]string{"--help"})
		return fmt.Errorf("no command specified. Run 'hcf --help' to see available commands")
	}

	cmd := args[0]
	if cmd == "help" || cmd == "--help" || cmd == "-h" {
		_, _ = parser.Parse([]string{"--help"})
		return nil
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cli.Verbose {
		level = slog.LevelDebug
	}
	deps.Logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	lookuper := m.Lookuper
	if lookuper == nil {
		lookuper = goenv.OsLookuper()
	}
	cfg, err := envconfig.LoadFrom(ctx, lookuper)
	if err != nil {
		fmt.Fprintln(stderr, "Hint: set HCF_PROJECT_ID and HCF_FRONTIER")
		return err
	}
	deps.Config = cfg

	store := m.Store
	if store == nil {
		store, err = openStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to open store %q: %w", cfg.Store, err)
		}
		m.store = store
		defer m.Close()
	}

	if cli.MetricsAddr != "" {
		srv, err := serveMetrics(cli.MetricsAddr, deps.Logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		store = prometheus.NewInstrumentedStore(store)
	}
	deps.Store = hcfslog.NewLoggingStore(store, deps.Logger)

	return kongCtx.Run(deps)
}

// serveMetrics starts an HTTP server exposing metrics at /metrics.
func serveMetrics(addr string, logger *slog.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", prometheus.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())
	return srv, nil
}
