package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/1broseidon/wintopo/internal/config"
	"github.com/1broseidon/wintopo/internal/daemon"
	"github.com/1broseidon/wintopo/internal/metrics"
	"github.com/1broseidon/wintopo/internal/platform"
	"github.com/1broseidon/wintopo/internal/rules"
	"github.com/1broseidon/wintopo/internal/runtimepath"
	"github.com/1broseidon/wintopo/internal/topology"
	"github.com/1broseidon/wintopo/internal/windows"
)

func runLoop(name string, args []string, once bool, stderr io.Writer) int {
	var common commonFlags
	var metricsAddr string

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	common.register(fs, true)
	if !once {
		fs.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. 127.0.0.1:9273)")
	}
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: wintopo %s [options]\n", name)
		fmt.Fprintln(stderr, "")
		if once {
			fmt.Fprintln(stderr, "Run a single reconciliation pass. Exits 1 if the pass fails.")
		} else {
			fmt.Fprintln(stderr, "Poll the display layout, restore remembered window placements and")
			fmt.Fprintln(stderr, "apply placement rules under new layouts.")
		}
		fmt.Fprintln(stderr, "")
		fs.PrintDefaults()
	}
	if code, ok := parseFlags(fs, args, &common); !ok {
		return code
	}

	logger := common.logger(stderr)
	path, err := common.path()
	if err != nil {
		logger.Error("resolve configuration path", "error", err)
		return 1
	}

	lockPath, err := runtimepath.LockPath(os.Getenv("DISPLAY"))
	if err != nil {
		logger.Error("resolve lock path", "error", err)
		return 1
	}
	lock, err := runtimepath.Acquire(lockPath)
	if errors.Is(err, runtimepath.ErrLocked) {
		logger.Error("another wintopo instance is running", "error", err)
		return 1
	}
	if err != nil {
		logger.Error("acquire lock", "path", lockPath, "error", err)
		return 1
	}
	defer lock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := platform.New(common.backend, platform.Options{Logger: logger})
	if err != nil {
		logger.Error("create backend", "backend", common.backend, "error", err)
		return 1
	}
	defer backend.Close()

	var m *metrics.Metrics
	if metricsAddr != "" {
		m = metrics.New()
		if err := m.Serve(ctx, metricsAddr, logger); err != nil {
			logger.Error("start metrics server", "addr", metricsAddr, "error", err)
			return 1
		}
	}

	loop := daemon.NewLoop(daemon.LoopConfig{
		Once:    once,
		Quirks:  rules.DefaultQuirks,
		Logger:  logger,
		Metrics: m,
	},
		config.NewReloader(path, logger),
		topology.NewProbe(backend, logger),
		windows.NewSnapshot(backend),
		backend,
	)

	if err := loop.Run(ctx); err != nil {
		logger.Error("stopped", "error", err)
		return 1
	}
	if once && ctx.Err() != nil {
		return 1
	}
	return 0
}
