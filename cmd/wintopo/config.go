package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/1broseidon/wintopo/internal/config"
)

func runConfig(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprintln(stderr, "Usage:")
		fmt.Fprintln(stderr, "  wintopo config validate [-config PATH] [-watch]")
		return 2
	}

	switch args[0] {
	case "validate":
		return runConfigValidate(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown config command: %s\n", args[0])
		return 2
	}
}

func runConfigValidate(args []string, stdout, stderr io.Writer) int {
	var common commonFlags
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	common.register(fs, false)
	watch := fs.Bool("watch", false, "Revalidate whenever the file changes, until interrupted")
	if code, ok := parseFlags(fs, args, &common); !ok {
		return code
	}

	path, err := common.path()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	code := validateOnce(path, stdout, stderr)
	if !*watch {
		return code
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := common.logger(stderr)
	if err := watchConfig(ctx, logger, path, func() { code = validateOnce(path, stdout, stderr) }); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return code
}

func validateOnce(path string, stdout, stderr io.Writer) int {
	res, err := config.LoadFromPath(path)
	if err != nil {
		if errors.Is(err, config.ErrNoConfig) {
			fmt.Fprintf(stderr, "config: %s does not exist\n", path)
			return 1
		}
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintf(stdout, "config: ok (%d rules)\n", len(res.Config.Rules))
	return 0
}

// watchConfig calls onChange after writes to path settle, until ctx is done.
// The parent directory is watched so that editors replacing the file by
// rename are noticed.
func watchConfig(ctx context.Context, logger *slog.Logger, path string, onChange func()) error {
	const debounceWindow = 250 * time.Millisecond

	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	target = filepath.Clean(target)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}
	logger.Info("watching configuration", "file", target)

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerCh = timer.C
			} else {
				timer.Reset(debounceWindow)
			}
		case <-timerCh:
			timer = nil
			timerCh = nil
			onChange()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "error", err)
		}
	}
}
