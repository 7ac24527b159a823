package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/1broseidon/wintopo/internal/config"
	"github.com/1broseidon/wintopo/internal/platform"
)

// commonFlags are accepted by every command that loads the rule file.
type commonFlags struct {
	configPath string
	verbose    bool
	quiet      bool
	backend    string
	logFormat  string
}

func (c *commonFlags) register(fs *flag.FlagSet, withBackend bool) {
	fs.StringVar(&c.configPath, "config", "", "Rule file path (default: ~/.config/wintopo/config.yaml)")
	fs.BoolVar(&c.verbose, "v", false, "Verbose output (debug logging)")
	fs.BoolVar(&c.quiet, "q", false, "Quiet output (errors only)")
	fs.StringVar(&c.logFormat, "log-format", "auto", "Log format: auto, text or json")
	if withBackend {
		fs.StringVar(&c.backend, "backend", platform.KindCLI, "Window system backend: cli (xrandr/wmctrl) or x11")
	}
}

func (c *commonFlags) check() error {
	if c.verbose && c.quiet {
		return errors.New("-v and -q are mutually exclusive")
	}
	switch c.logFormat {
	case "auto", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (want auto, text or json)", c.logFormat)
	}
	return nil
}

func (c *commonFlags) path() (string, error) {
	if c.configPath != "" {
		return c.configPath, nil
	}
	return config.DefaultConfigPath()
}

func (c *commonFlags) level() slog.Level {
	switch {
	case c.verbose:
		return slog.LevelDebug
	case c.quiet:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// logger builds the process logger. In auto mode text goes to terminals and
// JSON everywhere else.
func (c *commonFlags) logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.level()}
	format := c.logFormat
	if format == "auto" {
		format = "json"
		if isTerminal(w) {
			format = "text"
		}
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// parseFlags parses args into fs and rejects positional arguments. The
// returned code is meaningful only when ok is false.
func parseFlags(fs *flag.FlagSet, args []string, common *commonFlags) (code int, ok bool) {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0, false
		}
		return 2, false
	}
	if fs.NArg() != 0 {
		fmt.Fprintf(fs.Output(), "%s takes no arguments: %s\n", fs.Name(), strings.Join(fs.Args(), " "))
		fs.Usage()
		return 2, false
	}
	if err := common.check(); err != nil {
		fmt.Fprintln(fs.Output(), err)
		return 2, false
	}
	return 0, true
}
