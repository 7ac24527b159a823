// Package platform provides the display and window collaborators: one that
// drives the xrandr and wmctrl command-line tools, and one that talks to the
// X server directly.
package platform

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/1broseidon/wintopo/internal/geom"
	"github.com/1broseidon/wintopo/internal/topology"
	"github.com/1broseidon/wintopo/internal/windows"
)

// Backend names accepted by New.
const (
	KindCLI = "cli"
	KindX11 = "x11"
)

// DisplayBackend reads and adjusts the display layout.
type DisplayBackend interface {
	topology.Backend
}

// WindowBackend lists and moves top-level windows.
type WindowBackend interface {
	windows.Lister
	MoveToDesktop(ctx context.Context, id, desktop string) error
	MoveResize(ctx context.Context, id string, g geom.Geometry) error
}

// Backend abstracts window-system operations.
type Backend interface {
	DisplayBackend
	WindowBackend
	Close() error
}

// Options configures New.
type Options struct {
	// Xrandr and Wmctrl override the tool binaries of the cli backend.
	Xrandr string
	Wmctrl string
	Logger *slog.Logger
}

// New creates the backend named kind.
func New(kind string, opts Options) (Backend, error) {
	switch kind {
	case "", KindCLI:
		return NewCLIBackend(opts), nil
	case KindX11:
		return newX11Backend(opts)
	default:
		return nil, fmt.Errorf("unknown backend %q (want %s or %s)", kind, KindCLI, KindX11)
	}
}
