//go:build linux

package platform

import (
	"context"
	"fmt"
	"strconv"

	"github.com/1broseidon/wintopo/internal/geom"
	"github.com/1broseidon/wintopo/internal/topology"
	"github.com/1broseidon/wintopo/internal/windows"
	"github.com/1broseidon/wintopo/internal/x11"
)

// LinuxBackend wraps an X11 connection behind the platform Backend interface.
type LinuxBackend struct {
	conn *x11.Connection
}

var _ Backend = (*LinuxBackend)(nil)

func newX11Backend(Options) (Backend, error) {
	conn, err := x11.NewConnection()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X11: %w", err)
	}
	return &LinuxBackend{conn: conn}, nil
}

// Close closes the underlying X11 connection.
func (b *LinuxBackend) Close() error {
	if b != nil && b.conn != nil {
		b.conn.Close()
	}
	return nil
}

// Outputs returns all active outputs.
func (b *LinuxBackend) Outputs(ctx context.Context) ([]topology.Display, error) {
	conn, err := b.connection(ctx)
	if err != nil {
		return nil, err
	}

	outputs, err := conn.Outputs()
	if err != nil {
		return nil, err
	}

	displays := make([]topology.Display, 0, len(outputs))
	for _, o := range outputs {
		displays = append(displays, topology.Display{
			Name:     o.Name,
			Primary:  o.Primary,
			Size:     geom.Size{Width: o.Width, Height: o.Height},
			Position: geom.Position{X: o.X, Y: o.Y},
		})
	}
	return displays, nil
}

// Reposition moves an output's CRTC.
func (b *LinuxBackend) Reposition(ctx context.Context, name string, pos geom.Position) error {
	conn, err := b.connection(ctx)
	if err != nil {
		return err
	}
	return conn.SetOutputPosition(name, pos.X, pos.Y)
}

// Windows lists managed windows. Sticky windows are included with desktop -1.
func (b *LinuxBackend) Windows(ctx context.Context) ([]windows.Record, error) {
	conn, err := b.connection(ctx)
	if err != nil {
		return nil, err
	}

	clients, err := conn.Clients()
	if err != nil {
		return nil, err
	}

	recs := make([]windows.Record, 0, len(clients))
	for _, c := range clients {
		recs = append(recs, windows.Record{
			ID:      x11.FormatWindowID(c.ID),
			Desktop: strconv.Itoa(c.Desktop),
			Title:   c.Title,
			Geometry: geom.Geometry{
				X:      c.X,
				Y:      c.Y,
				Width:  c.Width,
				Height: c.Height,
			},
		})
	}
	return recs, nil
}

// MoveToDesktop sends a _NET_WM_DESKTOP request.
func (b *LinuxBackend) MoveToDesktop(ctx context.Context, id, desktop string) error {
	conn, err := b.connection(ctx)
	if err != nil {
		return err
	}
	win, err := x11.ParseWindowID(id)
	if err != nil {
		return err
	}
	d, err := strconv.Atoi(desktop)
	if err != nil {
		return fmt.Errorf("invalid desktop %q: %w", desktop, err)
	}
	return conn.SetWindowDesktop(uint32(win), d)
}

// MoveResize moves and resizes a window.
func (b *LinuxBackend) MoveResize(ctx context.Context, id string, g geom.Geometry) error {
	conn, err := b.connection(ctx)
	if err != nil {
		return err
	}
	win, err := x11.ParseWindowID(id)
	if err != nil {
		return err
	}
	return conn.MoveResizeWindow(win, g.X, g.Y, g.Width, g.Height)
}

func (b *LinuxBackend) connection(ctx context.Context) (*x11.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b == nil || b.conn == nil {
		return nil, fmt.Errorf("x11 backend connection is nil")
	}
	return b.conn, nil
}
