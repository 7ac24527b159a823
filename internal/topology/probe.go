package topology

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/1broseidon/wintopo/internal/geom"
)

// Backend is the display collaborator the probe reads from and corrects.
type Backend interface {
	// Outputs lists connected outputs that have an active mode.
	Outputs(ctx context.Context) ([]Display, error)
	// Reposition moves the named output to pos.
	Reposition(ctx context.Context, name string, pos geom.Position) error
}

// Result is one probe reading.
type Result struct {
	Topology geom.Topology
	Displays Displays
}

// Probe turns raw display readings into a Topology.
type Probe struct {
	backend Backend
	logger  *slog.Logger
}

// NewProbe creates a probe over backend.
func NewProbe(backend Backend, logger *slog.Logger) *Probe {
	if logger == nil {
		logger = slog.Default()
	}
	return &Probe{backend: backend, logger: logger}
}

// Read queries the display layout once. With two displays it also requests a
// laptop reposition when the laptop is not centered below the monitor; that
// correction shows up on the next Read, and the returned positions are the
// ones observed by this call. With a single display the position is reported
// as (0,0) because the server can lag behind after an unplug.
func (p *Probe) Read(ctx context.Context) (Result, error) {
	outputs, err := p.backend.Outputs(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("query displays: %w", err)
	}

	ds := Assign(outputs)
	switch {
	case ds.Laptop != nil && ds.Monitor != nil:
		want := ExpectedLaptopPosition(*ds.Laptop, *ds.Monitor)
		if ds.Laptop.Position != want {
			p.logger.Info("centering primary display",
				"output", ds.Laptop.Name,
				"from", ds.Laptop.Position.String(),
				"to", want.String())
			if err := p.backend.Reposition(ctx, ds.Laptop.Name, want); err != nil {
				p.logger.Warn("reposition failed", "output", ds.Laptop.Name, "error", err)
			}
		}
		return Result{
			Topology: geom.Topology{
				Width:  ds.Monitor.Size.Width,
				Height: ds.Laptop.Size.Height + ds.Monitor.Size.Height,
			},
			Displays: ds,
		}, nil

	case ds.Laptop != nil:
		ds.Laptop.Position = geom.Position{}
		return Result{Topology: topologyOf(*ds.Laptop), Displays: ds}, nil

	case ds.Monitor != nil:
		ds.Monitor.Position = geom.Position{}
		return Result{Topology: topologyOf(*ds.Monitor), Displays: ds}, nil

	default:
		return Result{}, ErrNoDisplays
	}
}

func topologyOf(d Display) geom.Topology {
	return geom.Topology{Width: d.Size.Width, Height: d.Size.Height}
}
