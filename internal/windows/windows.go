package windows

import (
	"context"
	"fmt"

	"github.com/1broseidon/wintopo/internal/geom"
)

// Unassigned is the desktop reported for windows not bound to a single
// desktop (sticky windows, panels).
const Unassigned = "-1"

// Record is the placement of one top-level window.
type Record struct {
	ID       string
	Desktop  string
	Title    string
	Geometry geom.Geometry
}

// Lister is the window collaborator the snapshot reads from.
type Lister interface {
	Windows(ctx context.Context) ([]Record, error)
}

// Snapshot reads the current window list.
type Snapshot struct {
	lister Lister
}

// NewSnapshot creates a snapshot reader over lister.
func NewSnapshot(lister Lister) *Snapshot {
	return &Snapshot{lister: lister}
}

// Take lists windows in backend order, skipping unassigned ones.
func (s *Snapshot) Take(ctx context.Context) ([]Record, error) {
	all, err := s.lister.Windows(ctx)
	if err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}
	out := make([]Record, 0, len(all))
	for _, w := range all {
		if w.Desktop == Unassigned {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}
