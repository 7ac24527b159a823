package store

import (
	"sort"

	"github.com/1broseidon/wintopo/internal/geom"
	"github.com/1broseidon/wintopo/internal/windows"
)

// Layout maps window IDs to their last known-good placement.
type Layout map[string]windows.Record

// NewLayout indexes records by window ID.
func NewLayout(records []windows.Record) Layout {
	l := make(Layout, len(records))
	for _, r := range records {
		l[r.ID] = r
	}
	return l
}

// Store remembers one Layout per Topology. Entries are never evicted; a
// machine only ever sees a handful of topologies.
type Store struct {
	layouts map[geom.Topology]Layout
}

// New returns an empty store.
func New() *Store {
	return &Store{layouts: make(map[geom.Topology]Layout)}
}

// Has reports whether a layout was saved for t.
func (s *Store) Has(t geom.Topology) bool {
	_, ok := s.layouts[t]
	return ok
}

// Get returns the layout saved for t.
func (s *Store) Get(t geom.Topology) (Layout, bool) {
	l, ok := s.layouts[t]
	return l, ok
}

// Put replaces the layout for t with a copy of l.
func (s *Store) Put(t geom.Topology, l Layout) {
	cp := make(Layout, len(l))
	for id, r := range l {
		cp[id] = r
	}
	s.layouts[t] = cp
}

// Len returns the number of saved layouts.
func (s *Store) Len() int {
	return len(s.layouts)
}

// Topologies returns the known topologies, smallest first.
func (s *Store) Topologies() []geom.Topology {
	out := make([]geom.Topology, 0, len(s.layouts))
	for t := range s.layouts {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Width != out[j].Width {
			return out[i].Width < out[j].Width
		}
		return out[i].Height < out[j].Height
	})
	return out
}
