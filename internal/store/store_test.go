package store

import (
	"testing"

	"github.com/1broseidon/wintopo/internal/geom"
	"github.com/1broseidon/wintopo/internal/windows"
	"github.com/google/go-cmp/cmp"
)

func TestStore_PutGetHas(t *testing.T) {
	s := New()
	docked := geom.Topology{Width: 1920, Height: 1880}
	if s.Has(docked) {
		t.Fatal("new store should be empty")
	}

	layout := NewLayout([]windows.Record{
		{ID: "0x01", Desktop: "1", Title: "a"},
		{ID: "0x02", Desktop: "2", Title: "b"},
	})
	s.Put(docked, layout)

	if !s.Has(docked) {
		t.Fatal("expected topology to be stored")
	}
	got, ok := s.Get(docked)
	if !ok {
		t.Fatal("Get returned !ok")
	}
	if diff := cmp.Diff(layout, got); diff != "" {
		t.Fatalf("layout mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_PutCopiesLayout(t *testing.T) {
	s := New()
	topo := geom.Topology{Width: 1366, Height: 768}
	layout := NewLayout([]windows.Record{{ID: "0x01", Desktop: "1"}})
	s.Put(topo, layout)

	layout["0x02"] = windows.Record{ID: "0x02"}
	got, _ := s.Get(topo)
	if len(got) != 1 {
		t.Fatalf("stored layout mutated through caller map: %v", got)
	}
}

func TestStore_PutReplaces(t *testing.T) {
	s := New()
	topo := geom.Topology{Width: 1366, Height: 768}
	s.Put(topo, NewLayout([]windows.Record{{ID: "0x01"}}))
	s.Put(topo, NewLayout([]windows.Record{{ID: "0x02"}}))

	got, _ := s.Get(topo)
	if _, ok := got["0x02"]; !ok || len(got) != 1 {
		t.Fatalf("expected latest layout only, got %v", got)
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d", s.Len())
	}
}

func TestStore_TopologiesSorted(t *testing.T) {
	s := New()
	s.Put(geom.Topology{Width: 1920, Height: 1880}, nil)
	s.Put(geom.Topology{Width: 1366, Height: 768}, nil)
	s.Put(geom.Topology{Width: 1920, Height: 1080}, nil)

	want := []geom.Topology{
		{Width: 1366, Height: 768},
		{Width: 1920, Height: 1080},
		{Width: 1920, Height: 1880},
	}
	if diff := cmp.Diff(want, s.Topologies()); diff != "" {
		t.Fatalf("Topologies mismatch (-want +got):\n%s", diff)
	}
}
