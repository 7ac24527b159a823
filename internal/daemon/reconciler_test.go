package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/1broseidon/wintopo/internal/config"
	"github.com/1broseidon/wintopo/internal/geom"
	"github.com/1broseidon/wintopo/internal/topology"
	"github.com/1broseidon/wintopo/internal/windows"
)

var (
	docked   = geom.Topology{Width: 1920, Height: 1880}
	undocked = geom.Topology{Width: 1280, Height: 800}
)

type staticRules struct {
	cfg   *config.Config
	err   error
	calls int
}

func (s *staticRules) Reload() (*config.Config, error) {
	s.calls++
	return s.cfg, s.err
}

// scriptedProbe returns its topologies in order and repeats the last one.
// failAt makes the read with that index fail instead.
type scriptedProbe struct {
	seq    []geom.Topology
	calls  int
	err    error
	failAt map[int]error
	panic  bool
}

func (p *scriptedProbe) Read(context.Context) (topology.Result, error) {
	if p.panic {
		panic("display server went away")
	}
	if p.err != nil {
		return topology.Result{}, p.err
	}
	if err, ok := p.failAt[p.calls]; ok {
		p.calls++
		return topology.Result{}, err
	}
	i := p.calls
	if i >= len(p.seq) {
		i = len(p.seq) - 1
	}
	p.calls++
	return topology.Result{Topology: p.seq[i]}, nil
}

// set makes every further read return t.
func (p *scriptedProbe) set(t geom.Topology) {
	p.seq = []geom.Topology{t}
	p.calls = 0
	p.failAt = nil
}

type fakeWindows struct {
	recs []windows.Record
	err  error
}

func (w *fakeWindows) Take(context.Context) ([]windows.Record, error) {
	if w.err != nil {
		return nil, w.err
	}
	out := make([]windows.Record, len(w.recs))
	copy(out, w.recs)
	return out, nil
}

type recordingMover struct {
	calls []string
	err   error
}

func (m *recordingMover) MoveToDesktop(_ context.Context, id, desktop string) error {
	m.calls = append(m.calls, fmt.Sprintf("desktop %s %s", id, desktop))
	return m.err
}

func (m *recordingMover) MoveResize(_ context.Context, id string, g geom.Geometry) error {
	m.calls = append(m.calls, fmt.Sprintf("move %s %s", id, g))
	return m.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLoop(cfg *config.Config, probe *scriptedProbe, win *fakeWindows, mover *recordingMover) *Loop {
	return NewLoop(LoopConfig{Logger: testLogger(), Interval: time.Millisecond},
		&staticRules{cfg: cfg}, probe, win, mover)
}

func firefoxRules() *config.Config {
	return &config.Config{Rules: []config.Rule{{Title: regexp.MustCompile("Firefox"), Desktop: "2"}}}
}

func TestReconcile_DiscoverAppliesRulesOnce(t *testing.T) {
	probe := &scriptedProbe{seq: []geom.Topology{docked}}
	win := &fakeWindows{recs: []windows.Record{
		{ID: "0x1", Desktop: "0", Title: "Mozilla Firefox"},
		{ID: "0x2", Desktop: "0", Title: "Terminal"},
	}}
	mover := &recordingMover{}
	l := newTestLoop(firefoxRules(), probe, win, mover)

	mode, raced, err := l.reconcile(context.Background(), firefoxRules())
	if err != nil || raced {
		t.Fatalf("first cycle: raced=%v err=%v", raced, err)
	}
	if mode != Discovering {
		t.Fatalf("mode = %v, want discover", mode)
	}
	if len(mover.calls) != 1 || mover.calls[0] != "desktop 0x1 2" {
		t.Fatalf("calls = %v, want [desktop 0x1 2]", mover.calls)
	}
	if last, ok := l.Last(); !ok || last != docked {
		t.Fatalf("last = %v %v, want %v", last, ok, docked)
	}
	if !l.Store().Has(docked) {
		t.Fatal("layout for docked topology not stored")
	}

	// Same topology again: the rules must not run a second time.
	mover.calls = nil
	if _, _, err := l.reconcile(context.Background(), firefoxRules()); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if len(mover.calls) != 0 {
		t.Fatalf("second cycle issued commands: %v", mover.calls)
	}
}

func TestReconcile_NoRulesNoCommands(t *testing.T) {
	probe := &scriptedProbe{seq: []geom.Topology{docked}}
	win := &fakeWindows{recs: []windows.Record{{ID: "0x1", Desktop: "0", Title: "Mozilla Firefox"}}}
	mover := &recordingMover{}
	l := newTestLoop(&config.Config{}, probe, win, mover)

	if _, _, err := l.reconcile(context.Background(), &config.Config{}); err != nil {
		t.Fatal(err)
	}
	if len(mover.calls) != 0 {
		t.Fatalf("unexpected commands: %v", mover.calls)
	}
	if !l.Store().Has(docked) {
		t.Fatal("layout should be stored even without rules")
	}
}

func TestReconcile_RestoresSavedLayout(t *testing.T) {
	g1 := geom.Geometry{X: 100, Y: 100, Width: 800, Height: 600}
	g2 := geom.Geometry{X: 0, Y: 0, Width: 640, Height: 480}

	probe := &scriptedProbe{seq: []geom.Topology{docked}}
	win := &fakeWindows{recs: []windows.Record{{ID: "0x1", Desktop: "1", Title: "Editor", Geometry: g1}}}
	mover := &recordingMover{}
	l := newTestLoop(&config.Config{}, probe, win, mover)
	ctx := context.Background()

	if _, _, err := l.reconcile(ctx, &config.Config{}); err != nil {
		t.Fatal(err)
	}

	// Undock; the window manager shuffles things around.
	probe.set(undocked)
	win.recs = []windows.Record{{ID: "0x1", Desktop: "0", Title: "Editor", Geometry: g2}}
	if mode, _, err := l.reconcile(ctx, &config.Config{}); err != nil || mode != Discovering {
		t.Fatalf("undock: mode=%v err=%v", mode, err)
	}

	// Dock again with a window opened in the meantime.
	probe.set(docked)
	win.recs = append(win.recs, windows.Record{ID: "0x9", Desktop: "0", Title: "New", Geometry: g2})
	mover.calls = nil
	mode, raced, err := l.reconcile(ctx, &config.Config{})
	if err != nil || raced {
		t.Fatalf("redock: raced=%v err=%v", raced, err)
	}
	if mode != Restoring {
		t.Fatalf("mode = %v, want restore", mode)
	}
	want := []string{"desktop 0x1 1", "move 0x1 " + g1.String()}
	if strings.Join(mover.calls, "|") != strings.Join(want, "|") {
		t.Fatalf("calls = %v, want %v", mover.calls, want)
	}

	saved, _ := l.Store().Get(docked)
	if saved["0x1"].Geometry != g1 {
		t.Fatalf("restore overwrote the saved layout: %v", saved["0x1"].Geometry)
	}
	if _, ok := saved["0x9"]; ok {
		t.Fatal("restore should not add windows to the saved layout")
	}
}

func TestReconcile_RaceCommitsNothing(t *testing.T) {
	probe := &scriptedProbe{seq: []geom.Topology{docked, undocked}}
	win := &fakeWindows{recs: []windows.Record{{ID: "0x1", Desktop: "0", Title: "Mozilla Firefox"}}}
	l := newTestLoop(firefoxRules(), probe, win, &recordingMover{})

	_, raced, err := l.reconcile(context.Background(), firefoxRules())
	if err != nil {
		t.Fatal(err)
	}
	if !raced {
		t.Fatal("expected race")
	}
	if _, ok := l.Last(); ok {
		t.Fatal("last topology committed after race")
	}
	if l.Store().Len() != 0 {
		t.Fatalf("store has %d layouts after race", l.Store().Len())
	}
}

func TestReconcile_CommandFailureAbandonsCycle(t *testing.T) {
	probe := &scriptedProbe{seq: []geom.Topology{docked}}
	win := &fakeWindows{recs: []windows.Record{
		{ID: "0x1", Desktop: "0", Title: "Firefox"},
		{ID: "0x2", Desktop: "0", Title: "Firefox"},
	}}
	mover := &recordingMover{err: errors.New("exit status 1")}
	l := newTestLoop(firefoxRules(), probe, win, mover)

	_, _, err := l.reconcile(context.Background(), firefoxRules())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(mover.calls) != 1 {
		t.Fatalf("cycle continued after failure: %v", mover.calls)
	}
	if _, ok := l.Last(); ok {
		t.Fatal("failed cycle committed")
	}
}

func TestReconcile_ReprobeFailureCommitsNothing(t *testing.T) {
	probe := &scriptedProbe{
		seq:    []geom.Topology{docked},
		failAt: map[int]error{1: errors.New("xrandr: cannot open display")},
	}
	win := &fakeWindows{recs: []windows.Record{{ID: "0x1", Desktop: "0", Title: "Firefox"}}}
	mover := &recordingMover{}
	l := newTestLoop(firefoxRules(), probe, win, mover)

	_, raced, err := l.reconcile(context.Background(), firefoxRules())
	if err == nil || !strings.Contains(err.Error(), "re-probe") {
		t.Fatalf("err = %v, want re-probe failure", err)
	}
	if raced {
		t.Fatal("a failed re-probe is not a race")
	}
	if len(mover.calls) != 1 {
		t.Fatalf("calls = %v, want the rule applied once", mover.calls)
	}
	if _, ok := l.Last(); ok {
		t.Fatal("cycle committed after failed re-probe")
	}
	if l.Store().Len() != 0 {
		t.Fatalf("store has %d layouts", l.Store().Len())
	}
}

func TestReconcile_FailedRestoreKeepsSavedLayout(t *testing.T) {
	g1 := geom.Geometry{X: 100, Y: 100, Width: 800, Height: 600}
	g2 := geom.Geometry{X: 0, Y: 0, Width: 640, Height: 480}

	probe := &scriptedProbe{seq: []geom.Topology{docked}}
	win := &fakeWindows{recs: []windows.Record{{ID: "0x1", Desktop: "0", Title: "Editor", Geometry: g1}}}
	mover := &recordingMover{}
	l := newTestLoop(&config.Config{}, probe, win, mover)
	ctx := context.Background()

	if _, _, err := l.reconcile(ctx, &config.Config{}); err != nil {
		t.Fatal(err)
	}
	probe.set(undocked)
	win.recs = []windows.Record{{ID: "0x1", Desktop: "0", Title: "Editor", Geometry: g2}}
	if _, _, err := l.reconcile(ctx, &config.Config{}); err != nil {
		t.Fatal(err)
	}

	// Redock, but the window cannot be moved.
	probe.set(docked)
	mover.err = errors.New("BadWindow")
	if _, _, err := l.reconcile(ctx, &config.Config{}); err == nil {
		t.Fatal("expected restore failure")
	}
	if last, _ := l.Last(); last != undocked {
		t.Fatalf("last = %v, want %v after failed restore", last, undocked)
	}

	// The next cycle restores again instead of saving the unrestored layout.
	mover.err = nil
	mode, _, err := l.reconcile(ctx, &config.Config{})
	if err != nil || mode != Restoring {
		t.Fatalf("retry: mode=%v err=%v", mode, err)
	}
	saved, _ := l.Store().Get(docked)
	if saved["0x1"].Geometry != g1 {
		t.Fatalf("saved layout overwritten: %v", saved["0x1"].Geometry)
	}
}

func TestReconcile_RecoversPanic(t *testing.T) {
	l := newTestLoop(&config.Config{}, &scriptedProbe{panic: true}, &fakeWindows{}, &recordingMover{})
	_, _, err := l.reconcile(context.Background(), &config.Config{})
	if err == nil || !strings.Contains(err.Error(), "panic") {
		t.Fatalf("err = %v, want recovered panic", err)
	}
}

func TestRun_OnceRetriesAfterRace(t *testing.T) {
	probe := &scriptedProbe{seq: []geom.Topology{docked, undocked}}
	rules := &staticRules{cfg: &config.Config{}}
	l := NewLoop(LoopConfig{Logger: testLogger(), Once: true}, rules, probe, &fakeWindows{}, &recordingMover{})
	naps := 0
	l.after = func(time.Duration) <-chan time.Time {
		naps++
		return time.After(0)
	}

	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rules.calls != 2 {
		t.Fatalf("reloads = %d, want 2", rules.calls)
	}
	if naps != 0 {
		t.Fatalf("slept %d times, want no sleep after a race", naps)
	}
	if last, _ := l.Last(); last != undocked {
		t.Fatalf("last = %v, want %v", last, undocked)
	}
}

func TestRun_OnceReturnsCycleError(t *testing.T) {
	probe := &scriptedProbe{err: errors.New("xrandr: cannot open display")}
	l := NewLoop(LoopConfig{Logger: testLogger(), Once: true}, &staticRules{cfg: &config.Config{}}, probe, &fakeWindows{}, &recordingMover{})
	err := l.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "cannot open display") {
		t.Fatalf("err = %v", err)
	}
}

func TestRun_FailedCycleSleepsAndRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	probe := &scriptedProbe{
		seq:    []geom.Topology{docked},
		failAt: map[int]error{0: errors.New("xrandr: cannot open display")},
	}
	rules := &staticRules{cfg: &config.Config{}}
	l := NewLoop(LoopConfig{Logger: testLogger()}, rules, probe, &fakeWindows{}, &recordingMover{})

	naps := 0
	committedBeforeFirstNap := true
	l.after = func(time.Duration) <-chan time.Time {
		naps++
		if naps == 1 {
			_, committedBeforeFirstNap = l.Last()
		}
		if naps == 2 {
			cancel()
			return make(chan time.Time)
		}
		return time.After(0)
	}

	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if committedBeforeFirstNap {
		t.Fatal("failed cycle committed a topology")
	}
	if naps != 2 {
		t.Fatalf("naps = %d, want 2", naps)
	}
	if rules.calls != 2 {
		t.Fatalf("reloads = %d, want 2", rules.calls)
	}
	if last, ok := l.Last(); !ok || last != docked {
		t.Fatalf("last = %v %v, want %v", last, ok, docked)
	}
	if l.Store().Len() != 1 {
		t.Fatalf("store has %d layouts, want 1", l.Store().Len())
	}
}

func TestRun_InvalidFirstConfigIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("rules:\n  - title: x\n    geometry: nonsense\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	mover := &recordingMover{}
	l := NewLoop(LoopConfig{Logger: testLogger()}, config.NewReloader(path, testLogger()),
		&scriptedProbe{seq: []geom.Topology{docked}}, &fakeWindows{}, mover)

	if err := l.Run(context.Background()); err == nil {
		t.Fatal("expected fatal configuration error")
	}
	if len(mover.calls) != 0 {
		t.Fatalf("commands issued before configuration loaded: %v", mover.calls)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	probe := &scriptedProbe{seq: []geom.Topology{docked}}
	rules := &staticRules{cfg: &config.Config{}}
	l := NewLoop(LoopConfig{Logger: testLogger()}, rules, probe, &fakeWindows{}, &recordingMover{})
	naps := 0
	l.after = func(time.Duration) <-chan time.Time {
		naps++
		if naps == 3 {
			cancel()
			return make(chan time.Time)
		}
		return time.After(0)
	}

	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rules.calls != 3 {
		t.Fatalf("cycles = %d, want 3", rules.calls)
	}
}

func TestRun_LongNapIsLogged(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	l := NewLoop(LoopConfig{Logger: logger}, &staticRules{cfg: &config.Config{}},
		&scriptedProbe{seq: []geom.Topology{docked}}, &fakeWindows{}, &recordingMover{})

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }
	naps := 0
	l.after = func(time.Duration) <-chan time.Time {
		naps++
		if naps == 2 {
			cancel()
			return make(chan time.Time)
		}
		clock = clock.Add(10 * time.Second)
		return time.After(0)
	}

	if err := l.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "took a long nap") || !strings.Contains(buf.String(), "seconds=10") {
		t.Fatalf("long nap not logged:\n%s", buf.String())
	}
}
