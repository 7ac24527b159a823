package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/1broseidon/wintopo/internal/config"
	"github.com/1broseidon/wintopo/internal/geom"
	"github.com/1broseidon/wintopo/internal/metrics"
	"github.com/1broseidon/wintopo/internal/rules"
	"github.com/1broseidon/wintopo/internal/store"
	"github.com/1broseidon/wintopo/internal/topology"
	"github.com/1broseidon/wintopo/internal/windows"
)

const (
	DefaultInterval      = 2 * time.Second
	DefaultSlowThreshold = 3 * time.Second
)

// Mode is the per-cycle behaviour.
type Mode int

const (
	// Discovering records the current layout and, under a topology never
	// seen before, applies the placement rules.
	Discovering Mode = iota
	// Restoring puts windows back where they were the last time the
	// current topology was active.
	Restoring
)

func (m Mode) String() string {
	if m == Restoring {
		return "restore"
	}
	return "discover"
}

// RuleSource yields the rule set for the next cycle.
type RuleSource interface {
	Reload() (*config.Config, error)
}

// TopologyReader reads the current display topology.
type TopologyReader interface {
	Read(ctx context.Context) (topology.Result, error)
}

// WindowReader lists the windows to reconcile.
type WindowReader interface {
	Take(ctx context.Context) ([]windows.Record, error)
}

// Mover issues window commands.
type Mover interface {
	MoveToDesktop(ctx context.Context, id, desktop string) error
	MoveResize(ctx context.Context, id string, g geom.Geometry) error
}

// LoopConfig holds configuration for the reconciliation loop.
type LoopConfig struct {
	Interval      time.Duration
	SlowThreshold time.Duration
	// Once stops after the first cycle that commits or fails.
	Once    bool
	Quirks  []rules.Quirk
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Loop is the reconciliation state machine. It owns the per-topology store
// and the last committed topology; a Loop must only be driven from one
// goroutine.
type Loop struct {
	interval      time.Duration
	slowThreshold time.Duration
	once          bool
	logger        *slog.Logger
	metrics       *metrics.Metrics

	rules    RuleSource
	probe    TopologyReader
	snapshot WindowReader
	mover    Mover
	engine   *rules.Engine

	store *store.Store
	last  *geom.Topology

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// NewLoop creates a loop with an empty store.
func NewLoop(cfg LoopConfig, src RuleSource, probe TopologyReader, snapshot WindowReader, mover Mover) *Loop {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	slow := cfg.SlowThreshold
	if slow <= 0 {
		slow = DefaultSlowThreshold
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Loop{
		interval:      interval,
		slowThreshold: slow,
		once:          cfg.Once,
		logger:        logger,
		metrics:       cfg.Metrics,
		rules:         src,
		probe:         probe,
		snapshot:      snapshot,
		mover:         mover,
		engine:        rules.NewEngine(cfg.Quirks),
		store:         store.New(),
		now:           time.Now,
		after:         time.After,
	}
}

// Store exposes the saved layouts.
func (l *Loop) Store() *store.Store {
	return l.store
}

// Last returns the last committed topology.
func (l *Loop) Last() (geom.Topology, bool) {
	if l.last == nil {
		return geom.Topology{}, false
	}
	return *l.last, true
}

// Run drives cycles until ctx is cancelled, or until one cycle has finished
// in single-shot mode. It returns an error only when the configuration has
// never loaded, or when a single-shot cycle fails.
func (l *Loop) Run(ctx context.Context) error {
	if !l.once {
		l.logger.Info("reconciler started", "interval", l.interval)
	}
	for {
		if ctx.Err() != nil {
			l.stopped()
			return nil
		}

		cfg, err := l.rules.Reload()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}

		start := l.now()
		mode, raced, err := l.reconcile(ctx, cfg)
		elapsed := l.now().Sub(start)

		switch {
		case err != nil:
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				l.stopped()
				return nil
			}
			l.metrics.RecordCycle(metrics.OutcomeError, mode.String(), elapsed)
			l.logger.Error("reconcile failed", "mode", mode.String(), "error", err)
			if l.once {
				return err
			}
		case raced:
			l.metrics.RecordCycle(metrics.OutcomeRace, mode.String(), elapsed)
			continue
		default:
			l.metrics.RecordCycle(metrics.OutcomeCommitted, mode.String(), elapsed)
			if l.once {
				return nil
			}
		}

		if err := l.nap(ctx); err != nil {
			l.stopped()
			return nil
		}
	}
}

func (l *Loop) stopped() {
	known := l.store.Topologies()
	labels := make([]string, len(known))
	for i, t := range known {
		labels[i] = t.String()
	}
	l.logger.Info("reconciler stopped", "topologies", labels)
}

// nap sleeps one interval and reports naps that took far longer in wall
// clock time, which happens across a suspend.
func (l *Loop) nap(ctx context.Context) error {
	then := l.now().Round(0)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.after(l.interval):
	}
	if slept := l.now().Round(0).Sub(then); slept > l.slowThreshold {
		l.logger.Info("took a long nap", "seconds", int(slept.Round(time.Second).Seconds()))
	}
	return nil
}

// reconcile runs one cycle with the given rules. raced reports that the
// topology changed while the cycle ran; nothing was committed and the caller
// should start over immediately.
func (l *Loop) reconcile(ctx context.Context, cfg *config.Config) (mode Mode, raced bool, err error) {
	// Recover from panics to prevent crashing the daemon
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reconciler panic: %v", r)
		}
	}()

	res, err := l.probe.Read(ctx)
	if err != nil {
		return Discovering, false, fmt.Errorf("probe topology: %w", err)
	}
	current := res.Topology

	changed := l.last == nil || *l.last != current
	mode = Discovering
	if changed && l.store.Has(current) {
		mode = Restoring
	}
	if changed {
		if l.last == nil {
			l.logger.Info("initial setup", "topology", current.String(), "mode", mode.String())
		} else {
			l.logger.Info("new setup", "from", l.last.String(), "to", current.String(), "mode", mode.String())
		}
		l.logger.Debug("displays", "count", res.Displays.Count(), "displays", res.Displays.String())
		l.metrics.RecordTopologyChange(mode.String())
	}

	snap, err := l.snapshot.Take(ctx)
	if err != nil {
		return mode, false, fmt.Errorf("enumerate windows: %w", err)
	}

	switch mode {
	case Restoring:
		saved, _ := l.store.Get(current)
		err = l.restore(ctx, mode, saved, snap)
	case Discovering:
		if !l.store.Has(current) && !cfg.Empty() {
			err = l.discover(ctx, mode, cfg, current, res.Displays, snap)
		}
	}
	if err != nil {
		return mode, false, err
	}

	after, err := l.probe.Read(ctx)
	if err != nil {
		return mode, false, fmt.Errorf("re-probe topology: %w", err)
	}
	if after.Topology != current {
		from := "none"
		if l.last != nil {
			from = l.last.String()
		}
		l.logger.Warn("topology changed during update, restarting",
			"from", from,
			"expected", current.String(),
			"now", after.Topology.String(),
			"mode", mode.String())
		return mode, true, nil
	}

	l.last = &current
	if mode == Discovering {
		l.store.Put(current, store.NewLayout(snap))
		l.metrics.SetKnownTopologies(l.store.Len())
	}
	return mode, false, nil
}

// restore moves every window recorded in saved back to its saved desktop and
// geometry. Windows that were not open when the layout was saved are left
// where they are.
func (l *Loop) restore(ctx context.Context, mode Mode, saved store.Layout, snap []windows.Record) error {
	for _, w := range snap {
		want, ok := saved[w.ID]
		if !ok {
			l.logger.Info("not moving new window", "window", w.ID, "title", w.Title)
			continue
		}
		if w.Desktop != want.Desktop {
			l.logger.Debug("moving window to desktop", "window", w.ID, "title", w.Title, "desktop", want.Desktop)
			if err := l.mover.MoveToDesktop(ctx, w.ID, want.Desktop); err != nil {
				return fmt.Errorf("move %s to desktop %s: %w", w.ID, want.Desktop, err)
			}
			l.metrics.RecordMove(metrics.MoveDesktop, mode.String())
		}
		if w.Geometry != want.Geometry {
			l.logger.Debug("moving window", "window", w.ID, "title", w.Title,
				"from", w.Geometry.String(), "to", want.Geometry.String())
			if err := l.mover.MoveResize(ctx, w.ID, want.Geometry); err != nil {
				return fmt.Errorf("move %s to %s: %w", w.ID, want.Geometry, err)
			}
			l.metrics.RecordMove(metrics.MoveGeometry, mode.String())
		}
	}
	return nil
}

// discover applies the placement rules to every window.
func (l *Loop) discover(ctx context.Context, mode Mode, cfg *config.Config, current geom.Topology, ds topology.Displays, snap []windows.Record) error {
	l.logger.Info("applying configured rules", "rules", len(cfg.Rules), "windows", len(snap))
	label := current.String()
	for _, w := range snap {
		plan, ok := l.engine.Evaluate(cfg.Rules, w, label, ds)
		if !ok {
			continue
		}
		rule := cfg.Rules[plan.Rule]
		l.metrics.RecordRuleMatch()
		l.logger.Debug("window matches rule", "window", w.ID, "title", w.Title, "rule", plan.Rule, "definition", rule.String())
		if plan.Empty() {
			continue
		}

		if plan.Desktop != nil {
			l.logger.Info("moving window to desktop", "title", w.Title, "desktop", *plan.Desktop)
			if err := l.mover.MoveToDesktop(ctx, w.ID, *plan.Desktop); err != nil {
				return fmt.Errorf("move %s to desktop %s: %w", w.ID, *plan.Desktop, err)
			}
			l.metrics.RecordMove(metrics.MoveDesktop, mode.String())
		}
		if plan.Geometry != nil {
			l.logger.Info("moving window", "title", w.Title, "display", rule.Display.String(),
				"from", w.Geometry.String(), "to", plan.Geometry.String())
			if err := l.mover.MoveResize(ctx, w.ID, *plan.Geometry); err != nil {
				return fmt.Errorf("move %s to %s: %w", w.ID, plan.Geometry, err)
			}
			l.metrics.RecordMove(metrics.MoveGeometry, mode.String())
		}
	}
	return nil
}
