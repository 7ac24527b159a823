// Package rules evaluates placement rules against windows seen under a new
// display topology.
package rules

import (
	"github.com/1broseidon/wintopo/internal/config"
	"github.com/1broseidon/wintopo/internal/geom"
	"github.com/1broseidon/wintopo/internal/topology"
	"github.com/1broseidon/wintopo/internal/windows"
)

// Plan is the outcome of evaluating one window. Nil fields mean "leave as is".
type Plan struct {
	// Rule is the index of the matching rule.
	Rule     int
	Desktop  *string
	Geometry *geom.Geometry
}

// Empty reports whether the plan changes nothing.
func (p Plan) Empty() bool {
	return p.Desktop == nil && p.Geometry == nil
}

// Engine matches windows against rules.
type Engine struct {
	quirks []Quirk
}

// NewEngine returns an engine using quirks. A nil table disables quirks.
func NewEngine(quirks []Quirk) *Engine {
	return &Engine{quirks: quirks}
}

// Match returns the index of the first rule matching rec under the topology
// labelled topo.
func Match(rs []config.Rule, rec windows.Record, topo string) (int, bool) {
	for i, r := range rs {
		if r.When != "" && r.When != topo {
			continue
		}
		if r.Title == nil || !r.Title.MatchString(rec.Title) {
			continue
		}
		return i, true
	}
	return -1, false
}

// Evaluate finds the first matching rule and computes its effects on rec.
// The bool result reports whether any rule matched; the plan may still be
// empty when the window already sits where the rule wants it.
func (e *Engine) Evaluate(rs []config.Rule, rec windows.Record, topo string, ds topology.Displays) (Plan, bool) {
	idx, ok := Match(rs, rec, topo)
	if !ok {
		return Plan{}, false
	}
	rule := rs[idx]
	plan := Plan{Rule: idx}

	if rule.Desktop != "" && rule.Desktop != rec.Desktop {
		desktop := rule.Desktop
		plan.Desktop = &desktop
	}

	if rule.Geometry == nil {
		return plan, true
	}
	display, ok := ds.Get(rule.Display)
	if !ok {
		return plan, true
	}
	target := e.Place(*rule.Geometry, display, rec)
	if target != rec.Geometry {
		plan.Geometry = &target
	}
	return plan, true
}

// Place computes the geometry a rule's geometry clause gives rec on display.
func (e *Engine) Place(spec config.GeometrySpec, display topology.Display, rec windows.Record) geom.Geometry {
	size := rec.Geometry.Size()
	if spec.Size != nil {
		size = *spec.Size
	}

	quirk, quirky := lookupQuirk(e.quirks, rec.Title)
	if quirky {
		size.Width += quirk.Pad.Width
		size.Height += quirk.Pad.Height
	}

	pos := rec.Geometry.Position()
	if spec.Offset != nil {
		pos = Anchor(display, size, *spec.Offset)
		if quirky {
			pos = pos.Add(quirk.nudge(spec.Offset.X.FromFar, spec.Offset.Y.FromFar))
		}
	}

	return geom.Geometry{X: pos.X, Y: pos.Y, Width: size.Width, Height: size.Height}
}

// Anchor positions a window of the given size on display. A near-edge axis
// is offset from the display origin; a far-edge axis (negative offset) puts
// the window's far side that many pixels inside the display's far side.
func Anchor(display topology.Display, size geom.Size, off config.Offset) geom.Position {
	return geom.Position{
		X: anchorAxis(display.Position.X, display.Size.Width, size.Width, off.X),
		Y: anchorAxis(display.Position.Y, display.Size.Height, size.Height, off.Y),
	}
}

func anchorAxis(origin, extent, length int, a config.Axis) int {
	if a.FromFar {
		return origin + extent - length + a.Value
	}
	return origin + a.Value
}
