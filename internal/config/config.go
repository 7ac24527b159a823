package config

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/1broseidon/wintopo/internal/geom"
	"github.com/1broseidon/wintopo/internal/topology"
)

// ErrInvalidGeometry is wrapped by every geometry grammar failure.
var ErrInvalidGeometry = errors.New("invalid geometry")

// Config is the compiled rule set.
type Config struct {
	Rules []Rule
}

// Empty reports whether the configuration carries no rules.
func (c *Config) Empty() bool {
	return c == nil || len(c.Rules) == 0
}

// Rule is a compiled placement instruction. Rules are tried in order and the
// first match wins.
type Rule struct {
	Title *regexp.Regexp
	// When restricts the rule to one topology label ("1920x1880"); empty
	// matches every topology.
	When string
	// Desktop is the target desktop; empty leaves the desktop alone.
	Desktop  string
	Geometry *GeometrySpec
	Display  topology.Role
}

func (r Rule) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "title=%q", r.Title.String())
	if r.When != "" {
		fmt.Fprintf(&b, " when=%s", r.When)
	}
	if r.Desktop != "" {
		fmt.Fprintf(&b, " desktop=%s", r.Desktop)
	}
	if r.Geometry != nil {
		fmt.Fprintf(&b, " geometry=%s display=%s", r.Geometry, r.Display)
	}
	return b.String()
}

// Axis is one signed offset. FromFar is set when the offset was written with
// a minus sign, anchoring the window to the far edge of the display. "-0"
// is a valid far-edge anchor.
type Axis struct {
	Value   int
	FromFar bool
}

func (a Axis) String() string {
	if a.FromFar {
		return fmt.Sprintf("-%d", -a.Value)
	}
	return fmt.Sprintf("+%d", a.Value)
}

// Offset is the position part of a geometry clause.
type Offset struct {
	X Axis
	Y Axis
}

// GeometrySpec is a parsed "[WxH][±X±Y]" clause. Either part may be nil.
type GeometrySpec struct {
	Size   *geom.Size
	Offset *Offset
}

func (g GeometrySpec) String() string {
	var b strings.Builder
	if g.Size != nil {
		b.WriteString(g.Size.String())
	}
	if g.Offset != nil {
		b.WriteString(g.Offset.X.String())
		b.WriteString(g.Offset.Y.String())
	}
	return b.String()
}

var geometryPattern = regexp.MustCompile(`^(?:(\d+)x(\d+))?(?:([+-]\d+)([+-]\d+))?$`)

// ParseGeometrySpec parses the rule geometry grammar, e.g. "1280x800+0-0",
// "800x600" or "-10+40". The whole string must match.
func ParseGeometrySpec(s string) (*GeometrySpec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidGeometry)
	}
	m := geometryPattern.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidGeometry, s)
	}

	spec := &GeometrySpec{}
	if m[1] != "" {
		w, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidGeometry, s, err)
		}
		h, err := strconv.Atoi(m[2])
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidGeometry, s, err)
		}
		spec.Size = &geom.Size{Width: w, Height: h}
	}
	if m[3] != "" {
		x, err := parseAxis(m[3])
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidGeometry, s, err)
		}
		y, err := parseAxis(m[4])
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidGeometry, s, err)
		}
		spec.Offset = &Offset{X: x, Y: y}
	}
	return spec, nil
}

func parseAxis(s string) (Axis, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return Axis{}, err
	}
	return Axis{Value: v, FromFar: strings.HasPrefix(s, "-")}, nil
}

// Build compiles a validated raw document.
func Build(raw RawConfig) (*Config, error) {
	cfg := &Config{Rules: make([]Rule, 0, len(raw.Rules))}
	for i, rr := range raw.Rules {
		rule, err := buildRule(rr)
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				verr.Path = fmt.Sprintf("rules[%d].%s", i, verr.Path)
				return nil, verr
			}
			return nil, &ValidationError{Path: fmt.Sprintf("rules[%d]", i), Err: err}
		}
		cfg.Rules = append(cfg.Rules, rule)
	}
	return cfg, nil
}

func buildRule(rr RawRule) (Rule, error) {
	re, err := regexp.Compile(rr.Title)
	if err != nil {
		return Rule{}, &ValidationError{Path: "title", Err: err}
	}
	rule := Rule{Title: re}
	if rr.When != nil {
		rule.When = strings.TrimSpace(*rr.When)
	}
	if rr.Desktop != nil {
		rule.Desktop = string(*rr.Desktop)
	}
	if rr.Geometry != nil {
		spec, err := ParseGeometrySpec(*rr.Geometry)
		if err != nil {
			return Rule{}, &ValidationError{Path: "geometry", Err: err}
		}
		rule.Geometry = spec
	}
	if rr.Display != nil {
		role, err := topology.ParseRole(*rr.Display)
		if err != nil {
			return Rule{}, &ValidationError{Path: "display", Err: err}
		}
		rule.Display = role
	}
	return rule, nil
}
