package rules

import (
	"strings"

	"github.com/1broseidon/wintopo/internal/geom"
)

// Quirk corrects for an application whose reported geometry does not match
// what it actually draws.
type Quirk struct {
	Name  string
	Match func(title string) bool
	// Pad is added to the target size before anchoring.
	Pad geom.Size
	// Near and Far are added to the anchored position, per axis, depending on
	// which display edge that axis was anchored to.
	Near geom.Position
	Far  geom.Position
}

// DefaultQuirks is the built-in quirk table.
var DefaultQuirks = []Quirk{
	{
		// Chrome reports its content area, not its frame, and its position is
		// off by the shadow border.
		Name:  "chrome",
		Match: func(title string) bool { return strings.HasSuffix(title, "Google Chrome") },
		Pad:   geom.Size{Width: 32, Height: 32},
		Near:  geom.Position{X: -16, Y: 0},
		Far:   geom.Position{X: 32, Y: 32},
	},
}

// lookupQuirk returns the first quirk matching title.
func lookupQuirk(quirks []Quirk, title string) (Quirk, bool) {
	for _, q := range quirks {
		if q.Match != nil && q.Match(title) {
			return q, true
		}
	}
	return Quirk{}, false
}

// nudge returns the position correction for the given anchoring.
func (q Quirk) nudge(xFar, yFar bool) geom.Position {
	var d geom.Position
	if xFar {
		d.X = q.Far.X
	} else {
		d.X = q.Near.X
	}
	if yFar {
		d.Y = q.Far.Y
	} else {
		d.Y = q.Near.Y
	}
	return d
}
