// Package topology reads the connected displays, normalizes their layout and
// reduces it to the Topology key used to remember window arrangements.
//
// At most two displays are supported: the primary output is the laptop panel
// and any other output is an external monitor sitting above it.
package topology

import (
	"errors"
	"fmt"
	"strings"

	"github.com/1broseidon/wintopo/internal/geom"
)

// ErrNoDisplays is returned when no connected output has an active mode.
var ErrNoDisplays = errors.New("no active displays")

// Role identifies which physical display a rule or lookup refers to.
type Role int

const (
	Laptop Role = iota
	Monitor
)

func (r Role) String() string {
	switch r {
	case Laptop:
		return "laptop"
	case Monitor:
		return "monitor"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// ParseRole maps the configuration names "laptop" and "monitor" to a Role.
// An empty name selects the laptop.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "laptop":
		return Laptop, nil
	case "monitor":
		return Monitor, nil
	default:
		return Laptop, fmt.Errorf("unknown display %q (want laptop or monitor)", s)
	}
}

// Display is one connected output as reported by the display server.
type Display struct {
	Name     string
	Primary  bool
	Size     geom.Size
	Position geom.Position
}

func (d Display) String() string {
	return fmt.Sprintf("%s %s@%s", d.Name, d.Size, d.Position)
}

// Displays holds the two display roles. Either slot may be nil.
type Displays struct {
	Laptop  *Display
	Monitor *Display
}

// Get returns the display assigned to role.
func (d Displays) Get(role Role) (Display, bool) {
	var slot *Display
	switch role {
	case Laptop:
		slot = d.Laptop
	case Monitor:
		slot = d.Monitor
	}
	if slot == nil {
		return Display{}, false
	}
	return *slot, true
}

// Count returns the number of occupied slots.
func (d Displays) Count() int {
	n := 0
	if d.Laptop != nil {
		n++
	}
	if d.Monitor != nil {
		n++
	}
	return n
}

func (d Displays) String() string {
	var parts []string
	if d.Laptop != nil {
		parts = append(parts, "laptop="+d.Laptop.String())
	}
	if d.Monitor != nil {
		parts = append(parts, "monitor="+d.Monitor.String())
	}
	return strings.Join(parts, " ")
}

// Assign gives each output its role. The primary output becomes the laptop;
// any other output becomes the monitor, the last one listed winning.
func Assign(outputs []Display) Displays {
	var ds Displays
	for i := range outputs {
		d := outputs[i]
		if d.Primary {
			ds.Laptop = &d
		} else {
			ds.Monitor = &d
		}
	}
	return ds
}

// ExpectedLaptopPosition returns where the laptop must sit so that it is
// horizontally centered directly below the monitor.
func ExpectedLaptopPosition(laptop, monitor Display) geom.Position {
	return geom.Position{
		X: geom.FloorDiv(monitor.Size.Width-laptop.Size.Width, 2),
		Y: monitor.Size.Height,
	}
}
