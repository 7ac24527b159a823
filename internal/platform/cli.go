package platform

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/1broseidon/wintopo/internal/geom"
	"github.com/1broseidon/wintopo/internal/topology"
	"github.com/1broseidon/wintopo/internal/windows"
)

var (
	// eDP-1 connected primary 1280x800+320+1080 (normal left inverted right x axis y axis) 286mm x 179mm
	xrandrOutputRe = regexp.MustCompile(`^(\S+) connected (primary )?(\d+)x(\d+)\+(\d+)\+(\d+)`)

	// 0x03a00007  2 320  1080 800  600  host Title
	wmctrlWindowRe = regexp.MustCompile(`^(0x[0-9a-fA-F]+)\s+(-?\d+)\s+(-?\d+)\s+(-?\d+)\s+(\d+)\s+(\d+)\s+\S+(?:\s+(.*))?$`)
)

// CLIBackend shells out to xrandr and wmctrl.
type CLIBackend struct {
	xrandr string
	wmctrl string
	logger *slog.Logger
}

var _ Backend = (*CLIBackend)(nil)

// NewCLIBackend creates a backend that runs the tools found on PATH unless
// opts overrides them.
func NewCLIBackend(opts Options) *CLIBackend {
	b := &CLIBackend{xrandr: "xrandr", wmctrl: "wmctrl", logger: opts.Logger}
	if opts.Xrandr != "" {
		b.xrandr = opts.Xrandr
	}
	if opts.Wmctrl != "" {
		b.wmctrl = opts.Wmctrl
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// Outputs runs `xrandr --current`.
func (b *CLIBackend) Outputs(ctx context.Context) ([]topology.Display, error) {
	out, err := b.run(ctx, b.xrandr, "--current")
	if err != nil {
		return nil, err
	}
	return parseXrandr(out), nil
}

// Reposition runs `xrandr --output NAME --pos XxY`.
func (b *CLIBackend) Reposition(ctx context.Context, name string, pos geom.Position) error {
	_, err := b.run(ctx, b.xrandr, "--output", name, "--pos", fmt.Sprintf("%dx%d", pos.X, pos.Y))
	return err
}

// Windows runs `wmctrl -lG`. Sticky windows are included with desktop -1.
func (b *CLIBackend) Windows(ctx context.Context) ([]windows.Record, error) {
	out, err := b.run(ctx, b.wmctrl, "-lG")
	if err != nil {
		return nil, err
	}
	recs, skipped := parseWmctrl(out)
	for _, line := range skipped {
		b.logger.Debug("ignoring unparsable wmctrl line", "line", line)
	}
	return recs, nil
}

// MoveToDesktop runs `wmctrl -i -r ID -t DESKTOP`.
func (b *CLIBackend) MoveToDesktop(ctx context.Context, id, desktop string) error {
	_, err := b.run(ctx, b.wmctrl, "-i", "-r", id, "-t", desktop)
	return err
}

// MoveResize runs `wmctrl -i -r ID -e 0,X,Y,W,H`.
func (b *CLIBackend) MoveResize(ctx context.Context, id string, g geom.Geometry) error {
	_, err := b.run(ctx, b.wmctrl, "-i", "-r", id, "-e", g.String())
	return err
}

// Close is a no-op.
func (b *CLIBackend) Close() error {
	return nil
}

func (b *CLIBackend) run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		call := strings.TrimSpace(name + " " + strings.Join(args, " "))
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("%s failed: %w (%s)", call, err, msg)
		}
		return "", fmt.Errorf("%s failed: %w", call, err)
	}
	return stdout.String(), nil
}

// parseXrandr extracts connected outputs with an active mode. Disconnected
// outputs and connected outputs without a mode are ignored.
func parseXrandr(out string) []topology.Display {
	var displays []topology.Display
	for _, line := range strings.Split(out, "\n") {
		m := xrandrOutputRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		displays = append(displays, topology.Display{
			Name:     m[1],
			Primary:  m[2] != "",
			Size:     geom.Size{Width: atoi(m[3]), Height: atoi(m[4])},
			Position: geom.Position{X: atoi(m[5]), Y: atoi(m[6])},
		})
	}
	return displays
}

// parseWmctrl parses `wmctrl -lG` output. Lines that do not parse are
// returned separately.
func parseWmctrl(out string) (recs []windows.Record, skipped []string) {
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		m := wmctrlWindowRe.FindStringSubmatch(line)
		if m == nil {
			skipped = append(skipped, line)
			continue
		}
		recs = append(recs, windows.Record{
			ID:      strings.ToLower(m[1]),
			Desktop: m[2],
			Title:   m[7],
			Geometry: geom.Geometry{
				X:      atoi(m[3]),
				Y:      atoi(m[4]),
				Width:  atoi(m[5]),
				Height: atoi(m[6]),
			},
		})
	}
	return recs, skipped
}

// atoi is only called on regexp-validated digits.
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
