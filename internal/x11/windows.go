package x11

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
)

// StickyDesktop is the _NET_WM_DESKTOP value of windows shown on all desktops.
const StickyDesktop = 0xFFFFFFFF

// Client is a managed top-level window. Desktop is -1 for sticky windows.
type Client struct {
	ID      xproto.Window
	Desktop int
	Title   string
	X       int
	Y       int
	Width   int
	Height  int
}

// Clients lists managed windows in _NET_CLIENT_LIST order. Windows that
// vanish while being inspected are skipped.
func (c *Connection) Clients() ([]Client, error) {
	ids, err := ewmh.ClientListGet(c.XUtil)
	if err != nil {
		return nil, fmt.Errorf("failed to get client list: %w", err)
	}

	clients := make([]Client, 0, len(ids))
	for _, id := range ids {
		x, y, w, h, ok := c.windowRect(id)
		if !ok {
			continue
		}
		desktop, err := c.GetWindowDesktop(uint32(id))
		if err != nil {
			desktop = -1
		}
		clients = append(clients, Client{
			ID:      id,
			Desktop: desktop,
			Title:   c.windowTitle(id),
			X:       x,
			Y:       y,
			Width:   w,
			Height:  h,
		})
	}
	return clients, nil
}

func (c *Connection) windowRect(windowID xproto.Window) (x, y, w, h int, ok bool) {
	geom, err := xproto.GetGeometry(c.XUtil.Conn(), xproto.Drawable(windowID)).Reply()
	if err != nil {
		return 0, 0, 0, 0, false
	}

	translate, err := xproto.TranslateCoordinates(
		c.XUtil.Conn(),
		windowID,
		c.Root,
		0, 0,
	).Reply()
	if err != nil {
		return 0, 0, 0, 0, false
	}

	return int(translate.DstX), int(translate.DstY), int(geom.Width), int(geom.Height), true
}

func (c *Connection) windowTitle(windowID xproto.Window) string {
	title, err := ewmh.WmNameGet(c.XUtil, windowID)
	if err == nil {
		title = strings.TrimSpace(title)
		if title != "" {
			return title
		}
	}

	title, err = icccm.WmNameGet(c.XUtil, windowID)
	if err == nil {
		return strings.TrimSpace(title)
	}
	return ""
}

// MoveResizeWindow moves and resizes a window to the specified geometry.
// It fails if the window no longer exists or the server rejects the request.
// Maximized windows ignore move requests on most window managers, so the
// maximized state is dropped first.
func (c *Connection) MoveResizeWindow(windowID xproto.Window, x, y, width, height int) error {
	return moveSteps{
		exists:     func() error { return c.checkWindow(windowID) },
		unmaximize: func() error { return c.unmaximizeWindow(windowID) },
		request:    func() error { return ewmh.MoveresizeWindow(c.XUtil, windowID, x, y, width, height) },
		configure:  func() error { return c.configureWindow(windowID, x, y, width, height) },
	}.run(windowID)
}

func (c *Connection) configureWindow(windowID xproto.Window, x, y, width, height int) error {
	mask := uint16(xproto.ConfigWindowX | xproto.ConfigWindowY | xproto.ConfigWindowWidth | xproto.ConfigWindowHeight)
	values := []uint32{uint32(int32(x)), uint32(int32(y)), uint32(width), uint32(height)}
	return xproto.ConfigureWindowChecked(c.XUtil.Conn(), windowID, mask, values).Check()
}

// moveSteps sequences a move: the EWMH request goes to the window manager,
// and a direct configure is used only when that request cannot be sent.
type moveSteps struct {
	exists     func() error
	unmaximize func() error
	request    func() error
	configure  func() error
}

func (s moveSteps) run(windowID xproto.Window) error {
	if err := s.exists(); err != nil {
		return err
	}
	if err := s.unmaximize(); err != nil {
		return fmt.Errorf("unmaximize %s: %w", FormatWindowID(windowID), err)
	}
	if err := s.request(); err != nil {
		if cerr := s.configure(); cerr != nil {
			return fmt.Errorf("move %s: %w (fallback: %v)", FormatWindowID(windowID), err, cerr)
		}
	}
	return nil
}

// checkWindow reports an error for windows that have been destroyed.
// Requests sent to the root window succeed regardless.
func (c *Connection) checkWindow(windowID xproto.Window) error {
	if _, err := xproto.GetGeometry(c.XUtil.Conn(), xproto.Drawable(windowID)).Reply(); err != nil {
		return fmt.Errorf("window %s: %w", FormatWindowID(windowID), err)
	}
	return nil
}

// unmaximizeWindow removes maximized state from a window. A window without
// _NET_WM_STATE is not maximized.
func (c *Connection) unmaximizeWindow(windowID xproto.Window) error {
	states, err := ewmh.WmStateGet(c.XUtil, windowID)
	if err != nil {
		return nil
	}

	for _, state := range states {
		switch state {
		case "_NET_WM_STATE_MAXIMIZED_HORZ", "_NET_WM_STATE_MAXIMIZED_VERT":
			if err := ewmh.WmStateReq(c.XUtil, windowID, 0, state); err != nil {
				return err
			}
		}
	}
	return nil
}

// FormatWindowID renders a window id the way wmctrl prints it.
func FormatWindowID(id xproto.Window) string {
	return fmt.Sprintf("0x%08x", uint32(id))
}

// ParseWindowID accepts hexadecimal ("0x03a00007") or decimal window ids.
func ParseWindowID(s string) (xproto.Window, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid window id %q: %w", s, err)
	}
	return xproto.Window(v), nil
}
