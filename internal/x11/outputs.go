package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
)

// Output is an active RandR output and the CRTC driving it.
type Output struct {
	Name    string
	Primary bool
	X       int
	Y       int
	Width   int
	Height  int

	crtc randr.Crtc
}

// Outputs retrieves all active outputs using XRandR, in CRTC order.
func (c *Connection) Outputs() ([]Output, error) {
	resources, err := randr.GetScreenResources(c.XUtil.Conn(), c.Root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get screen resources: %w", err)
	}
	return c.outputs(resources)
}

func (c *Connection) outputs(resources *randr.GetScreenResourcesReply) ([]Output, error) {
	var primary randr.Output
	if reply, err := randr.GetOutputPrimary(c.XUtil.Conn(), c.Root).Reply(); err == nil {
		primary = reply.Output
	}

	var outputs []Output
	for i, crtc := range resources.Crtcs {
		crtcInfo, err := randr.GetCrtcInfo(c.XUtil.Conn(), crtc, resources.ConfigTimestamp).Reply()
		if err != nil {
			continue
		}

		// Skip disabled CRTCs
		if crtcInfo.Width == 0 || crtcInfo.Height == 0 || len(crtcInfo.Outputs) == 0 {
			continue
		}

		name := fmt.Sprintf("CRTC%d", i)
		outputInfo, err := randr.GetOutputInfo(c.XUtil.Conn(), crtcInfo.Outputs[0], resources.ConfigTimestamp).Reply()
		if err == nil {
			name = string(outputInfo.Name)
		}

		isPrimary := false
		for _, o := range crtcInfo.Outputs {
			if primary != 0 && o == primary {
				isPrimary = true
			}
		}

		outputs = append(outputs, Output{
			Name:    name,
			Primary: isPrimary,
			X:       int(crtcInfo.X),
			Y:       int(crtcInfo.Y),
			Width:   int(crtcInfo.Width),
			Height:  int(crtcInfo.Height),
			crtc:    crtc,
		})
	}

	return outputs, nil
}

// SetOutputPosition moves the named output to (x, y), keeping its mode and
// rotation. The screen is grown first when the new layout does not fit.
func (c *Connection) SetOutputPosition(name string, x, y int) error {
	conn := c.XUtil.Conn()
	resources, err := randr.GetScreenResources(conn, c.Root).Reply()
	if err != nil {
		return fmt.Errorf("failed to get screen resources: %w", err)
	}
	outputs, err := c.outputs(resources)
	if err != nil {
		return err
	}

	var target *Output
	for i := range outputs {
		if outputs[i].Name == name {
			target = &outputs[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("output %s is not active", name)
	}

	info, err := randr.GetCrtcInfo(conn, target.crtc, resources.ConfigTimestamp).Reply()
	if err != nil {
		return fmt.Errorf("failed to get crtc info for %s: %w", name, err)
	}

	if err := c.growScreen(screenBounds(outputs, name, x, y)); err != nil {
		return err
	}

	reply, err := randr.SetCrtcConfig(conn, target.crtc, xproto.TimeCurrentTime, resources.ConfigTimestamp,
		int16(x), int16(y), info.Mode, info.Rotation, info.Outputs).Reply()
	if err != nil {
		return fmt.Errorf("failed to configure crtc for %s: %w", name, err)
	}
	if reply.Status != randr.SetConfigSuccess {
		return fmt.Errorf("failed to configure crtc for %s: status %d", name, reply.Status)
	}
	return nil
}

// growScreen enlarges the root window to at least width x height.
func (c *Connection) growScreen(width, height int) error {
	root, err := xproto.GetGeometry(c.XUtil.Conn(), xproto.Drawable(c.Root)).Reply()
	if err != nil {
		return fmt.Errorf("failed to get root geometry: %w", err)
	}
	curW, curH := int(root.Width), int(root.Height)
	if width <= curW && height <= curH {
		return nil
	}
	width = max(width, curW)
	height = max(height, curH)

	screen := c.XUtil.Screen()
	mmW := scaleMillimeters(width, int(screen.WidthInPixels), int(screen.WidthInMillimeters))
	mmH := scaleMillimeters(height, int(screen.HeightInPixels), int(screen.HeightInMillimeters))

	return randr.SetScreenSizeChecked(c.XUtil.Conn(), c.Root,
		uint16(width), uint16(height), uint32(mmW), uint32(mmH)).Check()
}

// screenBounds returns the extent of all outputs once name sits at (x, y).
func screenBounds(outputs []Output, name string, x, y int) (int, int) {
	width, height := 0, 0
	for _, o := range outputs {
		ox, oy := o.X, o.Y
		if o.Name == name {
			ox, oy = x, y
		}
		width = max(width, ox+o.Width)
		height = max(height, oy+o.Height)
	}
	return width, height
}

// scaleMillimeters keeps the physical DPI of the screen when it is resized.
func scaleMillimeters(pixels, refPixels, refMillimeters int) int {
	if refPixels <= 0 || refMillimeters <= 0 {
		// 96 DPI
		return pixels * 254 / 960
	}
	return pixels * refMillimeters / refPixels
}
