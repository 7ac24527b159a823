//go:build !linux

package platform

import "errors"

func newX11Backend(Options) (Backend, error) {
	return nil, errors.New("x11 backend is only available on linux")
}
