//go:build !windows

package registry

import "errors"

// ErrUnsupported is returned when the live Windows registry is requested on
// another platform.
var ErrUnsupported = errors.New("the windows registry backend is only available on windows")

// NewWindows is only available on Windows.
func NewWindows(machine bool) (Store, error) {
	return nil, ErrUnsupported
}
