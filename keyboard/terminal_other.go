//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package keyboard

import (
	"errors"
	"os"
	"runtime"
	"time"
)

// ErrNotTerminal is returned by Open for files that are not terminals.
var ErrNotTerminal = errors.New("keyboard: not a terminal")

// Terminal is unavailable on this platform.
type Terminal struct{}

// Open always fails on this platform.
func Open(*os.File) (*Terminal, error) {
	return nil, errors.New("keyboard: terminal keys are not supported on " + runtime.GOOS)
}

func (*Terminal) Poll(time.Duration) (string, bool) { return "", false }

func (*Terminal) Close() error { return nil }
