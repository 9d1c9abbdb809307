//go:build linux || darwin || freebsd || netbsd || openbsd

package keyboard

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Terminal is a vm.KeySource reading keys from a terminal. The terminal is
// switched to non-canonical, no-echo input on the first poll; signal keys
// stay enabled so Ctrl-C still interrupts. Close restores the saved state.
type Terminal struct {
	fd  int
	log commonlog.Logger

	mu        sync.Mutex
	saved     *term.State
	enableErr error // set once enable fails; Poll then reports no keys
	pending   []byte
	buf       [64]byte
}

// ErrNotTerminal is returned by Open for files that are not terminals.
var ErrNotTerminal = errors.New("keyboard: not a terminal")

// Open prepares f for key polling. It does not change terminal modes yet.
func Open(f *os.File) (*Terminal, error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("%w: %s", ErrNotTerminal, f.Name())
	}
	return &Terminal{fd: fd, log: commonlog.GetLogger("kestrel.keyboard")}, nil
}

// enable saves the terminal state and turns off line buffering and echo.
func (t *Terminal) enable() error {
	saved, err := term.GetState(t.fd)
	if err != nil {
		return fmt.Errorf("keyboard: get state: %w", err)
	}
	tio, err := unix.IoctlGetTermios(t.fd, ioctlGetTermios)
	if err != nil {
		return fmt.Errorf("keyboard: get termios: %w", err)
	}
	tio.Lflag &^= unix.ICANON | unix.ECHO
	tio.Cc[unix.VMIN] = 0
	tio.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(t.fd, ioctlSetTermios, tio); err != nil {
		return fmt.Errorf("keyboard: set termios: %w", err)
	}
	t.saved = saved
	t.log.Debug("terminal input mode enabled")
	return nil
}

// Poll waits up to timeout for input and returns one key. Bytes beyond the
// first key are kept for later polls.
func (t *Terminal) Poll(timeout time.Duration) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.enableErr != nil {
		return "", false
	}
	if t.saved == nil {
		if err := t.enable(); err != nil {
			t.enableErr = err
			t.log.Errorf("%s; key tests will see no keys", err)
			return "", false
		}
	}
	if len(t.pending) == 0 {
		if !t.wait(timeout) {
			return "", false
		}
		n, err := unix.Read(t.fd, t.buf[:])
		if err != nil || n <= 0 {
			if err != nil && err != unix.EINTR && err != unix.EAGAIN {
				t.log.Warningf("keyboard: read: %s", err)
			}
			return "", false
		}
		t.pending = append(t.pending, t.buf[:n]...)
	}

	key, n := Decode(t.pending)
	t.pending = t.pending[n:]
	return key, n > 0
}

func (t *Terminal) wait(timeout time.Duration) bool {
	fds := []unix.PollFd{{Fd: int32(t.fd), Events: unix.POLLIN}}
	ms := int(timeout / time.Millisecond)
	n, err := unix.Poll(fds, ms)
	if err != nil {
		if err != unix.EINTR {
			t.log.Warningf("keyboard: poll: %s", err)
		}
		return false
	}
	return n > 0 && fds[0].Revents&unix.POLLIN != 0
}

// Close restores the terminal state saved by the first poll.
func (t *Terminal) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.saved == nil {
		return nil
	}
	err := term.Restore(t.fd, t.saved)
	t.saved = nil
	t.pending = nil
	if err != nil {
		return fmt.Errorf("keyboard: restore: %w", err)
	}
	t.log.Debug("terminal input mode restored")
	return nil
}
