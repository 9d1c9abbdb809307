package vm

import (
	"sync"
	"time"
)

// ---------------------------------------------------------------------------
// Key sources
// ---------------------------------------------------------------------------

// Named keys reported by key sources. Any other key is a single printable
// character, or KeyUnknown.
const (
	KeyEnter     = "enter"
	KeyEscape    = "escape"
	KeyTab       = "tab"
	KeyBackspace = "backspace"
	KeyLeft      = "left"
	KeyRight     = "right"
	KeyUp        = "up"
	KeyDown      = "down"
	KeyUnknown   = "unknown"
)

// KeySource yields at most one key event per poll. Poll waits no longer
// than timeout and reports ok=false when no key arrived.
type KeySource interface {
	Poll(timeout time.Duration) (key string, ok bool)
}

// NoKeys is a KeySource that never reports a key. It returns immediately.
type NoKeys struct{}

func (NoKeys) Poll(time.Duration) (string, bool) { return "", false }

// ScriptedKeys replays a fixed key sequence, one entry per poll. An empty
// entry means no key on that poll; polls past the end report no key.
//
// If Limit is positive, Stop is called during the Limit-th poll. Wiring
// Stop to a context's cancel function makes a forever loop run exactly
// Limit iterations.
type ScriptedKeys struct {
	Keys  []string
	Limit int
	Stop  func()

	mu    sync.Mutex
	polls int
}

// NewScriptedKeys returns a source that replays keys.
func NewScriptedKeys(keys ...string) *ScriptedKeys {
	return &ScriptedKeys{Keys: keys}
}

func (s *ScriptedKeys) Poll(time.Duration) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.polls
	s.polls++
	if s.Limit > 0 && s.polls == s.Limit && s.Stop != nil {
		s.Stop()
	}
	if i >= len(s.Keys) || s.Keys[i] == "" {
		return "", false
	}
	return s.Keys[i], true
}

// Polls returns how many times Poll has been called.
func (s *ScriptedKeys) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}
