// Package manifest handles kestrel.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked up next to scripts.
const FileName = "kestrel.toml"

// Key source names accepted by [run] keys.
const (
	KeysTerminal = "terminal"
	KeysNone     = "none"
)

// Manifest represents a kestrel.toml project configuration.
type Manifest struct {
	Project    Project          `toml:"project"`
	Run        RunConfig        `toml:"run"`
	Log        LogConfig        `toml:"log"`
	Transcript TranscriptConfig `toml:"transcript"`
	Test       TestConfig       `toml:"test"`

	// Dir is the directory containing the kestrel.toml file (set at load
	// time). Empty for the built-in defaults.
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name  string `toml:"name"`
	Entry string `toml:"entry"`
}

// RunConfig tunes the forever loop.
type RunConfig struct {
	PollTimeout Duration `toml:"poll-timeout"`
	Yield       Duration `toml:"yield"`
	Keys        string   `toml:"keys"`
}

// LogConfig configures commonlog output.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// TranscriptConfig configures the say-line transcript store.
type TranscriptConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// TestConfig configures conformance fixtures.
type TestConfig struct {
	Fixtures string `toml:"fixtures"`
}

// Duration is a time.Duration written as a string such as "10ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("negative duration %s", text)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no kestrel.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Run.PollTimeout.Duration == 0 {
		m.Run.PollTimeout.Duration = 10 * time.Millisecond
	}
	if m.Run.Yield.Duration == 0 {
		m.Run.Yield.Duration = 5 * time.Millisecond
	}
	if m.Run.Keys == "" {
		m.Run.Keys = KeysTerminal
	}
	if m.Log.Level == "" {
		m.Log.Level = "warning"
	}
	if m.Transcript.Path == "" {
		m.Transcript.Path = filepath.Join(".kestrel", "transcript.db")
	}
	if m.Test.Fixtures == "" {
		m.Test.Fixtures = "testdata"
	}
}

func (m *Manifest) validate() error {
	switch m.Run.Keys {
	case KeysTerminal, KeysNone:
	default:
		return fmt.Errorf("run.keys must be %q or %q, got %q", KeysTerminal, KeysNone, m.Run.Keys)
	}
	if _, err := Verbosity(m.Log.Level); err != nil {
		return err
	}
	return nil
}

// Load parses a kestrel.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: cannot read %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("manifest: %s: %w", path, err)
	}
	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("manifest: cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse decodes manifest text and fills in defaults.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %s", undecoded[0])
	}
	m.applyDefaults()
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a kestrel.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Resolve makes a manifest-relative path absolute. Absolute paths and the
// defaults manifest (no Dir) leave p unchanged.
func (m *Manifest) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// EntryPath returns the absolute path of the project entry script, or ""
// if none is configured.
func (m *Manifest) EntryPath() string {
	return m.Resolve(m.Project.Entry)
}

// TranscriptPath returns the transcript database location.
func (m *Manifest) TranscriptPath() string {
	return m.Resolve(m.Transcript.Path)
}

// FixturesDir returns the fixture directory used by kes test.
func (m *Manifest) FixturesDir() string {
	return m.Resolve(m.Test.Fixtures)
}

// LogFile returns the log file path, or "" for stderr.
func (m *Manifest) LogFile() string {
	return m.Resolve(m.Log.File)
}

// Verbosity maps a log level name to a commonlog verbosity.
func Verbosity(level string) (int, error) {
	switch level {
	case "none":
		return -4, nil
	case "critical":
		return -3, nil
	case "error":
		return -2, nil
	case "warning":
		return -1, nil
	case "notice":
		return 0, nil
	case "info":
		return 1, nil
	case "debug":
		return 2, nil
	}
	return 0, fmt.Errorf("unknown log level %q", level)
}
