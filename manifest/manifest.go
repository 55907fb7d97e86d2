// Package manifest handles kumir.toml run configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/chazu/kumir/pkg/actor"
	"github.com/chazu/kumir/pkg/bytecode"
	"github.com/chazu/kumir/runner"
)

// FileName is the name of the configuration file.
const FileName = "kumir.toml"

// Manifest represents a kumir.toml configuration.
type Manifest struct {
	Run Run `toml:"run"`
	Log Log `toml:"log"`

	// Dir is the directory containing the kumir.toml file (set at load time).
	Dir string `toml:"-"`
}

// Run configures program execution.
type Run struct {
	WorkDir      string `toml:"work-dir"`
	Encoding     string `toml:"encoding"`
	StopMarker   string `toml:"stop-marker"`
	MaxCallDepth int    `toml:"max-call-depth"`
	Trace        bool   `toml:"trace"`
	Seed         uint64 `toml:"seed"`
}

// Log configures logging.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the configuration used when no kumir.toml exists.
func Default(dir string) *Manifest {
	m := &Manifest{Dir: dir}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Run.StopMarker == "" {
		m.Run.StopMarker = bytecode.DefaultStopMarker
	}
	if m.Run.MaxCallDepth == 0 {
		m.Run.MaxCallDepth = bytecode.DefaultMaxCallDepth
	}
	if m.Run.Encoding == "" {
		m.Run.Encoding = "utf-8"
	}
}

// Load parses a kumir.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	if m.Run.MaxCallDepth < 0 {
		return fmt.Errorf("max-call-depth must be positive, got %d", m.Run.MaxCallDepth)
	}
	if _, err := actor.LookupEncoding(m.Run.Encoding); err != nil {
		return fmt.Errorf("encoding: %w", err)
	}
	return nil
}

// FindAndLoad walks up from startDir to find a kumir.toml file,
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
			return nil, nil
		}
		dir = parent
	}
}

// WorkDirPath returns the configured working directory, resolved against
// the manifest directory. It is empty when none is configured.
func (m *Manifest) WorkDirPath() string {
	if m.Run.WorkDir == "" {
		return ""
	}
	if filepath.IsAbs(m.Run.WorkDir) {
		return m.Run.WorkDir
	}
	return filepath.Join(m.Dir, m.Run.WorkDir)
}

// LogFilePath returns the configured log file resolved against the
// manifest directory, or "" to log to stderr.
func (m *Manifest) LogFilePath() string {
	if m.Log.File == "" || filepath.IsAbs(m.Log.File) {
		return m.Log.File
	}
	return filepath.Join(m.Dir, m.Log.File)
}

// RunOptions converts the [run] section to runner options.
func (m *Manifest) RunOptions() runner.Options {
	return runner.Options{
		WorkDir:      m.WorkDirPath(),
		Encoding:     m.Run.Encoding,
		StopMarker:   m.Run.StopMarker,
		MaxCallDepth: m.Run.MaxCallDepth,
		Trace:        m.Run.Trace,
		Seed:         m.Run.Seed,
	}
}
