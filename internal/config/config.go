// Package config handles dexlens.toml configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"dexlens/internal/dexfmt"
	"dexlens/internal/jni"
	"dexlens/internal/session"
)

// FileName is the configuration file FindAndLoad looks for.
const FileName = "dexlens.toml"

// Config represents a dexlens.toml file.
type Config struct {
	Annotations bool    `toml:"annotations"`
	Strict      bool    `toml:"strict"`
	MaxDepth    int     `toml:"max_depth"`
	MaxSteps    int     `toml:"max_steps"`
	Output      Output  `toml:"output"`
	Index       Index   `toml:"index"`
	Natives     Natives `toml:"natives"`
	Signal      Signal  `toml:"signal"`

	// Path is the file the config was loaded from, empty for defaults.
	Path string `toml:"-"`
}

// Output configures where commands write results.
type Output struct {
	Format string `toml:"format"` // "json" or "cbor"
	Dir    string `toml:"dir"`
}

// Index configures the cross-reference database.
type Index struct {
	DB string `toml:"db"`
}

// Natives configures native library resolution.
type Natives struct {
	ABI     string `toml:"abi"`
	Preview int    `toml:"preview"`
}

// Signal configures the signal graph.
type Signal struct {
	Hops int `toml:"hops"` // context radius around signal methods
}

// DefaultHops is the default signal context radius.
const DefaultHops = 2

// Default returns the configuration used when no file is present.
func Default() *Config {
	c := preset()
	c.applyDefaults()
	return c
}

// preset holds the defaults a file may override with a zero value.
func preset() *Config {
	return &Config{Annotations: true, Signal: Signal{Hops: DefaultHops}}
}

func (c *Config) applyDefaults() {
	if c.MaxDepth <= 0 {
		c.MaxDepth = dexfmt.DefaultMaxDepth
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = dexfmt.DefaultMaxSteps
	}
	if c.Output.Format == "" {
		c.Output.Format = "json"
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "out"
	}
	if c.Index.DB == "" {
		c.Index.DB = "xref.db"
	}
	if c.Natives.ABI == "" {
		c.Natives.ABI = "arm64-v8a"
	}
	if c.Natives.Preview <= 0 {
		c.Natives.Preview = jni.DefaultPreview
	}
}

func (c *Config) validate() error {
	switch c.Output.Format {
	case "json", "cbor":
	default:
		return fmt.Errorf("output.format %q: want json or cbor", c.Output.Format)
	}
	if c.Signal.Hops < 0 {
		return fmt.Errorf("signal.hops %d: must not be negative", c.Signal.Hops)
	}
	return nil
}

// Load parses the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := preset()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", path, undec[0])
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	c.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a dexlens.toml file and
// loads it. Returns Default() if none is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// SessionOptions maps the config onto session.Open options.
func (c *Config) SessionOptions() session.Options {
	o := session.Options{
		Annotations: c.Annotations,
		MaxDepth:    c.MaxDepth,
		MaxSteps:    c.MaxSteps,
	}
	if c.Strict {
		o.Mode = dexfmt.ModeStrict
	}
	return o
}

// OutputPath joins name onto the output directory. Relative directories
// resolve against the config file's directory.
func (c *Config) OutputPath(name string) string {
	return filepath.Join(c.resolve(c.Output.Dir), name)
}

// DBPath returns the cross-reference database path.
func (c *Config) DBPath() string { return c.resolve(c.Index.DB) }

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) || c.Path == "" {
		return p
	}
	return filepath.Join(filepath.Dir(c.Path), p)
}
