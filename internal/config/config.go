package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-cvstream/pkg/cascade"
	"github.com/teslashibe/go-cvstream/pkg/engine"
	"github.com/teslashibe/go-cvstream/pkg/stream"
)

// Defaults.
const (
	DefaultPort         = "8080"
	DefaultFrameFormat  = ".jpg"
	DefaultMaxBodyBytes = 16 * 1024 * 1024
)

// Config holds server configuration.
type Config struct {
	// Port is the HTTP listen port.
	Port string `yaml:"port"`

	// Source is the capture source for /ws/video: a device index or a
	// file/URL. Empty disables the video feed.
	Source string `yaml:"source"`

	// DataDir is where the bundled cascade files live.
	DataDir string `yaml:"data_dir"`

	LogLevel string `yaml:"log_level"`

	// MaxBodyBytes limits request bodies.
	MaxBodyBytes int `yaml:"max_body_bytes"`

	Stream   StreamConfig    `yaml:"stream"`
	Detect   DetectConfig    `yaml:"detect"`
	Cascades []CascadeConfig `yaml:"cascades"`
}

// StreamConfig tunes the stream adapters.
type StreamConfig struct {
	// Buffer is the inbox and events channel capacity.
	Buffer int `yaml:"buffer"`

	// FrameFormat is the extension video frames are encoded with.
	FrameFormat string `yaml:"frame_format"`
}

// DetectConfig holds the detection options. Zero values mean the engine
// default.
type DetectConfig struct {
	Scale     float64 `yaml:"scale"`
	Neighbors int     `yaml:"neighbors"`
	MinWidth  int     `yaml:"min_width"`
	MinHeight int     `yaml:"min_height"`
}

// Options converts c to engine detection options.
func (c DetectConfig) Options() engine.DetectOptions {
	return engine.DetectOptions{
		Scale:     c.Scale,
		Neighbors: c.Neighbors,
		MinWidth:  c.MinWidth,
		MinHeight: c.MinHeight,
	}
}

// CascadeConfig registers an extra cascade. Path wins over File; File is
// resolved under DataDir.
type CascadeConfig struct {
	Name string `yaml:"name"`
	File string `yaml:"file"`
	Path string `yaml:"path"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Port:         DefaultPort,
		DataDir:      cascade.DefaultDataDir,
		LogLevel:     "info",
		MaxBodyBytes: DefaultMaxBodyBytes,
		Stream: StreamConfig{
			Buffer:      stream.DefaultBuffer,
			FrameFormat: DefaultFrameFormat,
		},
	}
}

// Load builds a configuration: defaults, then the YAML file at path if
// path is non-empty, then environment variables.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv() {
	c.Port = Port(c.Port)
	c.Source = Source(c.Source)
	c.DataDir = DataDir(c.DataDir)
	if l := os.Getenv(EnvLogLevel); l != "" {
		c.LogLevel = l
	}
}

// Registry builds the cascade registry: the bundled cascades under
// DataDir plus the configured extras.
func (c *Config) Registry() *cascade.Registry {
	r := cascade.NewRegistry(c.DataDir)
	for _, cc := range c.Cascades {
		r.Add(cascade.Cascade{Name: cc.Name, FileName: cc.File, Path: cc.Path})
	}
	return r
}

// Validate checks the configuration and returns a list of problems.
func (c *Config) Validate() []string {
	var errors []string

	if c.Port == "" {
		errors = append(errors, "port is required")
	}
	if c.MaxBodyBytes <= 0 {
		errors = append(errors, "max_body_bytes must be positive")
	}
	if c.Stream.Buffer < 0 {
		errors = append(errors, "stream.buffer must not be negative")
	}
	validFormats := map[string]bool{".jpg": true, ".jpeg": true, ".png": true}
	if !validFormats[c.Stream.FrameFormat] {
		errors = append(errors, "stream.frame_format must be .jpg, .jpeg, or .png")
	}
	if c.Detect.Scale != 0 && c.Detect.Scale <= 1 {
		errors = append(errors, "detect.scale must be greater than 1")
	}
	if c.Detect.Neighbors < 0 || c.Detect.MinWidth < 0 || c.Detect.MinHeight < 0 {
		errors = append(errors, "detect sizes and neighbors must not be negative")
	}

	seen := make(map[string]bool)
	for i, cc := range c.Cascades {
		if cc.Name == "" {
			errors = append(errors, fmt.Sprintf("cascades[%d]: name is required", i))
		}
		if cc.File == "" && cc.Path == "" {
			errors = append(errors, fmt.Sprintf("cascades[%d]: file or path is required", i))
		}
		if seen[cc.Name] {
			errors = append(errors, fmt.Sprintf("cascades[%d]: duplicate name %q", i, cc.Name))
		}
		seen[cc.Name] = true
	}

	return errors
}
