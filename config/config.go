package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultModelPath = "mask_detector.onnx"
	DefaultPoolSize  = 2

	BackendONNX   = "onnxruntime"
	BackendOpenCV = "opencv"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Camera CameraConfig `yaml:"camera"`
	Model  ModelConfig  `yaml:"model"`
	Stream StreamConfig `yaml:"stream"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type CameraConfig struct {
	Device int `yaml:"device"`
}

type ModelConfig struct {
	Path        string `yaml:"path"`
	Backend     string `yaml:"backend"`
	InputName   string `yaml:"input_name"`  // discovered from the model when empty
	OutputName  string `yaml:"output_name"` // discovered from the model when empty
	LibraryPath string `yaml:"library_path"`
	PoolSize    int    `yaml:"pool_size"`
	Threads     int    `yaml:"threads"` // 0 picks from the CPU count
}

type StreamConfig struct {
	ReadErrorDelay           time.Duration `yaml:"read_error_delay"`
	MaxConsecutiveReadErrors int           `yaml:"max_consecutive_read_errors"` // 0 = unlimited
	JPEGQuality              int           `yaml:"jpeg_quality"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Camera: CameraConfig{Device: 0},
		Model: ModelConfig{
			Path:     DefaultModelPath,
			Backend:  BackendONNX,
			PoolSize: DefaultPoolSize,
		},
		Stream: StreamConfig{
			ReadErrorDelay: 100 * time.Millisecond,
			JPEGQuality:    85,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path on top of the defaults.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid config %s: %v", path, problems)
	}

	return cfg, nil
}

// Validate returns a list of problems, or nil if the config is usable.
func (c *Config) Validate() []string {
	var problems []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, "server.port must be between 1 and 65535")
	}
	if c.Camera.Device < 0 {
		problems = append(problems, "camera.device must not be negative")
	}
	if c.Model.Path == "" {
		problems = append(problems, "model.path is required")
	}
	if c.Model.Backend != BackendONNX && c.Model.Backend != BackendOpenCV {
		problems = append(problems, "model.backend must be onnxruntime or opencv")
	}
	if c.Model.PoolSize < 1 {
		problems = append(problems, "model.pool_size must be at least 1")
	}
	if c.Model.Threads < 0 {
		problems = append(problems, "model.threads must not be negative")
	}
	if c.Stream.ReadErrorDelay < 0 {
		problems = append(problems, "stream.read_error_delay must not be negative")
	}
	if c.Stream.MaxConsecutiveReadErrors < 0 {
		problems = append(problems, "stream.max_consecutive_read_errors must not be negative")
	}
	if c.Stream.JPEGQuality < 1 || c.Stream.JPEGQuality > 100 {
		problems = append(problems, "stream.jpeg_quality must be between 1 and 100")
	}

	return problems
}

// Addr returns the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
