package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Paths      PathsConfig      `yaml:"paths"`
	Processing ProcessingConfig `yaml:"processing"`
}

// ServerConfig holds dashboard server settings
type ServerConfig struct {
	Listen string `yaml:"listen"`
	DBPath string `yaml:"db_path"`
}

// PathsConfig holds default directory settings
type PathsConfig struct {
	ExtractDir string `yaml:"extract_dir"`
	LogDirName string `yaml:"log_dir_name"`
}

// ProcessingConfig holds reconstruction engine settings
type ProcessingConfig struct {
	ChunkSize          int64         `yaml:"chunk_size"`
	LargeFileThreshold int64         `yaml:"large_file_threshold"`
	ProgressInterval   int           `yaml:"progress_interval"`
	StallTimeout       time.Duration `yaml:"stall_timeout"`
	ScaffoldPrefixes   []string      `yaml:"scaffold_prefixes"`
	ContentRoots       []string      `yaml:"content_roots"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen: "127.0.0.1:8080",
			DBPath: "",
		},
		Paths: PathsConfig{
			ExtractDir: "",
			LogDirName: "takeback_logs",
		},
		Processing: ProcessingConfig{
			ChunkSize:          1 << 20,   // 1 MiB
			LargeFileThreshold: 100 << 20, // 100 MB
			ProgressInterval:   100,
			StallTimeout:       5 * time.Minute,
			ScaffoldPrefixes:   []string{"Takeout"},
			ContentRoots:       []string{"Drive"},
		},
	}
}

// Load reads a config file from the given path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks config values that would break a run if left nonsensical.
func (c *Config) Validate() error {
	if c.Processing.ChunkSize <= 0 {
		return fmt.Errorf("processing.chunk_size must be positive, got %d", c.Processing.ChunkSize)
	}
	if c.Processing.LargeFileThreshold <= 0 {
		return fmt.Errorf("processing.large_file_threshold must be positive, got %d", c.Processing.LargeFileThreshold)
	}
	if c.Processing.ProgressInterval <= 0 {
		return fmt.Errorf("processing.progress_interval must be positive, got %d", c.Processing.ProgressInterval)
	}
	return nil
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() (string, error) {
	searchPaths := []string{
		"takeback.yaml",
		"/etc/takeback/takeback.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(home, ".config", "takeback", "takeback.yaml"),
		)
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", searchPaths)
}

// LogDir returns the run log directory adjacent to a destination directory.
// Manifests and error logs for a rebuild of destDir live here.
func (c *Config) LogDir(destDir string) string {
	return filepath.Join(filepath.Dir(destDir), c.Paths.LogDirName)
}
