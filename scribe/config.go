package scribe

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Ernesto385291/vexa-googlestt/audio"
)

// Config drives the scribe service. It is loaded from a YAML file; absent
// fields keep their defaults.
type Config struct {
	// HTTPAddr is the listen address for the transcript API and the
	// WebSocket live feed.
	HTTPAddr string `yaml:"http_addr"`

	// WatchDir is watched for new WAV files to transcribe.
	WatchDir string `yaml:"watch_dir"`

	// Workers bounds how many files are transcribed concurrently.
	Workers int `yaml:"workers"`

	// ChunkBytes is the recognition chunk size.
	ChunkBytes int `yaml:"chunk_bytes"`

	// Recognition settings.
	Language        string `yaml:"language"`
	CredentialsFile string `yaml:"credentials_file"`
	Punctuation     bool   `yaml:"punctuation"`
	InterimResults  bool   `yaml:"interim_results"`

	// Optional TLS for the HTTP surface. Both must be set to enable it.
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

func DefaultConfig() Config {
	return Config{
		HTTPAddr:       ":8444",
		WatchDir:       "recordings",
		Workers:        2,
		ChunkBytes:     audio.FrameBytes,
		Language:       "es-SV",
		Punctuation:    true,
		InterimResults: true,
	}
}

// LoadConfig reads a YAML config file over the defaults. An empty path
// returns the defaults untouched.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.WatchDir == "" {
		return fmt.Errorf("config: watch_dir must not be empty")
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.ChunkBytes <= 0 {
		c.ChunkBytes = audio.FrameBytes
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return fmt.Errorf("config: cert_file and key_file must be set together")
	}
	return nil
}
