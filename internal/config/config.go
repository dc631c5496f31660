package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Transcription failure policies for responses saved without a transcript.
const (
	TranscriptionDegrade = "degrade"
	TranscriptionFail    = "fail"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Interview   InterviewConfig           `json:"interview"`
	Media       MediaConfig               `json:"media"`
	Events      EventsConfig              `json:"events"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

type BasicConfig struct {
	ServerAddress      string `json:"server_address"`
	MinWorkers         int    `json:"min_workers"`
	MaxWorkers         int    `json:"max_workers"`
	QueueSize          int    `json:"queue_size"`
	WorkerIdleTimeout  int    `json:"worker_idle_timeout"`  // minutes
	TokenSweepInterval int    `json:"token_sweep_interval"` // minutes
	TokenTTL           int    `json:"token_ttl"`            // hours
	MaxUploadMB        int64  `json:"max_upload_mb"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// InterviewConfig selects the AI provider for interview sessions and the
// server-side transcription policy ("degrade" or "fail").
type InterviewConfig struct {
	Provider             string `json:"provider"`
	Model                string `json:"model"`
	TranscribeOnSave     bool   `json:"transcribe_on_save"`
	TranscriptionFailure string `json:"transcription_failure"`
}

type MediaConfig struct {
	Driver        string `json:"driver"` // "local" or "s3"
	BaseDir       string `json:"base_dir"`
	Bucket        string `json:"bucket"`
	Region        string `json:"region"`
	AccountID     string `json:"account_id"`
	Endpoint      string `json:"endpoint"`
	AccessKey     string `json:"access_key"`
	SecretKey     string `json:"secret_key"`
	PublicBaseURL string `json:"public_base_url"`
}

type EventsConfig struct {
	AMQPURL  string `json:"amqp_url"`
	Exchange string `json:"exchange"`
}

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.normalize(filepath.Dir(absPath)); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize(baseDir string) error {
	if len(c.Databases) == 0 {
		return errors.New("at least one database must be configured")
	}
	for name, db := range c.Databases {
		switch strings.ToLower(name) {
		case "sqlite", "sqlite3":
			if db.DSN != "" && db.DSN != ":memory:" && !strings.HasPrefix(db.DSN, "file:") && !filepath.IsAbs(db.DSN) {
				db.DSN = filepath.Join(baseDir, db.DSN)
				c.Databases[name] = db
			}
		}
	}

	switch c.Interview.TranscriptionFailure {
	case "":
		c.Interview.TranscriptionFailure = TranscriptionDegrade
	case TranscriptionDegrade, TranscriptionFail:
	default:
		return fmt.Errorf("unknown transcription_failure policy %q", c.Interview.TranscriptionFailure)
	}
	if c.Interview.Provider == "" {
		c.Interview.Provider = "gemini"
	}

	if c.Media.Driver == "" {
		c.Media.Driver = "local"
	}
	if c.Media.Driver == "local" && c.Media.BaseDir != "" && !filepath.IsAbs(c.Media.BaseDir) {
		c.Media.BaseDir = filepath.Join(baseDir, c.Media.BaseDir)
	}
	if c.Events.Exchange == "" {
		c.Events.Exchange = "interview_updates"
	}
	return nil
}
