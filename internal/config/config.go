package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fankserver/meeting-transcriber/internal/jobs"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Transcriber backends
const (
	TranscriberMock       = "mock"
	TranscriberAssemblyAI = "assemblyai"
)

// TranscriberSettings selects and configures the vendor backend
type TranscriberSettings struct {
	Type            string        `yaml:"type"`
	APIKey          string        `yaml:"api_key"`
	BaseURL         string        `yaml:"base_url"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
	HTTPTimeout     time.Duration `yaml:"http_timeout"`
}

// PollSettings bounds job polling
type PollSettings struct {
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// StorageSettings locates persisted transcripts
type StorageSettings struct {
	DBPath    string `yaml:"db_path"`
	ExportDir string `yaml:"export_dir"`
}

// RedisSettings configures the optional Redis job store. An empty Addr keeps
// job records in memory.
type RedisSettings struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// WorkerSettings sizes the request queue
type WorkerSettings struct {
	Count          int           `yaml:"count"`
	QueueSize      int           `yaml:"queue_size"`
	ProcessTimeout time.Duration `yaml:"process_timeout"`
	Concurrency    int           `yaml:"concurrency"`
}

// Config holds the full application configuration
type Config struct {
	Transcriber      TranscriberSettings `yaml:"transcriber"`
	Poll             PollSettings        `yaml:"poll"`
	FallbackLanguage string              `yaml:"fallback_language"`
	Defaults         jobs.Settings       `yaml:"defaults"`
	Storage          StorageSettings     `yaml:"storage"`
	Redis            RedisSettings       `yaml:"redis"`
	Workers          WorkerSettings      `yaml:"workers"`
	LogLevel         string              `yaml:"log_level"`
}

// Default returns a Config that runs entirely locally against the mock
// backend
func Default() *Config {
	return &Config{
		Transcriber: TranscriberSettings{
			Type:            TranscriberMock,
			RateLimitPerMin: 60,
			HTTPTimeout:     2 * time.Minute,
		},
		Poll: PollSettings{
			Interval:    2 * time.Second,
			MaxAttempts: 150,
		},
		FallbackLanguage: "en",
		Defaults: jobs.Settings{
			Language:    "auto",
			Sensitivity: 50,
			Quality:     "standard",
		},
		Storage: StorageSettings{
			DBPath:    "transcripts.db",
			ExportDir: "exports",
		},
		Redis: RedisSettings{
			KeyPrefix: "transcriber",
			TTL:       7 * 24 * time.Hour,
		},
		Workers: WorkerSettings{
			Count:          2,
			QueueSize:      100,
			ProcessTimeout: 10 * time.Minute,
			Concurrency:    3,
		},
		LogLevel: "info",
	}
}

// Load builds the configuration from defaults, an optional YAML file, a
// .env file and the process environment, in increasing precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil {
		logrus.WithError(err).Debug("Error loading .env file, using environment variables")
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) loadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config %s: %w", path, err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}

	logrus.WithField("path", path).Debug("Configuration file loaded")
	return nil
}

// applyEnv overlays environment variables read through lookup
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("TRANSCRIBER_TYPE", &c.Transcriber.Type)
	str("ASSEMBLYAI_API_KEY", &c.Transcriber.APIKey)
	str("TRANSCRIBER_BASE_URL", &c.Transcriber.BaseURL)
	integer("RATE_LIMIT_RPM", &c.Transcriber.RateLimitPerMin)
	duration("POLL_INTERVAL", &c.Poll.Interval)
	integer("POLL_MAX_ATTEMPTS", &c.Poll.MaxAttempts)
	str("FALLBACK_LANGUAGE", &c.FallbackLanguage)
	str("DEFAULT_LANGUAGE", &c.Defaults.Language)
	str("DB_PATH", &c.Storage.DBPath)
	str("EXPORT_DIR", &c.Storage.ExportDir)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	integer("WORKER_COUNT", &c.Workers.Count)
	str("LOG_LEVEL", &c.LogLevel)

	return errors.Join(errs...)
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var errs []error

	c.Transcriber.Type = strings.ToLower(strings.TrimSpace(c.Transcriber.Type))
	switch c.Transcriber.Type {
	case TranscriberMock:
	case TranscriberAssemblyAI:
		if c.Transcriber.APIKey == "" {
			errs = append(errs, errors.New("transcriber: api key is required for assemblyai (ASSEMBLYAI_API_KEY)"))
		}
	default:
		errs = append(errs, fmt.Errorf("transcriber: unknown type %q (want mock or assemblyai)", c.Transcriber.Type))
	}
	if c.Transcriber.RateLimitPerMin < 0 {
		errs = append(errs, errors.New("transcriber: rate limit must not be negative"))
	}
	if c.Poll.Interval <= 0 {
		errs = append(errs, errors.New("poll: interval must be positive"))
	}
	if c.Poll.MaxAttempts <= 0 {
		errs = append(errs, errors.New("poll: max attempts must be positive"))
	}
	if strings.TrimSpace(c.FallbackLanguage) == "" || strings.EqualFold(c.FallbackLanguage, "auto") {
		errs = append(errs, errors.New("fallback language must be a concrete language code"))
	}
	if s := c.Defaults.Sensitivity; s < 0 || s > 100 {
		errs = append(errs, fmt.Errorf("defaults: sensitivity %d out of range 0-100", s))
	}
	if c.Storage.DBPath == "" {
		errs = append(errs, errors.New("storage: db path is required"))
	}
	if c.Workers.Count <= 0 {
		errs = append(errs, errors.New("workers: count must be positive"))
	}
	if c.Workers.Concurrency <= 0 {
		errs = append(errs, errors.New("workers: concurrency must be positive"))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}

	return errors.Join(errs...)
}
