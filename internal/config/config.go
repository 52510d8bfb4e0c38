package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"imagegen/internal/poller"
)

const Version = "0.1.0"

// EnvPrefix namespaces every environment override (IMAGEGEN_AUTH_TOKEN, ...).
const EnvPrefix = "imagegen"

// Credentials holds secrets loaded from credentials.toml.
type Credentials struct {
	AuthToken string `toml:"auth_token"`
}

// LoadCredentials reads credentials.toml. Returns an empty Credentials if
// the file does not exist. Warns if the file has insecure permissions.
func LoadCredentials() (*Credentials, error) {
	path, err := CredentialsPath()
	if err != nil {
		return &Credentials{}, nil
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return &Credentials{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat credentials: %w", err)
	}

	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		slog.Warn("credentials file has insecure permissions",
			"path", path, "mode", fmt.Sprintf("%04o", perm))
	}

	creds := &Credentials{}
	if _, err := toml.DecodeFile(path, creds); err != nil {
		return nil, fmt.Errorf("decode credentials %s: %w", path, err)
	}
	return creds, nil
}

// SaveCredentials writes credentials.toml with 0600 permissions.
func SaveCredentials(creds *Credentials) error {
	path, err := CredentialsPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(creds); err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), fs.FileMode(0o600)); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

type Config struct {
	DBPath       string `toml:"db_path"`
	LogLevel     string `toml:"log_level"`
	LogFile      string `toml:"log_file"`
	DownloadDir  string `toml:"download_dir"`
	DefaultModel string `toml:"default_model"`

	API           APIConfig           `toml:"api"`
	Poll          PollConfig          `toml:"poll"`
	Resume        ResumeConfig        `toml:"resume"`
	Notifications NotificationsConfig `toml:"notifications"`

	Models []ModelConfig `toml:"models"`

	// Resolved at runtime (not in TOML).
	BaseDir string `toml:"-"`
}

type APIConfig struct {
	// SubmitURL may contain a {model} placeholder for model-routed endpoints.
	SubmitURL      string `toml:"submit_url"`
	StatusURL      string `toml:"status_url"`
	AuthScheme     string `toml:"auth_scheme"`
	AuthToken      string `toml:"auth_token"`
	RequestTimeout string `toml:"request_timeout"`
}

type PollConfig struct {
	Interval       string `toml:"interval"`
	MaxAttempts    int    `toml:"max_attempts"`
	RetryBaseDelay string `toml:"retry_base_delay"`
	Timeout        string `toml:"timeout"`
}

type ResumeConfig struct {
	Workers int `toml:"workers"`
}

type NotificationsConfig struct {
	WebhookURL   string   `toml:"webhook_url"`
	SlackWebhook string   `toml:"slack_webhook"`
	Desktop      bool     `toml:"desktop"`
	Triggers     []string `toml:"triggers"`
}

type ModelConfig struct {
	ID    string `toml:"id"`
	Label string `toml:"label"`
}

const (
	TriggerJobComplete = "job_complete"
	TriggerJobFailed   = "job_failed"
)

var defaultNotificationTriggers = []string{
	TriggerJobComplete,
	TriggerJobFailed,
}

const (
	DefaultStatusURL    = "https://api.beam.cloud/v1/task"
	DefaultAuthScheme   = "Basic"
	DefaultPollInterval = poller.DefaultInterval
)

var defaultModels = []ModelConfig{
	{ID: "sdxl-turbo", Label: "SDXL Turbo"},
	{ID: "realistic-vision-xl-4", Label: "Realistic Vision XL 4.0"},
	{ID: "sdxxxl-v3", Label: "SDXXXL v3.0"},
}

// envOverrides are read with envconfig after credentials.toml and .env.
type envOverrides struct {
	AuthToken    string `envconfig:"AUTH_TOKEN"`
	SubmitURL    string `envconfig:"SUBMIT_URL"`
	StatusURL    string `envconfig:"STATUS_URL"`
	PollInterval string `envconfig:"POLL_INTERVAL"`
	DBPath       string `envconfig:"DB_PATH"`
}

// Load reads the config file at path. An empty path means no config file:
// defaults plus credentials and environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
		cfg.BaseDir = filepath.Dir(path)
	} else if wd, err := os.Getwd(); err == nil {
		cfg.BaseDir = wd
	}
	fileToken := cfg.API.AuthToken
	applyDefaults(cfg)
	if err := applyCredentialsAndEnv(cfg); err != nil {
		return nil, err
	}
	if fileToken != "" {
		slog.Warn("auth token found in config file; prefer credentials.toml or IMAGEGEN_AUTH_TOKEN env var")
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	resolvePaths(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.DBPath == "" {
		if d, err := DataDir(); err == nil {
			cfg.DBPath = filepath.Join(d, "imagegen.db")
		} else {
			cfg.DBPath = "imagegen.db"
		}
	}
	if cfg.LogFile == "" {
		if d, err := StateDir(); err == nil {
			cfg.LogFile = filepath.Join(d, "imagegen.log")
		} else {
			cfg.LogFile = "imagegen.log"
		}
	}
	if cfg.DownloadDir == "" {
		if d, err := DataDir(); err == nil {
			cfg.DownloadDir = filepath.Join(d, "images")
		} else {
			cfg.DownloadDir = "images"
		}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.API.StatusURL == "" {
		cfg.API.StatusURL = DefaultStatusURL
	}
	if cfg.API.AuthScheme == "" {
		cfg.API.AuthScheme = DefaultAuthScheme
	}
	if cfg.API.RequestTimeout == "" {
		cfg.API.RequestTimeout = "30s"
	}
	if cfg.Poll.Interval == "" {
		cfg.Poll.Interval = DefaultPollInterval.String()
	}
	if cfg.Poll.MaxAttempts == 0 {
		cfg.Poll.MaxAttempts = 3
	}
	if cfg.Poll.RetryBaseDelay == "" {
		cfg.Poll.RetryBaseDelay = "500ms"
	}
	if cfg.Poll.Timeout == "" {
		cfg.Poll.Timeout = "0s"
	}
	if cfg.Resume.Workers == 0 {
		cfg.Resume.Workers = 3
	}
	if cfg.Notifications.Triggers == nil {
		cfg.Notifications.Triggers = slices.Clone(defaultNotificationTriggers)
	}
	if len(cfg.Models) == 0 {
		cfg.Models = slices.Clone(defaultModels)
	}
	if cfg.DefaultModel == "" {
		// The second model is preselected when none is configured.
		if len(cfg.Models) > 1 {
			cfg.DefaultModel = cfg.Models[1].ID
		} else {
			cfg.DefaultModel = cfg.Models[0].ID
		}
	}
}

// applyCredentialsAndEnv layers secrets and overrides.
// Priority (highest → lowest): env > .env > credentials.toml > config file.
func applyCredentialsAndEnv(cfg *Config) error {
	creds, err := LoadCredentials()
	if err != nil {
		slog.Warn("failed to load credentials", "error", err)
	}
	if creds != nil && creds.AuthToken != "" {
		cfg.API.AuthToken = creds.AuthToken
	}

	loadDotEnv(cfg.BaseDir)

	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	if env.AuthToken != "" {
		cfg.API.AuthToken = env.AuthToken
	}
	if env.SubmitURL != "" {
		cfg.API.SubmitURL = env.SubmitURL
	}
	if env.StatusURL != "" {
		cfg.API.StatusURL = env.StatusURL
	}
	if env.PollInterval != "" {
		cfg.Poll.Interval = env.PollInterval
	}
	if env.DBPath != "" {
		cfg.DBPath = env.DBPath
	}
	return nil
}

// loadDotEnv loads .env next to the config file. Variables already present
// in the process environment are left alone.
func loadDotEnv(dir string) {
	if dir == "" {
		return
	}
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		slog.Warn("failed to load .env", "path", path, "error", err)
	}
}

func validate(cfg *Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log_level: %q", cfg.LogLevel)
	}
	if cfg.API.SubmitURL != "" {
		candidate := strings.ReplaceAll(cfg.API.SubmitURL, "{model}", "model")
		if err := validateHTTPURL(candidate); err != nil {
			return fmt.Errorf("invalid api.submit_url: %w", err)
		}
	}
	if err := validateHTTPURL(cfg.API.StatusURL); err != nil {
		return fmt.Errorf("invalid api.status_url: %w", err)
	}
	if strings.TrimSpace(cfg.API.AuthScheme) == "" || strings.ContainsAny(cfg.API.AuthScheme, " \t") {
		return fmt.Errorf("invalid api.auth_scheme: %q", cfg.API.AuthScheme)
	}
	if _, err := time.ParseDuration(cfg.API.RequestTimeout); err != nil {
		return fmt.Errorf("invalid api.request_timeout %q: %w", cfg.API.RequestTimeout, err)
	}
	interval, err := time.ParseDuration(cfg.Poll.Interval)
	if err != nil {
		return fmt.Errorf("invalid poll.interval %q: %w", cfg.Poll.Interval, err)
	}
	if interval < 100*time.Millisecond {
		return fmt.Errorf("poll.interval must be at least 100ms, got %s", interval)
	}
	if cfg.Poll.MaxAttempts < 1 {
		return fmt.Errorf("poll.max_attempts must be at least 1, got %d", cfg.Poll.MaxAttempts)
	}
	if _, err := time.ParseDuration(cfg.Poll.RetryBaseDelay); err != nil {
		return fmt.Errorf("invalid poll.retry_base_delay %q: %w", cfg.Poll.RetryBaseDelay, err)
	}
	if d, err := time.ParseDuration(cfg.Poll.Timeout); err != nil || d < 0 {
		return fmt.Errorf("invalid poll.timeout %q", cfg.Poll.Timeout)
	}
	if cfg.Resume.Workers < 1 {
		return fmt.Errorf("resume.workers must be at least 1, got %d", cfg.Resume.Workers)
	}
	normalizedTriggers, err := validateNotificationsConfig(cfg.Notifications)
	if err != nil {
		return err
	}
	cfg.Notifications.Triggers = normalizedTriggers

	seen := make(map[string]struct{}, len(cfg.Models))
	for i, m := range cfg.Models {
		id := strings.TrimSpace(m.ID)
		if id == "" {
			return fmt.Errorf("models[%d]: id is required", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("models[%d]: duplicate id %q", i, id)
		}
		seen[id] = struct{}{}
		cfg.Models[i].ID = id
		if strings.TrimSpace(m.Label) == "" {
			cfg.Models[i].Label = id
		}
	}
	if _, ok := cfg.ModelByID(cfg.DefaultModel); !ok {
		return fmt.Errorf("default_model %q is not in [[models]]", cfg.DefaultModel)
	}
	return nil
}

// ErrNoSubmitURL is returned by RequireAPI when no submission endpoint is set.
var ErrNoSubmitURL = errors.New("api.submit_url is not configured (set it in config.toml or IMAGEGEN_SUBMIT_URL)")

// RequireAPI reports whether the config can talk to the inference API.
// Commands that only read local history do not need it.
func (cfg *Config) RequireAPI() error {
	if strings.TrimSpace(cfg.API.SubmitURL) == "" {
		return ErrNoSubmitURL
	}
	if strings.TrimSpace(cfg.API.AuthToken) == "" {
		slog.Warn("no auth token configured; requests will be sent without credentials")
	}
	return nil
}

func validateNotificationsConfig(cfg NotificationsConfig) ([]string, error) {
	if cfg.WebhookURL != "" {
		if err := validateHTTPURL(cfg.WebhookURL); err != nil {
			return nil, fmt.Errorf("invalid notifications.webhook_url: %w", err)
		}
	}
	if cfg.SlackWebhook != "" {
		if err := validateHTTPURL(cfg.SlackWebhook); err != nil {
			return nil, fmt.Errorf("invalid notifications.slack_webhook: %w", err)
		}
	}
	normalized, err := normalizeTriggers(cfg.Triggers)
	if err != nil {
		return nil, fmt.Errorf("invalid notifications.triggers: %w", err)
	}
	return normalized, nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must use http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

func normalizeTriggers(triggers []string) ([]string, error) {
	out := make([]string, 0, len(triggers))
	seen := make(map[string]struct{}, len(triggers))
	for i, trigger := range triggers {
		normalized := strings.ToLower(strings.TrimSpace(trigger))
		if normalized == "" {
			return nil, fmt.Errorf("trigger at index %d is empty", i)
		}
		switch normalized {
		case TriggerJobComplete, TriggerJobFailed:
		default:
			return nil, fmt.Errorf("unsupported trigger %q", normalized)
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out, nil
}

func resolvePaths(cfg *Config) {
	cfg.DBPath = absPath(cfg.BaseDir, cfg.DBPath)
	cfg.DownloadDir = absPath(cfg.BaseDir, cfg.DownloadDir)
	if cfg.LogFile != "" {
		cfg.LogFile = absPath(cfg.BaseDir, cfg.LogFile)
	}
}

func absPath(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// ModelByID looks up a configured model.
func (cfg *Config) ModelByID(id string) (ModelConfig, bool) {
	for _, m := range cfg.Models {
		if m.ID == id {
			return m, true
		}
	}
	return ModelConfig{}, false
}

// ModelIDs returns model ids in configured order.
func (cfg *Config) ModelIDs() []string {
	ids := make([]string, len(cfg.Models))
	for i, m := range cfg.Models {
		ids[i] = m.ID
	}
	return ids
}

func (cfg *Config) PollInterval() time.Duration {
	d, _ := time.ParseDuration(cfg.Poll.Interval)
	return d
}

func (cfg *Config) PollRetryBaseDelay() time.Duration {
	d, _ := time.ParseDuration(cfg.Poll.RetryBaseDelay)
	return d
}

func (cfg *Config) PollTimeout() time.Duration {
	d, _ := time.ParseDuration(cfg.Poll.Timeout)
	return d
}

func (cfg *Config) RequestTimeout() time.Duration {
	d, _ := time.ParseDuration(cfg.API.RequestTimeout)
	return d
}

func (cfg *Config) SlogLevel() slog.Level {
	switch cfg.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
