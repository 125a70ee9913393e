package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "DEAL_ASSISTANT_"

type StorageBackend string

const (
	StorageMemory    StorageBackend = "memory"
	StorageSQLite    StorageBackend = "sqlite"
	StorageFirestore StorageBackend = "firestore"
)

type SpeechMode string

const (
	SpeechOff    SpeechMode = "off"
	SpeechMock   SpeechMode = "mock"
	SpeechGemini SpeechMode = "gemini"
)

type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	CRM  CRMConfig  `yaml:"crm"`
	Chat ChatConfig `yaml:"chat"`

	// DefaultVariant is used when a session is started without one.
	DefaultVariant string        `yaml:"default_variant"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
	SessionTTL     time.Duration `yaml:"session_ttl"`

	Policy PolicyConfig `yaml:"policy"`

	Storage StorageConfig `yaml:"storage"`
	GCP     GCPConfig     `yaml:"gcp"`
	Speech  SpeechMode    `yaml:"speech"`

	// StateSecret signs the hosted deal-chat state tokens. Empty disables the
	// hosted endpoint.
	StateSecret string        `yaml:"state_secret"`
	StateTTL    time.Duration `yaml:"state_ttl"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type CRMConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

type ChatConfig struct {
	// URL of a remote deal-chat endpoint. Empty means the delegated variant
	// talks to the hosted endpoint in-process.
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

type PolicyConfig struct {
	LenientAmount     bool     `yaml:"lenient_amount"`
	ValidateCloseDate bool     `yaml:"validate_close_date"`
	Stages            []string `yaml:"stages"`
}

type StorageConfig struct {
	Backend StorageBackend `yaml:"backend"`
	SQLite  string         `yaml:"sqlite_dsn"`
}

type GCPConfig struct {
	ProjectID string `yaml:"project_id"`
	Location  string `yaml:"location"`
	ModelName string `yaml:"model_name"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

func Default() *Config {
	return &Config{
		Port:           "8080",
		LogLevel:       "info",
		CRM:            CRMConfig{BaseURL: "http://localhost:8000"},
		DefaultVariant: "local",
		CallTimeout:    15 * time.Second,
		SessionTTL:     30 * time.Minute,
		Storage:        StorageConfig{Backend: StorageMemory, SQLite: "deal-assistant.db"},
		GCP:            GCPConfig{Location: "us-central1", ModelName: "gemini-2.5-flash"},
		Speech:         SpeechMock,
		StateTTL:       24 * time.Hour,
		RateLimit:      RateLimitConfig{RPS: 5, Burst: 10},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(envPrefix + key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return def
	}
	if v == "1" || v == "true" || v == "TRUE" {
		return true
	}
	return false
}

func getDurationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return d, nil
}

// Load builds the config from defaults, then the YAML file named by path
// (or DEAL_ASSISTANT_CONFIG when path is empty), then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	// PORT is what most container platforms set.
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	c.Port = getEnv("PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.CRM.BaseURL = getEnv("CRM_URL", c.CRM.BaseURL)
	c.CRM.Token = getEnv("CRM_TOKEN", c.CRM.Token)
	c.Chat.URL = getEnv("CHAT_URL", c.Chat.URL)
	c.Chat.Token = getEnv("CHAT_TOKEN", c.Chat.Token)
	c.DefaultVariant = getEnv("VARIANT", c.DefaultVariant)

	c.Policy.LenientAmount = getBoolEnv("LENIENT_AMOUNT", c.Policy.LenientAmount)
	c.Policy.ValidateCloseDate = getBoolEnv("VALIDATE_CLOSE_DATE", c.Policy.ValidateCloseDate)
	if v := getEnv("STAGES", ""); v != "" {
		c.Policy.Stages = splitList(v)
	}

	c.Storage.Backend = StorageBackend(getEnv("STORAGE_BACKEND", string(c.Storage.Backend)))
	c.Storage.SQLite = getEnv("SQLITE_DSN", c.Storage.SQLite)

	c.GCP.ProjectID = getEnv("GCP_PROJECT", c.GCP.ProjectID)
	c.GCP.Location = getEnv("GCP_LOCATION", c.GCP.Location)
	c.GCP.ModelName = getEnv("MODEL_NAME", c.GCP.ModelName)
	c.Speech = SpeechMode(getEnv("SPEECH", string(c.Speech)))

	c.StateSecret = getEnv("STATE_SECRET", c.StateSecret)

	var err error
	if c.CallTimeout, err = getDurationEnv("CALL_TIMEOUT", c.CallTimeout); err != nil {
		return err
	}
	if c.SessionTTL, err = getDurationEnv("SESSION_TTL", c.SessionTTL); err != nil {
		return err
	}
	if c.StateTTL, err = getDurationEnv("STATE_TTL", c.StateTTL); err != nil {
		return err
	}

	if v := getEnv("RATE_LIMIT_RPS", ""); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sRATE_LIMIT_RPS: %w", envPrefix, err)
		}
		c.RateLimit.RPS = rps
	}
	if v := getEnv("RATE_LIMIT_BURST", ""); v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sRATE_LIMIT_BURST: %w", envPrefix, err)
		}
		c.RateLimit.Burst = burst
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.CRM.BaseURL) == "" {
		errs = append(errs, errors.New("crm base url must be set"))
	}
	switch c.DefaultVariant {
	case "local", "delegated":
	default:
		errs = append(errs, fmt.Errorf("unknown default variant %q", c.DefaultVariant))
	}
	switch c.Storage.Backend {
	case StorageMemory, StorageSQLite:
	case StorageFirestore:
		if c.GCP.ProjectID == "" {
			errs = append(errs, errors.New("gcp project must be set for firestore storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	switch c.Speech {
	case SpeechOff, SpeechMock:
	case SpeechGemini:
		if c.GCP.ProjectID == "" {
			errs = append(errs, errors.New("gcp project must be set for gemini speech"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown speech mode %q", c.Speech))
	}
	if c.CallTimeout <= 0 {
		errs = append(errs, errors.New("call timeout must be positive"))
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("rate limit must not be negative"))
	}

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
