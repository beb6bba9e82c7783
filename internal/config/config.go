package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values come from env (or a .env file loaded by main).
// No business logic should depend on raw environment variables.
type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	Storage       StorageConfig
	Transcription TranscriptionConfig
	LLM           LLMConfig
	Analysis      AnalysisConfig
}

type AppConfig struct {
	Env  string
	Port int

	// PublicBaseURL is the externally reachable origin used for webhook
	// callbacks and reference-storage signed URLs.
	PublicBaseURL string

	// DemoUserID is the fixed pseudo-user every request acts as.
	DemoUserID string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type StorageConfig struct {
	GCSBucket          string
	GCSCredentialsFile string

	// SigningSecret signs reference-storage URLs.
	SigningSecret string
}

type TranscriptionConfig struct {
	AssemblyAIKey     string
	AssemblyAIBaseURL string
	WebhookSecret     string
	WebhookHeader     string
}

type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string

	// RoleInference enables content-based speaker role detection.
	RoleInference bool
}

type AnalysisConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

const devSigningSecret = "local-dev-storage-signing-secret"

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port, parseErrs = optionalInt(parseErrs, "APP_PORT")
	c.App.PublicBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), "/")
	c.App.DemoUserID = strings.TrimSpace(os.Getenv("DEMO_USER_ID"))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port, parseErrs = optionalInt(parseErrs, "DB_PORT")
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port, parseErrs = optionalInt(parseErrs, "REDIS_PORT")

	c.Storage.GCSBucket = strings.TrimSpace(os.Getenv("GCS_BUCKET"))
	c.Storage.GCSCredentialsFile = strings.TrimSpace(os.Getenv("GCS_CREDENTIALS_FILE"))
	c.Storage.SigningSecret = os.Getenv("STORAGE_SIGNING_SECRET")

	c.Transcription.AssemblyAIKey = strings.TrimSpace(os.Getenv("ASSEMBLYAI_API_KEY"))
	c.Transcription.AssemblyAIBaseURL = strings.TrimSpace(os.Getenv("ASSEMBLYAI_BASE_URL"))
	c.Transcription.WebhookSecret = os.Getenv("TRANSCRIPTION_WEBHOOK_SECRET")
	c.Transcription.WebhookHeader = strings.TrimSpace(os.Getenv("TRANSCRIPTION_WEBHOOK_HEADER"))

	c.LLM.APIKey = strings.TrimSpace(os.Getenv("LLM_API_KEY"))
	c.LLM.BaseURL = strings.TrimSpace(os.Getenv("LLM_BASE_URL"))
	c.LLM.Model = strings.TrimSpace(os.Getenv("LLM_MODEL"))
	c.LLM.RoleInference, parseErrs = optionalBool(parseErrs, "LLM_ROLE_INFERENCE")

	c.Analysis.Workers, parseErrs = optionalInt(parseErrs, "ANALYSIS_WORKERS")
	c.Analysis.QueueSize, parseErrs = optionalInt(parseErrs, "ANALYSIS_QUEUE_SIZE")
	c.Analysis.Timeout, parseErrs = optionalDuration(parseErrs, "ANALYSIS_TIMEOUT")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate applies env-specific defaults and reports every problem at once.
// Production must be explicit about persistence, the dedup store and webhook
// authentication; other envs fall back to in-memory and mock components.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port == 0 {
		c.App.Port = 8080
	}
	if c.App.Port < 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.PublicBaseURL == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("PUBLIC_BASE_URL is required in production"))
		} else {
			c.App.PublicBaseURL = fmt.Sprintf("http://localhost:%d", c.App.Port)
		}
	} else if u, err := url.Parse(c.App.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("PUBLIC_BASE_URL must be an absolute url, got %q", c.App.PublicBaseURL))
	}
	if c.App.DemoUserID == "" {
		c.App.DemoUserID = "demo-user"
	}

	errs = append(errs, c.validateDB()...)

	if c.Redis.Host == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("REDIS_HOST is required in production"))
		}
	} else {
		if c.Redis.Port == 0 {
			c.Redis.Port = 6379
		}
		if c.Redis.Port < 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	}

	if (c.Storage.GCSBucket == "") != (c.Storage.GCSCredentialsFile == "") {
		errs = append(errs, errors.New("GCS_BUCKET and GCS_CREDENTIALS_FILE must be set together"))
	}
	if !c.UseGCS() && c.Storage.SigningSecret == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("STORAGE_SIGNING_SECRET is required in production without GCS"))
		} else {
			c.Storage.SigningSecret = devSigningSecret
		}
	}

	if c.Transcription.WebhookHeader == "" {
		c.Transcription.WebhookHeader = "X-Webhook-Secret"
	}
	if c.IsProduction() && c.Transcription.WebhookSecret == "" {
		errs = append(errs, errors.New("TRANSCRIPTION_WEBHOOK_SECRET is required in production"))
	}

	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}

	if c.Analysis.Workers == 0 {
		c.Analysis.Workers = 2
	}
	if c.Analysis.QueueSize == 0 {
		c.Analysis.QueueSize = 64
	}
	if c.Analysis.Timeout == 0 {
		c.Analysis.Timeout = 3 * time.Minute
	}
	if c.Analysis.Workers < 0 || c.Analysis.QueueSize < 0 || c.Analysis.Timeout < 0 {
		errs = append(errs, errors.New("ANALYSIS_WORKERS, ANALYSIS_QUEUE_SIZE and ANALYSIS_TIMEOUT must be positive"))
	}

	return joinErrors(errs)
}

func (c *Config) validateDB() []error {
	var errs []error
	if c.DB.Host == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_HOST is required in production"))
		}
		return errs
	}
	if c.DB.Port == 0 {
		c.DB.Port = 5432
	}
	if c.DB.Port < 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// WebhookURL is the callback address handed to the transcription provider.
func (c Config) WebhookURL() string {
	return c.App.PublicBaseURL + "/webhooks/transcription"
}

func (c Config) UseDB() bool         { return c.DB.Host != "" }
func (c Config) UseRedis() bool      { return c.Redis.Host != "" }
func (c Config) UseGCS() bool        { return c.Storage.GCSBucket != "" && c.Storage.GCSCredentialsFile != "" }
func (c Config) UseAssemblyAI() bool { return c.Transcription.AssemblyAIKey != "" }
func (c Config) UseLLM() bool        { return c.LLM.APIKey != "" }

// PostgresDSN must not be logged; it contains secrets.
func (c Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DB.User, c.DB.Password),
		Host:     net.JoinHostPort(c.DB.Host, strconv.Itoa(c.DB.Port)),
		Path:     "/" + c.DB.Name,
		RawQuery: url.Values{"sslmode": []string{c.DB.SSLMode}}.Encode(),
	}
	return u.String()
}

func (c Config) RedisAddr() string {
	return net.JoinHostPort(c.Redis.Host, strconv.Itoa(c.Redis.Port))
}

func optionalInt(errs []error, key string) (int, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n, errs
}

func optionalBool(errs []error, key string) (bool, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, errs
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, append(errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
	}
	return b, errs
}

func optionalDuration(errs []error, key string) (time.Duration, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be a duration, got %q", key, v))
	}
	return d, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
