// Package config loads application configuration from the environment,
// optionally overlaid on a YAML file, and hot-reloads daily limits.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"north-backend/application/limits"
	"north-backend/pkg/utils"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string `yaml:"server_address"`
	Environment   string `yaml:"environment" validate:"oneof=development production test"`
	LogLevel      string `yaml:"log_level" validate:"oneof=debug info warn error"`
	ConfigFile    string `yaml:"-"`
	IsLambda      bool   `yaml:"-"`

	// Storage
	StoreBackend     string `yaml:"store_backend" validate:"oneof=dynamodb sqlite memory"`
	TableName        string `yaml:"table_name"`
	SQLitePath       string `yaml:"sqlite_path"`
	AWSRegion        string `yaml:"aws_region"`
	DynamoDBEndpoint string `yaml:"dynamodb_endpoint"`
	EventBusName     string `yaml:"event_bus_name"`

	// Language model
	LLMProvider      string        `yaml:"llm_provider" validate:"oneof=gemini anthropic mock"`
	GeminiAPIKey     string        `yaml:"gemini_api_key"`
	GeminiModel      string        `yaml:"gemini_model"`
	AnthropicAPIKey  string        `yaml:"anthropic_api_key"`
	AnthropicModel   string        `yaml:"anthropic_model"`
	AnthropicBaseURL string        `yaml:"anthropic_base_url"`
	LLMTimeout       time.Duration `yaml:"llm_timeout" validate:"gt=0"`
	LLMMaxRetries    int           `yaml:"llm_max_retries" validate:"min=0"`
	LLMRetryDelay    time.Duration `yaml:"llm_retry_delay" validate:"min=0"`
	PromptLanguage   string        `yaml:"prompt_language" validate:"required"`

	// Quotas
	Limits   limits.Caps `yaml:"limits"`
	MaxTrees int         `yaml:"max_trees" validate:"min=0"`

	// Authentication
	JWTSecret            string   `yaml:"jwt_secret"`
	JWTPublicKey         string   `yaml:"jwt_public_key"`
	JWTIssuer            string   `yaml:"jwt_issuer"`
	JWTAudience          []string `yaml:"jwt_audience"`
	AuthInsecureEmulator bool     `yaml:"auth_insecure_emulator"`
	CORSOrigins          []string `yaml:"cors_origins"`

	// Observability
	EnableMetrics bool   `yaml:"enable_metrics"`
	EnableTracing bool   `yaml:"enable_tracing"`
	OTLPEndpoint  string `yaml:"otlp_endpoint"`

	// Research
	BrowserBin      string        `yaml:"browser_bin"`
	BrowserMaxPages int64         `yaml:"browser_max_pages" validate:"min=0"`
	ResearchTimeout time.Duration `yaml:"research_timeout" validate:"min=0"`
}

// Per-action daily caps used when none is configured.
const (
	defaultLimit           = 3
	defaultProductionLimit = 100
)

func defaults() *Config {
	return &Config{
		ServerAddress:    ":8080",
		Environment:      "development",
		LogLevel:         "info",
		StoreBackend:     "memory",
		TableName:        "north",
		SQLitePath:       "data/north.db",
		AWSRegion:        "us-west-2",
		LLMProvider:      "gemini",
		GeminiModel:      "gemini-2.5-flash",
		AnthropicModel:   "claude-sonnet-4-5",
		AnthropicBaseURL: "https://api.anthropic.com/v1",
		LLMTimeout:       300 * time.Second,
		LLMMaxRetries:    3,
		LLMRetryDelay:    2 * time.Second,
		PromptLanguage:   "Japanese",
		MaxTrees:         10,
		CORSOrigins:      []string{"*"},
		EnableMetrics:    true,
		BrowserMaxPages:  2,
		ResearchTimeout:  60 * time.Second,
	}
}

// LoadConfig builds the configuration from defaults, then the YAML file
// named by CONFIG_FILE, then environment variables.
func LoadConfig() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
		cfg.ConfigFile = path
	}
	cfg.applyEnv()
	cfg.applyLimitDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is an alias for LoadConfig
func Load() (*Config, error) {
	return LoadConfig()
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ServerAddress = getEnv("SERVER_ADDRESS", c.ServerAddress)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.IsLambda = os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""

	c.StoreBackend = getEnv("STORE_BACKEND", c.StoreBackend)
	c.TableName = getEnv("TABLE_NAME", c.TableName)
	c.SQLitePath = getEnv("SQLITE_PATH", c.SQLitePath)
	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)
	c.DynamoDBEndpoint = getEnv("DYNAMODB_ENDPOINT", c.DynamoDBEndpoint)
	c.EventBusName = getEnv("EVENT_BUS_NAME", c.EventBusName)

	c.LLMProvider = getEnv("LLM_PROVIDER", c.LLMProvider)
	c.GeminiAPIKey = getEnv("GEMINI_API_KEY", c.GeminiAPIKey)
	c.GeminiModel = getEnv("GEMINI_MODEL", c.GeminiModel)
	c.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", c.AnthropicAPIKey)
	c.AnthropicModel = getEnv("ANTHROPIC_MODEL", c.AnthropicModel)
	c.AnthropicBaseURL = getEnv("ANTHROPIC_BASE_URL", c.AnthropicBaseURL)
	c.LLMTimeout = getEnvDuration("LLM_TIMEOUT", c.LLMTimeout)
	c.LLMMaxRetries = getEnvInt("LLM_MAX_RETRIES", c.LLMMaxRetries)
	c.LLMRetryDelay = getEnvDuration("LLM_RETRY_DELAY", c.LLMRetryDelay)
	c.PromptLanguage = getEnv("PROMPT_LANGUAGE", c.PromptLanguage)

	c.Limits.Decompose = getEnvInt("LIMIT_DECOMPOSE", c.Limits.Decompose)
	c.Limits.Refine = getEnvInt("LIMIT_REFINE", c.Limits.Refine)
	c.Limits.Research = getEnvInt("LIMIT_RESEARCH", c.Limits.Research)
	c.MaxTrees = getEnvInt("MAX_TREES", c.MaxTrees)

	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.JWTPublicKey = getEnv("JWT_PUBLIC_KEY", c.JWTPublicKey)
	c.JWTIssuer = getEnv("JWT_ISSUER", c.JWTIssuer)
	c.JWTAudience = getEnvList("JWT_AUDIENCE", c.JWTAudience)
	c.AuthInsecureEmulator = getEnvBool("AUTH_INSECURE_EMULATOR", c.AuthInsecureEmulator)
	c.CORSOrigins = getEnvList("CORS_ORIGINS", c.CORSOrigins)

	c.EnableMetrics = getEnvBool("ENABLE_METRICS", c.EnableMetrics)
	c.EnableTracing = getEnvBool("ENABLE_TRACING", c.EnableTracing)
	c.OTLPEndpoint = getEnv("OTLP_ENDPOINT", c.OTLPEndpoint)

	c.BrowserBin = getEnv("BROWSER_BIN", c.BrowserBin)
	c.BrowserMaxPages = int64(getEnvInt("BROWSER_MAX_PAGES", int(c.BrowserMaxPages)))
	c.ResearchTimeout = getEnvDuration("RESEARCH_TIMEOUT", c.ResearchTimeout)
}

// applyLimitDefaults fills caps left unset (zero or negative) with the
// environment's default.
func (c *Config) applyLimitDefaults() {
	def := defaultLimit
	if c.IsProduction() {
		def = defaultProductionLimit
	}
	for _, limit := range []*int{&c.Limits.Decompose, &c.Limits.Refine, &c.Limits.Research} {
		if *limit <= 0 {
			*limit = def
		}
	}
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	switch c.LLMProvider {
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when LLM_PROVIDER is gemini")
		}
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when LLM_PROVIDER is anthropic")
		}
	}

	switch c.StoreBackend {
	case "dynamodb":
		if c.TableName == "" {
			return fmt.Errorf("TABLE_NAME is required for the dynamodb store")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	}

	if c.IsProduction() {
		if c.AuthInsecureEmulator {
			return fmt.Errorf("AUTH_INSECURE_EMULATOR cannot be enabled in production")
		}
		if c.JWTSecret == "" && c.JWTPublicKey == "" {
			return fmt.Errorf("JWT_SECRET or JWT_PUBLIC_KEY is required in production")
		}
		if c.StoreBackend == "memory" {
			return fmt.Errorf("the memory store cannot be used in production")
		}
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
