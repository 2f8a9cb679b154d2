package config

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported model providers
const (
	ProviderStub    = "stub"
	ProviderOpenAI  = "openai"
	ProviderBedrock = "bedrock"
)

// defaultModelNames are used when MODEL_NAME is unset
var defaultModelNames = map[string]string{
	ProviderStub:    "local-stub",
	ProviderOpenAI:  "gpt-4o-mini",
	ProviderBedrock: "anthropic.claude-3-haiku-20240307-v1:0",
}

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Model         ModelConfig
	Providers     ProvidersConfig
	Telemetry     TelemetryConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// ModelConfig selects and bounds the model call
type ModelConfig struct {
	Provider     string
	Name         string
	Timeout      time.Duration
	MaxTokens    int
	Temperature  float64
	SystemPrompt string

	// UseGemini mirrors the legacy USE_GEMINI switch. It is rejected by Validate.
	UseGemini bool
}

// ProvidersConfig holds model provider configurations
type ProvidersConfig struct {
	OpenAI  OpenAIConfig
	Bedrock BedrockConfig
	Stub    StubConfig
}

// OpenAIConfig holds OpenAI provider configuration
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

// BedrockConfig holds AWS Bedrock provider configuration
type BedrockConfig struct {
	Region string
}

// StubConfig holds the local stub model configuration
type StubConfig struct {
	Seed               uint64
	BaseLatency        time.Duration
	LongFormTokenDelay time.Duration
}

// TelemetryConfig holds trace, metric and DogStatsD export settings
type TelemetryConfig struct {
	ServiceName    string
	ServiceVersion string

	TracesExporter  string
	MetricsExporter string
	OTLPEndpoint    string
	OTLPInsecure    bool

	DogStatsDEnabled bool
	AgentHost        string
	DogStatsDPort    int

	TokenPricePer1K float64
	LogPayloads     bool
	RedactPII       bool
	MaxPayloadChars int
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	provider := strings.ToLower(getEnv("MODEL_PROVIDER", ProviderStub))

	cfg := &Config{
		Environment: getEnv("DD_ENV", getEnv("ENVIRONMENT", "development")),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 90*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Model: ModelConfig{
			Provider:     provider,
			Name:         getEnv("MODEL_NAME", defaultModelNames[provider]),
			Timeout:      getEnvAsDuration("MODEL_TIMEOUT", 30*time.Second),
			MaxTokens:    getEnvAsInt("MODEL_MAX_TOKENS", 1024),
			Temperature:  getEnvAsFloat("MODEL_TEMPERATURE", 0.7),
			SystemPrompt: getEnv("MODEL_SYSTEM_PROMPT", ""),
			UseGemini:    getEnvAsBool("USE_GEMINI", false),
		},
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{
				APIKey:  getEnv("OPENAI_API_KEY", ""),
				BaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			},
			Bedrock: BedrockConfig{
				Region: getEnv("BEDROCK_REGION", "us-east-1"),
			},
			Stub: StubConfig{
				Seed:               uint64(getEnvAsInt("STUB_SEED", 0)),
				BaseLatency:        getEnvAsDuration("STUB_BASE_LATENCY", 50*time.Millisecond),
				LongFormTokenDelay: getEnvAsDuration("STUB_LONG_FORM_TOKEN_DELAY", 2*time.Millisecond),
			},
		},
		Telemetry: TelemetryConfig{
			ServiceName:      getEnv("DD_SERVICE", "llm-blackbox"),
			ServiceVersion:   getEnv("DD_VERSION", "dev"),
			TracesExporter:   strings.ToLower(getEnv("OTEL_TRACES_EXPORTER", "none")),
			MetricsExporter:  strings.ToLower(getEnv("OTEL_METRICS_EXPORTER", "prometheus")),
			OTLPEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			OTLPInsecure:     getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			DogStatsDEnabled: getEnvAsBool("DD_DOGSTATSD_ENABLED", false),
			AgentHost:        getEnv("DD_AGENT_HOST", "localhost"),
			DogStatsDPort:    getEnvAsInt("DD_DOGSTATSD_PORT", 8125),
			TokenPricePer1K:  getEnvAsFloat("LLM_TOKEN_PRICE_PER_1K", 0.002),
			LogPayloads:      getEnvAsBool("LLM_LOG_PAYLOADS", true),
			RedactPII:        getEnvAsBool("LLM_LOG_REDACT_PII", true),
			MaxPayloadChars:  getEnvAsInt("LLM_LOG_MAX_PAYLOAD_CHARS", 4000),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Model.UseGemini {
		return fmt.Errorf("USE_GEMINI is not supported: set MODEL_PROVIDER to one of stub, openai, bedrock")
	}

	switch c.Model.Provider {
	case ProviderStub:
	case ProviderOpenAI:
		if c.Providers.OpenAI.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when MODEL_PROVIDER=openai")
		}
	case ProviderBedrock:
		if c.Providers.Bedrock.Region == "" {
			return fmt.Errorf("BEDROCK_REGION is required when MODEL_PROVIDER=bedrock")
		}
	default:
		return fmt.Errorf("unsupported model provider %q", c.Model.Provider)
	}

	if c.Model.Name == "" {
		return fmt.Errorf("model name is required")
	}
	if c.Model.Timeout <= 0 {
		return fmt.Errorf("model timeout must be positive")
	}
	if c.Model.MaxTokens < 0 {
		return fmt.Errorf("model max tokens must not be negative")
	}

	switch c.Telemetry.TracesExporter {
	case "otlp", "stdout", "none":
	default:
		return fmt.Errorf("unsupported traces exporter %q", c.Telemetry.TracesExporter)
	}
	switch c.Telemetry.MetricsExporter {
	case "prometheus", "stdout", "none":
	default:
		return fmt.Errorf("unsupported metrics exporter %q", c.Telemetry.MetricsExporter)
	}

	if c.Telemetry.TokenPricePer1K < 0 {
		return fmt.Errorf("token price must not be negative")
	}
	if c.Telemetry.DogStatsDEnabled && c.Telemetry.AgentHost == "" {
		return fmt.Errorf("DD_AGENT_HOST is required when DogStatsD is enabled")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// DogStatsDAddress returns the agent address for DogStatsD
func (c *TelemetryConfig) DogStatsDAddress() string {
	return net.JoinHostPort(c.AgentHost, strconv.Itoa(c.DogStatsDPort))
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8000)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8000
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
