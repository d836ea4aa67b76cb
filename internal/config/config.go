package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	PublicBaseURL  string
	LogLevel       string
	UseMemoryQueue bool
	WorkerCount    int
	DatabaseURL    string

	// WhatsApp Cloud API
	WhatsAppVerifyToken   string
	WhatsAppAccessToken   string
	WhatsAppPhoneNumberID string
	WhatsAppAppSecret     string
	WhatsAppAPIVersion    string
	WhatsAppBaseURL       string
	WhatsAppMaxRetries    int
	WhatsAppTimeout       time.Duration

	// CRM defaults
	DefaultTenantID    string
	DefaultFunnelName  string
	DefaultColumnName  string
	DefaultCountryCode string

	// Media storage
	MediaBucket        string
	MediaPublicBaseURL string
	MediaURLTTL        time.Duration
	MediaMaxBytes      int64

	// Agent
	BedrockModelID          string
	BedrockEmbeddingModelID string
	GeminiAPIKey            string
	GeminiModelID           string
	AgentHistoryLimit       int
	AgentMaxTokens          int32
	RAGMinSimilarity        float64
	RAGTopK                 int
	ProjectCacheTTL         time.Duration

	// Notifications
	NotifyWebhookURL  string
	NotifyEmailTo     string
	NotifyMaxAttempts int
	NotifyBaseDelay   time.Duration
	SESFromEmail      string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	OperatorJWTSecret string

	// Infrastructure
	InboxQueueURL       string
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	RedisAddr           string
	RedisPassword       string
	RedisTLS            bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		PublicBaseURL:  getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),
		DatabaseURL:    getEnv("DATABASE_URL", ""),

		WhatsAppVerifyToken:   getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppAccessToken:   getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppPhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppAppSecret:     getEnv("WHATSAPP_APP_SECRET", ""),
		WhatsAppAPIVersion:    getEnv("WHATSAPP_API_VERSION", "v21.0"),
		WhatsAppBaseURL:       getEnv("WHATSAPP_BASE_URL", "https://graph.facebook.com"),
		WhatsAppMaxRetries:    getEnvAsInt("WHATSAPP_MAX_RETRIES", 3),
		WhatsAppTimeout:       getEnvAsDuration("WHATSAPP_TIMEOUT", 15*time.Second),

		DefaultTenantID:    getEnv("DEFAULT_TENANT_ID", ""),
		DefaultFunnelName:  strings.TrimSpace(getEnv("DEFAULT_FUNNEL_NAME", "")),
		DefaultColumnName:  getEnv("DEFAULT_COLUMN_NAME", "Novo lead"),
		DefaultCountryCode: getEnv("DEFAULT_COUNTRY_CODE", "55"),

		MediaBucket:        getEnv("MEDIA_BUCKET", ""),
		MediaPublicBaseURL: strings.TrimRight(getEnv("MEDIA_PUBLIC_BASE_URL", ""), "/"),
		MediaURLTTL:        getEnvAsDuration("MEDIA_URL_TTL", 7*24*time.Hour),
		MediaMaxBytes:      int64(getEnvAsInt("MEDIA_MAX_BYTES", 25<<20)),

		BedrockModelID:          getEnv("BEDROCK_MODEL_ID", ""),
		BedrockEmbeddingModelID: getEnv("BEDROCK_EMBEDDING_MODEL_ID", "amazon.titan-embed-text-v2:0"),
		GeminiAPIKey:            getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:           getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		AgentHistoryLimit:       getEnvAsInt("AGENT_HISTORY_LIMIT", 12),
		AgentMaxTokens:          int32(getEnvAsInt("AGENT_MAX_TOKENS", 512)),
		RAGMinSimilarity:        getEnvAsFloat("RAG_MIN_SIMILARITY", 0.75),
		RAGTopK:                 getEnvAsInt("RAG_TOP_K", 4),
		ProjectCacheTTL:         getEnvAsDuration("PROJECT_CACHE_TTL", 5*time.Minute),

		NotifyWebhookURL:  getEnv("NOTIFY_WEBHOOK_URL", ""),
		NotifyEmailTo:     getEnv("NOTIFY_EMAIL_TO", ""),
		NotifyMaxAttempts: getEnvAsInt("NOTIFY_MAX_ATTEMPTS", 3),
		NotifyBaseDelay:   getEnvAsDuration("NOTIFY_BASE_DELAY", 500*time.Millisecond),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Realty Inbox"),
		OperatorJWTSecret: getEnv("OPERATOR_JWT_SECRET", ""),

		InboxQueueURL:       getEnv("INBOX_QUEUE_URL", ""),
		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		RedisAddr:           getEnv("REDIS_ADDR", ""),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisTLS:            getEnvAsBool("REDIS_TLS", false),
	}
}

// Validate reports every missing variable the inbound pipeline cannot start without.
func (c *Config) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"DATABASE_URL", c.DatabaseURL},
		{"WHATSAPP_VERIFY_TOKEN", c.WhatsAppVerifyToken},
		{"WHATSAPP_ACCESS_TOKEN", c.WhatsAppAccessToken},
		{"WHATSAPP_PHONE_NUMBER_ID", c.WhatsAppPhoneNumberID},
		{"DEFAULT_FUNNEL_NAME", c.DefaultFunnelName},
	}
	var errs []error
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Errorf("config: %s is required", r.key))
		}
	}
	if !c.UseMemoryQueue && c.InboxQueueURL == "" {
		errs = append(errs, errors.New("config: INBOX_QUEUE_URL is required unless USE_MEMORY_QUEUE=true"))
	}
	return errors.Join(errs...)
}

// LoadDotEnv loads variables from the given files (default ".env") without
// overriding anything already set. Missing files are not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
