package config

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Config holds the project config values
type Config struct {
	Env          string
	URL          string
	DatabaseName string
	BaseURL      string
	Port         string

	JWTSecret            string
	SessionTTL           time.Duration
	AccessPassphraseHash string

	CompletionProvider string
	GeminiAPIKey       string
	GeminiModel        string
	GeminiBaseURL      string
	GeminiKeyInQuery   bool
	OpenAIAPIKey       string
	OpenAIModel        string
	CompletionTimeout  time.Duration
	ChatHistory        bool

	CaptureMaxBytes  int64
	WorkspaceIdleTTL time.Duration
	RequestTimeout   time.Duration

	SendgridAPIKey    string
	ReportExportEmail string
	ReportFromEmail   string
	CloudinaryURL     string
}

// Defaults used when the matching variable is unset or unparseable
const (
	DefaultPort              = "8080"
	DefaultSessionTTL        = 12 * time.Hour
	DefaultCompletionTimeout = 30 * time.Second
	DefaultCaptureMaxBytes   = 10 << 20
	DefaultWorkspaceIdleTTL  = 30 * time.Minute
	DefaultRequestTimeout    = 45 * time.Second
)

// New sets up all config related services
func New() *Config {
	env := os.Getenv("APP_ENV")

	//setup zap logger and replace default logger
	logger, err := setLogger(env)
	if err != nil {
		logger = zap.NewExample()
	}
	defer logger.Sync()
	_ = zap.ReplaceGlobals(logger)

	return &Config{
		Env:          env,
		URL:          os.Getenv("DB_URI"),
		DatabaseName: os.Getenv("DB_NAME"),
		BaseURL:      os.Getenv("BASE_URL"),
		Port:         stringOr("PORT", DefaultPort),

		JWTSecret:            os.Getenv("JWT_SECRET"),
		SessionTTL:           durationOr("SESSION_TTL", DefaultSessionTTL),
		AccessPassphraseHash: os.Getenv("ACCESS_PASSPHRASE_HASH"),

		CompletionProvider: stringOr("COMPLETION_PROVIDER", "gemini"),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:        os.Getenv("GEMINI_MODEL"),
		GeminiBaseURL:      os.Getenv("GEMINI_BASE_URL"),
		GeminiKeyInQuery:   boolOr("GEMINI_KEY_IN_QUERY", false),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:        os.Getenv("OPENAI_MODEL"),
		CompletionTimeout:  durationOr("COMPLETION_TIMEOUT", DefaultCompletionTimeout),
		ChatHistory:        boolOr("CHAT_HISTORY", false),

		CaptureMaxBytes:  int64Or("CAPTURE_MAX_BYTES", DefaultCaptureMaxBytes),
		WorkspaceIdleTTL: durationOr("WORKSPACE_IDLE_TTL", DefaultWorkspaceIdleTTL),
		RequestTimeout:   durationOr("REQUEST_TIMEOUT", DefaultRequestTimeout),

		SendgridAPIKey:    os.Getenv("SENDGRID_API_KEY"),
		ReportExportEmail: os.Getenv("REPORT_EXPORT_EMAIL"),
		ReportFromEmail:   stringOr("REPORT_FROM_EMAIL", "no-reply@adr-reports.local"),
		CloudinaryURL:     os.Getenv("CLOUDINARY_URL"),
	}
}

func stringOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationOr(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		zap.S().Warnw("ignoring invalid duration", "key", key, "value", v)
		return def
	}
	return d
}

func boolOr(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		zap.S().Warnw("ignoring invalid bool", "key", key, "value", v)
		return def
	}
	return b
}

func int64Or(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		zap.S().Warnw("ignoring invalid integer", "key", key, "value", v)
		return def
	}
	return n
}

// ErrorStatus is a useful function that will log, write http headers and body for a
// give message, status code and err
func ErrorStatus(message string, httpStatusCode int, w http.ResponseWriter, err error) {
	zap.S().Errorw(message, "error", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
