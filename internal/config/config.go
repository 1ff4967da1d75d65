// Package config reads the service configuration from the environment.
// A .env file in the working directory is loaded automatically.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"glrssign/internal/agreement"
	"glrssign/internal/notify"
	"glrssign/internal/query"
	"glrssign/internal/storage"
)

type Config struct {
	Port           int
	SessionSecret  string
	FrontendURL    string
	AllowedOrigins []string
	AppHost        string
	SigningBaseURL string

	AgreementTTL     time.Duration
	ReminderSchedule string
	ReminderInterval time.Duration
	QueryRefresh     time.Duration
	QueryPageSize    int

	RendererURL     string
	RendererTimeout time.Duration
	Storage         storage.Config

	GoogleClientID     string
	GoogleClientSecret string
	AuthCallbackURL    string
}

// Load reads every setting, reporting all malformed values at once.
func Load() (*Config, error) {
	var errs []error
	p := parser{errs: &errs}

	cfg := &Config{
		Port:           p.int("PORT", 8080),
		SessionSecret:  os.Getenv("SESSION_SECRET"),
		FrontendURL:    strings.TrimRight(getenv("FRONTEND_URL", "http://localhost:3000"), "/"),
		AppHost:        getenv("APP_HOST", "localhost:3000"),
		AllowedOrigins: splitList(os.Getenv("ALLOWED_ORIGINS")),

		AgreementTTL:     p.duration("AGREEMENT_TTL", agreement.DefaultTTL),
		ReminderSchedule: getenv("REMINDER_SCHEDULE", notify.DefaultReminderSchedule),
		ReminderInterval: p.duration("REMINDER_INTERVAL", notify.DefaultReminderInterval),
		QueryRefresh:     p.duration("QUERY_REFRESH", query.DefaultRefresh),
		QueryPageSize:    p.int("QUERY_PAGE_SIZE", query.DefaultPageSize),

		RendererURL:     os.Getenv("RENDERER_URL"),
		RendererTimeout: p.duration("RENDERER_TIMEOUT", 30*time.Second),
		Storage: storage.Config{
			Bucket:           os.Getenv("AWS_S3_BUCKET"),
			Region:           getenv("AWS_REGION", "us-east-1"),
			EndpointURL:      os.Getenv("AWS_ENDPOINT_URL"),
			EncryptionKeyHex: os.Getenv("DOCUMENT_ENCRYPTION_KEY"),
		},

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
	}

	cfg.SigningBaseURL = getenv("SIGNING_BASE_URL", "https://"+cfg.AppHost+"/sign.html")
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{cfg.FrontendURL}
	}
	cfg.AuthCallbackURL = getenv("AUTH_CALLBACK_URL", fmt.Sprintf("http://localhost:%d/auth/google/callback", cfg.Port))

	if cfg.QueryPageSize > query.MaxPageSize {
		errs = append(errs, fmt.Errorf("QUERY_PAGE_SIZE must be at most %d", query.MaxPageSize))
	}
	if cfg.AgreementTTL <= 0 {
		errs = append(errs, errors.New("AGREEMENT_TTL must be positive"))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// RequireServer checks the settings only the HTTP API needs.
func (c *Config) RequireServer() error {
	if c.SessionSecret == "" {
		return errors.New("SESSION_SECRET is required")
	}
	return nil
}

type parser struct {
	errs *[]error
}

func (p parser) int(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: %q is not a number", key, raw))
		return def
	}
	return n
}

// duration accepts Go durations ("72h") and a day suffix ("30d").
func (p parser) duration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err == nil {
			return time.Duration(n) * 24 * time.Hour
		}
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: %q is not a duration", key, raw))
		return def
	}
	return d
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.TrimRight(part, "/"))
		}
	}
	return out
}
