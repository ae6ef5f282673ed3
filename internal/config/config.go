package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the grading service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	EventSubjectPrefix     string
	JWTSecret              string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	OpenAIAPIKey           string
	OpenAIBaseURL          string
	OpenAIModel            string
	OracleTimeout          time.Duration
	FetchTimeout           time.Duration
	FetchMaxBytes          int64
	MaxUploadMB            int
	PassbackTimeout        time.Duration
	PassbackPlatforms      []string
	AGSTokenURL            string
	AGSClientID            string
	AGSClientSecret        string
	ReleaseSweepInterval   time.Duration
	ReleaseLockTTL         time.Duration
	SeedEnabled            bool
	SeedToken              string
	SubmissionRateLimit    int
	CORSAllowOrigins       string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// PassbackEnabledFor reports whether grades for the platform are posted back.
func (c Config) PassbackEnabledFor(platform string) bool {
	platform = strings.ToLower(strings.TrimSpace(platform))
	if platform == "" {
		return false
	}
	for _, candidate := range c.PassbackPlatforms {
		if candidate == platform {
			return true
		}
	}
	return false
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GRADER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Grader")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("events.subject_prefix", "grader")
	v.SetDefault("cloudinary.folder", "grader/submissions")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("oracle.timeout", "60s")
	v.SetDefault("fetch.timeout", "10s")
	v.SetDefault("fetch.max_bytes", 5*1024*1024)
	v.SetDefault("upload.max_mb", 10)
	v.SetDefault("passback.timeout", "15s")
	v.SetDefault("passback.platforms", "canvas")
	v.SetDefault("release.sweep_interval", "1m")
	v.SetDefault("release.lock_ttl", "50s")
	v.SetDefault("seed.enabled", false)
	v.SetDefault("submission.rate_limit", 10)
	v.SetDefault("cors.allow_origins", "*")

	durations := map[string]time.Duration{}
	for _, key := range []string{"oracle.timeout", "fetch.timeout", "passback.timeout", "release.sweep_interval", "release.lock_ttl"} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("%s must be positive", key)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		EventSubjectPrefix:     v.GetString("events.subject_prefix"),
		JWTSecret:              v.GetString("jwt.secret"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		OpenAIAPIKey:           v.GetString("openai.api_key"),
		OpenAIBaseURL:          v.GetString("openai.base_url"),
		OpenAIModel:            v.GetString("openai.model"),
		OracleTimeout:          durations["oracle.timeout"],
		FetchTimeout:           durations["fetch.timeout"],
		FetchMaxBytes:          v.GetInt64("fetch.max_bytes"),
		MaxUploadMB:            v.GetInt("upload.max_mb"),
		PassbackTimeout:        durations["passback.timeout"],
		PassbackPlatforms:      splitList(v.GetString("passback.platforms")),
		AGSTokenURL:            v.GetString("ags.token_url"),
		AGSClientID:            v.GetString("ags.client_id"),
		AGSClientSecret:        v.GetString("ags.client_secret"),
		ReleaseSweepInterval:   durations["release.sweep_interval"],
		ReleaseLockTTL:         durations["release.lock_ttl"],
		SeedEnabled:            v.GetBool("seed.enabled"),
		SeedToken:              v.GetString("seed.token"),
		SubmissionRateLimit:    v.GetInt("submission.rate_limit"),
		CORSAllowOrigins:       v.GetString("cors.allow_origins"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("database url must be provided")
	}

	if cfg.SeedEnabled && cfg.SeedToken == "" {
		return Config{}, fmt.Errorf("seed token must be provided when seeding is enabled")
	}

	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 10
	}

	if cfg.SubmissionRateLimit <= 0 {
		cfg.SubmissionRateLimit = 10
	}

	return cfg, nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
