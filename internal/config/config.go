// Package config reads the process configuration from the environment.
// Every knob has a default, so a bare `captchad` starts a working in-memory
// service; REDIS_ADDR is the one switch that changes the storage backend.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ammarsys/captchaAPI/internal/captcha"
	"github.com/ammarsys/captchaAPI/internal/logging"
	"github.com/ammarsys/captchaAPI/internal/render"
)

const AppName = "captchaAPI"

type Config struct {
	AppPort string `validate:"required,numeric"`

	// Challenge lifecycle
	TTL      time.Duration `validate:"gt=0"`
	Alphabet string        `validate:"required,min=2"`

	// Render pipeline
	Width           int     `validate:"gt=0"`
	Height          int     `validate:"gt=0"`
	FontSize        float64 `validate:"gt=0"`
	MaxRotationDeg  float64 `validate:"gte=0,lte=90"`
	SaltProbability float64 `validate:"gte=0,lte=1"`
	Background      string  `validate:"hexcolor"`
	TextColor       string  `validate:"hexcolor"`

	// Storage: empty RedisAddr selects the in-memory store.
	RedisAddr string

	// Per-client requests/minute budgets.
	IssuePerMin int `validate:"gt=0"`
	CDNPerMin   int `validate:"gt=0"`
	CheckPerMin int `validate:"gt=0"`

	CORSAllowedOrigins []string `validate:"min=1,dive,required"`
}

var validate = validator.New()

// Load builds the Config from environment variables, falling back to
// defaults for anything unset or unparsable, then validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		AppPort:            getEnv("APP_PORT", "8080"),
		TTL:                getEnvDuration("CAPTCHA_TTL", captcha.DefaultTTL),
		Alphabet:           getEnv("CAPTCHA_ALPHABET", captcha.DefaultAlphabet),
		Width:              getEnvInt("CAPTCHA_WIDTH", render.DefaultWidth),
		Height:             getEnvInt("CAPTCHA_HEIGHT", render.DefaultHeight),
		FontSize:           getEnvFloat("CAPTCHA_FONT_SIZE", render.DefaultFontSize),
		MaxRotationDeg:     getEnvFloat("CAPTCHA_MAX_ROTATION_DEG", render.DefaultMaxRotationDeg),
		SaltProbability:    getEnvFloat("CAPTCHA_SALT_PROBABILITY", render.DefaultSaltProbability),
		Background:         getEnv("CAPTCHA_BACKGROUND", render.DefaultBackground),
		TextColor:          getEnv("CAPTCHA_TEXT_COLOR", render.DefaultTextColor),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		IssuePerMin:        getEnvInt("RATE_LIMIT_ISSUE_PER_MIN", 30),
		CDNPerMin:          getEnvInt("RATE_LIMIT_CDN_PER_MIN", 30),
		CheckPerMin:        getEnvInt("RATE_LIMIT_CHECK_PER_MIN", 10),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logging.Logger.Warnf("Invalid %s '%s', defaulting to %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logging.Logger.Warnf("Invalid %s '%s', defaulting to %g", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logging.Logger.Warnf("Invalid %s '%s', defaulting to %s", key, v, fallback)
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
