package services

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/CrowderSoup/workboard/cards"
	"github.com/CrowderSoup/workboard/views"
)

// Config keeps runtime settings for the server.
type Config struct {
	Port            string
	DatabaseURL     string
	JWTSecret       string
	Location        *time.Location
	DefaultPageSize int
	AllowedOrigins  []string
	// RolloverAt is the HH:MM local time at which views using relative
	// dates are refreshed.
	RolloverAt string
}

// LoadEnv loads environment variables from a .env file. Variables already
// set in the environment win.
func LoadEnv(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(strings.TrimPrefix(parts[0], "export "))
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)

		if _, set := os.LookupEnv(key); set {
			continue
		}
		os.Setenv(key, value)
	}
	return scanner.Err()
}

// LoadConfig reads configuration from environment variables with defaults.
func LoadConfig() (Config, error) {
	cfg := Config{
		Port:        strings.TrimSpace(os.Getenv("PORT")),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		RolloverAt:  strings.TrimSpace(os.Getenv("ROLLOVER_AT")),
	}

	if cfg.Port == "" {
		cfg.Port = "3001"
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "./workboard.db"
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "your-default-secret-key-change-in-production"
	}
	if cfg.RolloverAt == "" {
		cfg.RolloverAt = "00:00"
	}
	if _, _, err := parseClock(cfg.RolloverAt); err != nil {
		return cfg, err
	}

	cfg.Location = time.Local
	if tz := strings.TrimSpace(os.Getenv("TIMEZONE")); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return cfg, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
		}
		cfg.Location = loc
	}

	cfg.DefaultPageSize = views.DefaultPageSize
	if raw := strings.TrimSpace(os.Getenv("DEFAULT_PAGE_SIZE")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > cards.MaxPageSize {
			return cfg, fmt.Errorf("invalid DEFAULT_PAGE_SIZE %q, expected 1..%d", raw, cards.MaxPageSize)
		}
		cfg.DefaultPageSize = n
	}

	cfg.AllowedOrigins = []string{"*"}
	if raw := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); raw != "" {
		cfg.AllowedOrigins = nil
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	return cfg, nil
}

func parseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}
