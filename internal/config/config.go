package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig selects the gorm driver and DSN.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`
}

// CalDAVConfig holds the external calendar endpoint.
type CalDAVConfig struct {
	URL      string        `yaml:"url"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
	Calendar string        `yaml:"calendar"`
}

// OllamaConfig points at the generative scheduling service.
type OllamaConfig struct {
	URL     string        `yaml:"url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// Config keeps runtime settings for the scheduler.
type Config struct {
	LogMode  string         `yaml:"log_mode"`
	Database DatabaseConfig `yaml:"database"`
	CalDAV   CalDAVConfig   `yaml:"caldav"`
	Ollama   OllamaConfig   `yaml:"ollama"`

	TelegramToken string `yaml:"telegram_token"`

	// SyncWindowDays is how far ahead of today each sync pass looks.
	SyncWindowDays int `yaml:"sync_window_days"`
	// CycleTime is the HH:MM time of the daily sync/materialize cycle.
	CycleTime string `yaml:"cycle_time"`
	// BriefTime is the HH:MM time of the daily Telegram brief.
	BriefTime string `yaml:"brief_time"`
	// MaterializeWeekday is the only weekday on which templates are expanded.
	MaterializeWeekday string `yaml:"materialize_weekday"`

	DayStart string `yaml:"day_start"`
	DayEnd   string `yaml:"day_end"`
}

func Default() Config {
	return Config{
		LogMode: "dev",
		Database: DatabaseConfig{
			Driver: "sqlite",
			URL:    "salva.db",
		},
		CalDAV: CalDAVConfig{
			Timeout:  30 * time.Second,
			Calendar: "Work",
		},
		Ollama: OllamaConfig{
			URL:     "http://localhost:11434",
			Model:   "qwen3:8b",
			Timeout: 120 * time.Second,
		},
		SyncWindowDays:     8,
		CycleTime:          "08:00",
		BriefTime:          "07:30",
		MaterializeWeekday: "sunday",
		DayStart:           "06:00",
		DayEnd:             "22:00",
	}
}

// Load reads defaults, then the optional YAML file at path, then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.LogMode, "SALVA_LOG_MODE")
	setString(&cfg.Database.Driver, "SALVA_DB_DRIVER")
	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.CalDAV.URL, "SALVA_CALDAV_URL")
	setString(&cfg.CalDAV.Username, "SALVA_CALDAV_USERNAME")
	setString(&cfg.CalDAV.Password, "SALVA_CALDAV_PASSWORD")
	setString(&cfg.CalDAV.Calendar, "SALVA_CALENDAR")
	setString(&cfg.Ollama.URL, "SALVA_OLLAMA_URL")
	setString(&cfg.Ollama.Model, "SALVA_OLLAMA_MODEL")
	setString(&cfg.TelegramToken, "TELEGRAM_TOKEN")
	setString(&cfg.CycleTime, "SALVA_CYCLE_TIME")
	setString(&cfg.BriefTime, "SALVA_BRIEF_TIME")
	setString(&cfg.MaterializeWeekday, "SALVA_MATERIALIZE_WEEKDAY")

	if raw := strings.TrimSpace(os.Getenv("SALVA_SYNC_WINDOW_DAYS")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			cfg.SyncWindowDays = n
		}
	}
	if raw := strings.TrimSpace(os.Getenv("SALVA_CALDAV_TIMEOUT")); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			cfg.CalDAV.Timeout = d
		}
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func (c Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return errors.New("database url is required")
	}
	if c.SyncWindowDays <= 0 {
		return fmt.Errorf("sync_window_days must be positive, got %d", c.SyncWindowDays)
	}
	if c.CalDAV.Timeout <= 0 || c.Ollama.Timeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	if _, _, err := ParseClock(c.CycleTime); err != nil {
		return fmt.Errorf("cycle_time: %w", err)
	}
	if _, _, err := ParseClock(c.BriefTime); err != nil {
		return fmt.Errorf("brief_time: %w", err)
	}
	if _, err := c.Weekday(); err != nil {
		return err
	}
	return nil
}

// Weekday resolves MaterializeWeekday.
func (c Config) Weekday() (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(c.MaterializeWeekday))
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == name {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("invalid materialize_weekday %q", c.MaterializeWeekday)
}

// ParseClock splits an HH:MM string.
func ParseClock(timeStr string) (int, int, error) {
	parts := strings.Split(timeStr, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", timeStr)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", timeStr)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", timeStr)
	}
	return hour, minute, nil
}
