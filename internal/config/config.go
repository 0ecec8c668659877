package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Telegram struct {
		Enabled  bool   `yaml:"enabled"`
		BotToken string `yaml:"bot_token"`
		Debug    bool   `yaml:"debug"`
	} `yaml:"telegram"`

	Database struct {
		Driver      string `yaml:"driver"` // sqlite or postgres
		Path        string `yaml:"path"`
		PostgresURL string `yaml:"postgres_url"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	API struct {
		Enabled   bool    `yaml:"enabled"`
		Port      int     `yaml:"port"`
		JWTSecret string  `yaml:"jwt_secret"`
		RateLimit float64 `yaml:"rate_limit"` // requests per second per client
		RateBurst int     `yaml:"rate_burst"`
		// Addresses or CIDR ranges allowed to set X-Forwarded-For.
		TrustedProxies []string `yaml:"trusted_proxies"`
	} `yaml:"api"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		GRPCHealthPort    int  `yaml:"grpc_health_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // console or json
	} `yaml:"logging"`

	Booking struct {
		Timezone              string `yaml:"timezone"`
		MinAdvanceMinutes     int    `yaml:"min_advance_minutes"`
		MaxAdvanceDays        int    `yaml:"max_advance_days"`
		RespectWorkingHours   bool   `yaml:"respect_working_hours"`
		SessionTimeoutMinutes int    `yaml:"session_timeout_minutes"`
	} `yaml:"booking"`

	Reminders struct {
		Enabled               bool    `yaml:"enabled"`
		HoursBefore           []int   `yaml:"hours_before"`
		CancelOnBookingCancel *bool   `yaml:"cancel_on_booking_cancel"`
		PollSeconds           int     `yaml:"poll_seconds"`
		RetentionDays         int     `yaml:"retention_days"`
		RatePerSecond         float64 `yaml:"rate_per_second"`
	} `yaml:"reminders"`

	// Reports mails last month's workbook to the managers on the 1st.
	Reports struct {
		Enabled       bool `yaml:"enabled"`
		ExportOnStart bool `yaml:"export_on_start"`
		RetentionDays int  `yaml:"retention_days"`
	} `yaml:"reports"`

	Push struct {
		Enabled     bool   `yaml:"enabled"`
		URL         string `yaml:"url"`
		AccessToken string `yaml:"access_token"`
	} `yaml:"push"`

	Kafka struct {
		Enabled bool     `yaml:"enabled"`
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`

	Sheets struct {
		Enabled         bool   `yaml:"enabled"`
		CredentialsFile string `yaml:"credentials_file"`
		SpreadsheetID   string `yaml:"spreadsheet_id"`
		SheetName       string `yaml:"sheet_name"`
	} `yaml:"sheets"`

	CatalogPath        string  `yaml:"catalog_path"`
	CatalogPollSeconds int     `yaml:"catalog_poll_seconds"`
	Managers           []int64 `yaml:"managers"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/studiotblack.db"
	}
	if cfg.CatalogPath == "" {
		cfg.CatalogPath = "configs/catalog.yaml"
	}

	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if cfg.Database.Driver == "sqlite" {
		if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.PostgresURL == "" {
			return fmt.Errorf("database.postgres_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver: unknown driver %q", c.Database.Driver)
	}

	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE") {
		return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
	}
	if c.API.Enabled && c.API.JWTSecret == "" {
		return fmt.Errorf("api.jwt_secret is required when the api is enabled")
	}
	if c.Booking.Timezone != "" {
		if _, err := time.LoadLocation(c.Booking.Timezone); err != nil {
			return fmt.Errorf("booking.timezone: %w", err)
		}
	}
	for i, h := range c.Reminders.HoursBefore {
		if h <= 0 {
			return fmt.Errorf("reminders.hours_before[%d]: must be positive, got %d", i, h)
		}
	}
	if c.Reports.RetentionDays < 0 {
		return fmt.Errorf("reports.retention_days: must not be negative, got %d", c.Reports.RetentionDays)
	}
	if c.Reports.Enabled && len(c.Managers) == 0 {
		return fmt.Errorf("managers is required when reports are enabled")
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required when kafka is enabled")
		}
		if strings.TrimSpace(c.Kafka.Topic) == "" {
			return fmt.Errorf("kafka.topic is required when kafka is enabled")
		}
	}
	if c.Sheets.Enabled && (c.Sheets.CredentialsFile == "" || c.Sheets.SpreadsheetID == "") {
		return fmt.Errorf("sheets.credentials_file and sheets.spreadsheet_id are required when sheets is enabled")
	}
	if c.Push.Enabled && c.Push.URL == "" {
		c.Push.URL = "https://exp.host/--/api/v2/push/send"
	}
	return nil
}

func (c *Config) Location() *time.Location {
	if c.Booking.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Booking.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) BookingMinAdvance() time.Duration {
	if c.Booking.MinAdvanceMinutes < 0 {
		return 0
	}
	if c.Booking.MinAdvanceMinutes == 0 {
		return 60 * time.Minute
	}
	return time.Duration(c.Booking.MinAdvanceMinutes) * time.Minute
}

func (c *Config) BookingMaxAdvance() time.Duration {
	if c.Booking.MaxAdvanceDays <= 0 {
		return 30 * 24 * time.Hour
	}
	return time.Duration(c.Booking.MaxAdvanceDays) * 24 * time.Hour
}

func (c *Config) SessionTimeout() time.Duration {
	if c.Booking.SessionTimeoutMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Booking.SessionTimeoutMinutes) * time.Minute
}

func (c *Config) CatalogPollInterval() time.Duration {
	if c.CatalogPollSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.CatalogPollSeconds) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

// ReminderOffsets returns how long before the appointment reminders fire.
func (c *Config) ReminderOffsets() []time.Duration {
	hours := c.Reminders.HoursBefore
	if len(hours) == 0 {
		hours = []int{24, 1}
	}
	out := make([]time.Duration, len(hours))
	for i, h := range hours {
		out[i] = time.Duration(h) * time.Hour
	}
	return out
}

func (c *Config) CancelRemindersOnBookingCancel() bool {
	if c.Reminders.CancelOnBookingCancel == nil {
		return true
	}
	return *c.Reminders.CancelOnBookingCancel
}

func (c *Config) ReminderPollInterval() time.Duration {
	if c.Reminders.PollSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Reminders.PollSeconds) * time.Second
}

func (c *Config) ReminderRetention() time.Duration {
	if c.Reminders.RetentionDays <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.Reminders.RetentionDays) * 24 * time.Hour
}

// ReportRetention is how long bookings are kept after the monthly export.
// Zero keeps them forever.
func (c *Config) ReportRetention() time.Duration {
	return time.Duration(c.Reports.RetentionDays) * 24 * time.Hour
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) BackupRetention() time.Duration {
	if c.Backup.RetentionDays <= 0 {
		return 14 * 24 * time.Hour
	}
	return time.Duration(c.Backup.RetentionDays) * 24 * time.Hour
}

// IsManager reports whether the Telegram user is listed as a manager.
func (c *Config) IsManager(telegramID int64) bool {
	for _, id := range c.Managers {
		if id == telegramID {
			return true
		}
	}
	return false
}
