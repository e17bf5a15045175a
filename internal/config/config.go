package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port            string   `mapstructure:"PORT"`
	Env             string   `mapstructure:"ENV"`
	DatabaseURL     string   `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32    `mapstructure:"DB_MIN_CONNS"`
	BackupDir       string   `mapstructure:"BACKUP_DIR"`
	BackupRetention int      `mapstructure:"BACKUP_RETENTION"`
	MailEnabled     bool     `mapstructure:"MAIL_ENABLED"`
	MailHost        string   `mapstructure:"MAIL_HOST"`
	MailPort        int      `mapstructure:"MAIL_PORT"`
	MailUsername    string   `mapstructure:"MAIL_USERNAME"`
	MailPassword    string   `mapstructure:"MAIL_PASSWORD"`
	MailFrom        string   `mapstructure:"MAIL_FROM"`
	ReviewBaseURL   string   `mapstructure:"REVIEW_BASE_URL"`
	ExtraRecipients []string `mapstructure:"EXTRA_RECIPIENTS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("BACKUP_DIR", "./backups")
	v.SetDefault("BACKUP_RETENTION", 30)
	v.SetDefault("MAIL_ENABLED", false)
	v.SetDefault("MAIL_HOST", "localhost")
	v.SetDefault("MAIL_PORT", 25)
	v.SetDefault("MAIL_FROM", "comite@localhost")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("BACKUP_DIR")
	v.BindEnv("BACKUP_RETENTION")
	v.BindEnv("MAIL_ENABLED")
	v.BindEnv("MAIL_HOST")
	v.BindEnv("MAIL_PORT")
	v.BindEnv("MAIL_USERNAME")
	v.BindEnv("MAIL_PASSWORD")
	v.BindEnv("MAIL_FROM")
	v.BindEnv("REVIEW_BASE_URL")
	v.BindEnv("EXTRA_RECIPIENTS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.ExtraRecipients == nil {
		extra := v.GetString("EXTRA_RECIPIENTS")
		if extra != "" {
			cfg.ExtraRecipients = strings.Split(extra, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.BackupRetention < 1 {
		return fmt.Errorf("BACKUP_RETENTION must be at least 1, got %d", c.BackupRetention)
	}
	if c.BackupDir == "" {
		return fmt.Errorf("BACKUP_DIR is required")
	}
	if c.MailEnabled && c.MailFrom == "" {
		return fmt.Errorf("MAIL_FROM is required when MAIL_ENABLED is true")
	}
	if c.MailEnabled && c.MailHost == "" {
		return fmt.Errorf("MAIL_HOST is required when MAIL_ENABLED is true")
	}
	return nil
}
