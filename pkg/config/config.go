// Package config owns environment-driven runtime configuration.
// All settings come from environment variables, optionally seeded from a
// .env file loaded by the caller before Load runs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ERPConfig holds the Odoo XML-RPC connection parameters.
type ERPConfig struct {
	BaseURL  string
	Database string
	User     string
	Password string
	Timeout  time.Duration
}

// LLMConfig holds the LLM provider parameters. APIKey may be empty, in
// which case LLM-dependent paths report "AI unavailable" instead of failing.
type LLMConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// SMTPConfig holds outbound email parameters. Host may be empty; email
// delivery then degrades silently.
type SMTPConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	FromEmail string
	Timeout   time.Duration
}

// WebhookConfig holds the shared signing secret and per-event delivery URLs.
type WebhookConfig struct {
	Secret         string
	ContractExpiry string
	Milestone      string
	Compliance     string
	Report         string
	Overdue        string
	Assignment     string
	Manager        string
	Timeout        time.Duration
}

// Config is the process-wide configuration, built once at startup and
// immutable thereafter.
type Config struct {
	ERP     ERPConfig
	LLM     LLMConfig
	SMTP    SMTPConfig
	Webhook WebhookConfig

	// APIKey guards every inbound route except health and root.
	APIKey string

	TelegramBotToken string

	SchedulerTimezone string
	OTPDemoMode       bool

	// ManagerEmails receive report and alert emails.
	ManagerEmails []string

	AllowedOrigins []string
	Host           string
	Port           string
}

// Load reads configuration from the environment. It fails when any of the
// required ERP settings is missing.
func Load() (*Config, error) {
	cfg := &Config{
		ERP: ERPConfig{
			BaseURL:  os.Getenv("ERP_URL"),
			Database: os.Getenv("ERP_DB"),
			User:     os.Getenv("ERP_USER"),
			Password: os.Getenv("ERP_PASSWORD"),
			Timeout:  30 * time.Second,
		},
		LLM: LLMConfig{
			APIKey:  os.Getenv("LLM_API_KEY"),
			Model:   getEnv("LLM_MODEL", "gpt-4o-mini"),
			BaseURL: os.Getenv("LLM_BASE_URL"),
			Timeout: 60 * time.Second,
		},
		SMTP: SMTPConfig{
			Host:      os.Getenv("SMTP_HOST"),
			Port:      getEnvInt("SMTP_PORT", 587),
			User:      os.Getenv("SMTP_USER"),
			Password:  os.Getenv("SMTP_PASSWORD"),
			FromEmail: os.Getenv("FROM_EMAIL"),
			Timeout:   30 * time.Second,
		},
		Webhook: WebhookConfig{
			Secret:         os.Getenv("WEBHOOK_SECRET"),
			ContractExpiry: os.Getenv("WEBHOOK_CONTRACT_EXPIRY_URL"),
			Milestone:      os.Getenv("WEBHOOK_MILESTONE_URL"),
			Compliance:     os.Getenv("WEBHOOK_COMPLIANCE_URL"),
			Report:         os.Getenv("WEBHOOK_REPORT_URL"),
			Overdue:        os.Getenv("WEBHOOK_OVERDUE_URL"),
			Assignment:     os.Getenv("WEBHOOK_ASSIGNMENT_URL"),
			Manager:        os.Getenv("WEBHOOK_MANAGER_URL"),
			Timeout:        30 * time.Second,
		},
		APIKey:            os.Getenv("API_KEY"),
		TelegramBotToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		SchedulerTimezone: getEnv("SCHEDULER_TIMEZONE", "UTC"),
		OTPDemoMode:       getEnvBool("OTP_DEMO_MODE", false),
		ManagerEmails:     splitCSV(os.Getenv("MANAGER_EMAILS")),
		AllowedOrigins:    splitCSV(os.Getenv("ALLOWED_ORIGINS")),
		Host:              getEnv("HOST", "0.0.0.0"),
		Port:              getEnv("PORT", "8080"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.ERP.BaseURL == "" {
		missing = append(missing, "ERP_URL")
	}
	if c.ERP.Database == "" {
		missing = append(missing, "ERP_DB")
	}
	if c.ERP.User == "" {
		missing = append(missing, "ERP_USER")
	}
	if c.ERP.Password == "" {
		missing = append(missing, "ERP_PASSWORD")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// LLMEnabled reports whether LLM-dependent features can run.
func (c *Config) LLMEnabled() bool {
	return c.LLM.APIKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
