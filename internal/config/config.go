package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "secret", "token", "admin", "password",
}

// WebhookSecrets holds one shared secret per webhook event kind.
type WebhookSecrets struct {
	Start        string `env:"CLOCKIFY_SECRET_TOKEN_START"`
	End          string `env:"CLOCKIFY_SECRET_TOKEN_END"`
	Edit         string `env:"CLOCKIFY_SECRET_TOKEN_EDIT"`
	Delete       string `env:"CLOCKIFY_SECRET_TOKEN_DELETE"`
	ManualCreate string `env:"CLOCKIFY_SECRET_TOKEN_MANUAL_CREATE"`
}

type MailConfig struct {
	Server               string   `env:"MAIL_SERVER"`
	Port                 int      `env:"MAIL_PORT" envDefault:"587"`
	Username             string   `env:"MAIL_USERNAME"`
	Password             string   `env:"MAIL_PASSWORD"`
	DefaultSender        string   `env:"MAIL_DEFAULT_SENDER"`
	Recipient            string   `env:"MAIL_RECIPIENT"`
	AdditionalRecipients []string `env:"MAIL_ADDITIONAL_RECIPIENTS" envSeparator:","`
	SendRatePerMin       int      `env:"MAIL_SEND_RATE_PER_MIN" envDefault:"30"`
}

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL"`
	SecretToken string `env:"SECRET_TOKEN"`
	Webhook     WebhookSecrets
	Mail        MailConfig

	EmailProcessIntervalSeconds  int    `env:"EMAIL_PROCESS_INTERVAL_SECONDS" envDefault:"5"`
	EmailMaxRetries              int    `env:"EMAIL_MAX_RETRIES" envDefault:"3"`
	EmailBatchSize               int    `env:"EMAIL_BATCH_SIZE" envDefault:"5"`
	OvertimeCheckIntervalSeconds int    `env:"OVERTIME_CHECK_INTERVAL_SECONDS" envDefault:"60"`
	OvertimeThresholdHours       int    `env:"OVERTIME_THRESHOLD_HOURS" envDefault:"5"`
	WeeklyReportCron             string `env:"WEEKLY_REPORT_CRON" envDefault:"0 7 * * 6"`
	MonthlyReportCron            string `env:"MONTHLY_REPORT_CRON" envDefault:"0 7 1 * *"`

	RunMigrations bool   `env:"RUN_MIGRATIONS" envDefault:"true"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) EmailProcessInterval() time.Duration {
	return time.Duration(c.EmailProcessIntervalSeconds) * time.Second
}

func (c *Config) OvertimeCheckInterval() time.Duration {
	return time.Duration(c.OvertimeCheckIntervalSeconds) * time.Second
}

func (c *Config) OvertimeThreshold() time.Duration {
	return time.Duration(c.OvertimeThresholdHours) * time.Hour
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Recipients returns the configured primary recipient followed by the
// additional ones, blanks removed.
func (m MailConfig) Recipients() []string {
	out := make([]string, 0, len(m.AdditionalRecipients)+1)
	if r := strings.TrimSpace(m.Recipient); r != "" {
		out = append(out, r)
	}
	for _, r := range m.AdditionalRecipients {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func (c *Config) Validate(isProduction bool) error {
	if c.EmailMaxRetries < 1 {
		return fmt.Errorf("EMAIL_MAX_RETRIES must be at least 1")
	}
	if c.EmailBatchSize < 1 {
		return fmt.Errorf("EMAIL_BATCH_SIZE must be at least 1")
	}
	if c.EmailProcessIntervalSeconds < 1 || c.OvertimeCheckIntervalSeconds < 1 {
		return fmt.Errorf("job intervals must be at least one second")
	}
	if c.OvertimeThresholdHours < 1 {
		return fmt.Errorf("OVERTIME_THRESHOLD_HOURS must be at least 1")
	}

	if c.Mail.Server == "" {
		log.Warn().Msg("MAIL_SERVER is empty: notification delivery will fail and be retried")
	}

	if isProduction {
		if err := validateSecret("SECRET_TOKEN", c.SecretToken); err != nil {
			return err
		}
		secrets := map[string]string{
			"CLOCKIFY_SECRET_TOKEN_START":         c.Webhook.Start,
			"CLOCKIFY_SECRET_TOKEN_END":           c.Webhook.End,
			"CLOCKIFY_SECRET_TOKEN_EDIT":          c.Webhook.Edit,
			"CLOCKIFY_SECRET_TOKEN_DELETE":        c.Webhook.Delete,
			"CLOCKIFY_SECRET_TOKEN_MANUAL_CREATE": c.Webhook.ManualCreate,
		}
		for name, value := range secrets {
			if value == "" {
				return fmt.Errorf("%s is required in production", name)
			}
		}
		if c.RedisURL == "" {
			log.Warn().Msg("REDIS_URL is empty in production: per-session webhook locking disabled")
		} else if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 16 {
		return fmt.Errorf("%s must be at least 16 characters in production", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
