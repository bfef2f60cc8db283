// Package cfg holds pulse's application configuration.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/currency"

	"github.com/linnemanlabs/pulse/internal/authmw"
	"github.com/linnemanlabs/pulse/internal/triage"
)

// Config adds app-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int

	// triage policy
	AutoApprovalThreshold   float64
	HighRiskAmountThreshold float64
	LowConfidence           float64
	ReviewConfidence        float64
	StageConfigPath         string

	// storage
	DatabaseURL    string
	DBMaxConns     int
	DBSlowQueryMS  int
	DBLogQueryArgs bool
	SQLitePath     string

	// collaborators
	ClaudeAPIKey         string
	ClaudeModel          string
	SlackWebhookURL      string
	Currency             string
	KafkaBrokers         string
	KafkaTopic           string
	NotifyTimeoutSeconds int

	// APITokens is a comma-separated persona:token list. Empty disables auth.
	APITokens string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	def := triage.DefaultPolicy()

	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")

	fs.Float64Var(&c.AutoApprovalThreshold, "auto-approval-threshold", def.AutoApprovalThreshold, "amount above which spend signals need a human approval")
	fs.Float64Var(&c.HighRiskAmountThreshold, "high-risk-amount-threshold", def.HighRiskAmountThreshold, "amount above which a flagged signal is high risk")
	fs.Float64Var(&c.LowConfidence, "low-confidence", def.LowConfidence, "confidence below which a signal is high risk (0..100)")
	fs.Float64Var(&c.ReviewConfidence, "review-confidence", def.ReviewConfidence, "confidence below which a signal needs review (0..100)")
	fs.StringVar(&c.StageConfigPath, "stage-config", "", "YAML file replacing the built-in lifecycle stage table")

	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = sqlite or in-memory store)")
	fs.IntVar(&c.DBMaxConns, "db-max-conns", 10, "maximum PostgreSQL pool connections (1..1000)")
	fs.IntVar(&c.DBSlowQueryMS, "db-slow-query-ms", 500, "log PostgreSQL queries slower than this many milliseconds (0 = log every query)")
	fs.BoolVar(&c.DBLogQueryArgs, "db-log-query-args", false, "include bind arguments in slow query logs")
	fs.StringVar(&c.SQLitePath, "sqlite-path", "", "SQLite database file (used when database-url is empty)")

	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude suggester (empty = no suggestions)")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-5", "Claude model to use for suggestions")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for notifications")
	fs.StringVar(&c.Currency, "currency", "EUR", "ISO 4217 currency code used when rendering amounts")
	fs.StringVar(&c.KafkaBrokers, "kafka-brokers", "", "comma-separated Kafka brokers for attention events (empty = disabled)")
	fs.StringVar(&c.KafkaTopic, "kafka-topic", "pulse.signals.attention", "Kafka topic for attention events")
	fs.IntVar(&c.NotifyTimeoutSeconds, "notify-timeout-seconds", 10, "per-notification timeout in seconds (1..120)")

	fs.StringVar(&c.APITokens, "api-tokens", "", "comma-separated persona:token pairs for API bearer auth")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if err := c.Policy().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("triage policy: %w", err))
	}

	if c.DatabaseURL != "" && c.SQLitePath != "" {
		errs = append(errs, errors.New("DATABASE_URL and SQLITE_PATH are mutually exclusive"))
	}
	if c.DBMaxConns <= 0 || c.DBMaxConns > 1000 {
		errs = append(errs, fmt.Errorf("invalid DB_MAX_CONNS %d (must be 1..1000)", c.DBMaxConns))
	}
	if c.DBSlowQueryMS < 0 {
		errs = append(errs, fmt.Errorf("invalid DB_SLOW_QUERY_MS %d (must not be negative)", c.DBSlowQueryMS))
	}

	// model only matters when the suggester is enabled
	if c.ClaudeAPIKey != "" && c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required when CLAUDE_API_KEY is set"))
	}

	if _, err := currency.ParseISO(c.Currency); err != nil {
		errs = append(errs, fmt.Errorf("invalid CURRENCY %q: %w", c.Currency, err))
	}

	if len(c.Brokers()) > 0 && strings.TrimSpace(c.KafkaTopic) == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set"))
	}
	if c.NotifyTimeoutSeconds <= 0 || c.NotifyTimeoutSeconds > 120 {
		errs = append(errs, fmt.Errorf("invalid NOTIFY_TIMEOUT_SECONDS %d (must be 1..120)", c.NotifyTimeoutSeconds))
	}

	if _, err := authmw.ParseTokens(c.APITokens); err != nil {
		errs = append(errs, fmt.Errorf("invalid API_TOKENS: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Policy returns the triage thresholds from the flags.
func (c *Config) Policy() triage.Policy {
	return triage.Policy{
		AutoApprovalThreshold:   c.AutoApprovalThreshold,
		HighRiskAmountThreshold: c.HighRiskAmountThreshold,
		LowConfidence:           c.LowConfidence,
		ReviewConfidence:        c.ReviewConfidence,
	}
}

// Brokers splits KafkaBrokers, dropping blanks.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// CurrencyUnit returns the parsed currency, falling back to EUR.
func (c *Config) CurrencyUnit() currency.Unit {
	u, err := currency.ParseISO(c.Currency)
	if err != nil {
		return currency.EUR
	}
	return u
}

// SlowQuery returns the slow query log threshold.
func (c *Config) SlowQuery() time.Duration {
	return time.Duration(c.DBSlowQueryMS) * time.Millisecond
}

// NotifyTimeout returns the per-notification timeout.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.NotifyTimeoutSeconds) * time.Second
}
