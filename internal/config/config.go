package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/dhruvv90/xnode-scheduler/internal/shared"
)

// Config holds application configuration values.
type Config struct {
	Env string `validate:"required,oneof=dev prod"`
	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}
	HTTP struct {
		Addr string `validate:"required"`
	}
	Timers struct {
		Backend string `validate:"required,oneof=ticker cron"`
	}
	History struct {
		DB        string
		Retention time.Duration `validate:"gt=0"`
	}
	Heartbeat struct {
		Interval time.Duration `validate:"gte=0"`
	}
	Telegram struct {
		Token       string
		AlertChatID int64
	}
}

var validate = validator.New()

// Load reads configuration from environment variables and an optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	c.Env = getenv("ENV", "prod")
	c.Log.ConsoleLevel = strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(getenv("LOG_FILE_LEVEL", "debug"))
	c.Log.File = os.Getenv("LOG_FILE")
	c.HTTP.Addr = getenv("HTTP_ADDR", ":8080")
	c.Timers.Backend = strings.ToLower(getenv("TIMER_BACKEND", "ticker"))
	c.History.DB = getenv("HISTORY_DB", "data/history.db")
	if strings.EqualFold(c.History.DB, "none") {
		c.History.DB = ""
	}
	c.Telegram.Token = os.Getenv("TELEGRAM_BOT_TOKEN")

	var err error
	if c.History.Retention, err = getduration("HISTORY_RETENTION", 7*24*time.Hour); err != nil {
		return Config{}, err
	}
	if c.Heartbeat.Interval, err = getduration("HEARTBEAT_INTERVAL", time.Minute); err != nil {
		return Config{}, err
	}
	if raw := os.Getenv("TELEGRAM_ALERT_CHAT_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Config{}, shared.MarkKind(fmt.Errorf("TELEGRAM_ALERT_CHAT_ID: %w", err), shared.KindValidation)
		}
		c.Telegram.AlertChatID = id
	}

	if err := validate.Struct(c); err != nil {
		return Config{}, shared.MarkKind(err, shared.KindValidation)
	}
	if (c.Telegram.Token == "") != (c.Telegram.AlertChatID == 0) {
		return Config{}, shared.MarkKind(
			errors.New("TELEGRAM_BOT_TOKEN and TELEGRAM_ALERT_CHAT_ID must be set together"),
			shared.KindValidation,
		)
	}
	return c, nil
}

// HistoryEnabled reports whether job runs are recorded.
func (c Config) HistoryEnabled() bool {
	return c.History.DB != ""
}

// AlertsEnabled reports whether failure alerts should be sent to Telegram.
func (c Config) AlertsEnabled() bool {
	return c.Telegram.Token != "" && c.Telegram.AlertChatID != 0
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getduration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, shared.MarkKind(fmt.Errorf("%s: %w", k, err), shared.KindValidation)
	}
	return d, nil
}
