package config

import (
	"fmt"
	"net/url"
	"strings"
)

const redactedSuffix = "...redacted"

// FormatRedacted renders the resolved configuration with secrets masked, for
// the config check command.
func FormatRedacted(cfg Config) string {
	var b strings.Builder

	fmt.Fprintf(&b, "chat_platform: %s\n", cfg.ChatPlatform)
	switch cfg.ChatPlatform {
	case PlatformTelegram:
		fmt.Fprintf(&b, "telegram_token: %s\n", maskSecret(cfg.TelegramToken))
	default:
		fmt.Fprintf(&b, "slack_bot_token: %s\n", maskSecret(cfg.SlackBotToken))
		fmt.Fprintf(&b, "slack_app_token: %s\n", maskSecret(cfg.SlackAppToken))
	}
	fmt.Fprintf(&b, "mongo_uri: %s\n", redactURI(cfg.MongoURI))
	fmt.Fprintf(&b, "mongo_db: %s\n", cfg.MongoDB)
	fmt.Fprintf(&b, "app_env: %s\n", cfg.AppEnv)
	fmt.Fprintf(&b, "log_level: %s\n", cfg.LogLevel)
	fmt.Fprintf(&b, "http_port: %d\n", cfg.HTTPPort)
	fmt.Fprintf(&b, "timezone: %s\n", cfg.Timezone)
	fmt.Fprintf(&b, "day_start: %s\n", cfg.DayStart)
	fmt.Fprintf(&b, "day_start_overrides: %s\n", valueOrNone(cfg.DayStartOverrides))
	fmt.Fprintf(&b, "reset_schedule: %s\n", valueOrNone(cfg.ResetSchedule))
	fmt.Fprintf(&b, "announce_channel: %s\n", valueOrNone(cfg.AnnounceChannel))
	fmt.Fprintf(&b, "timesheet_dir: %s\n", cfg.TimesheetDir)
	fmt.Fprintf(&b, "bot_admins: %s", valueOrNone(strings.Join(cfg.Admins, ",")))

	return b.String()
}

func maskSecret(secret string) string {
	if secret == "" {
		return "<unset>"
	}
	if len(secret) <= 4 {
		return redactedSuffix
	}
	return secret[:4] + redactedSuffix
}

func redactURI(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "<invalid>"
	}
	parsed.User = nil
	return parsed.String()
}

func valueOrNone(value string) string {
	if value == "" {
		return "<none>"
	}
	return value
}
