// Package config defines the configuration contract and handles loading and
// validating environment configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

const (
	// Canonical environment variable keys.
	KeyChatPlatform      = "CHAT_PLATFORM"
	KeySlackBotToken     = "SLACK_BOT_TOKEN"
	KeySlackAppToken     = "SLACK_APP_TOKEN"
	KeyTelegramToken     = "TELEGRAM_TOKEN"
	KeyMongoURI          = "MONGO_URI"
	KeyMongoDB           = "MONGO_DB"
	KeyAppEnv            = "APP_ENV"
	KeyLogLevel          = "LOG_LEVEL"
	KeyHTTPPort          = "HTTP_PORT"
	KeyTimezone          = "TIMEZONE"
	KeyDayStart          = "DAY_START"
	KeyDayStartOverrides = "DAY_START_OVERRIDES"
	KeyResetSchedule     = "RESET_SCHEDULE"
	KeyAnnounceChannel   = "ANNOUNCE_CHANNEL"
	KeyTimesheetDir      = "TIMESHEET_DIR"
	KeyBotAdmins         = "BOT_ADMINS"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Supported chat platforms.
	PlatformSlack    = "slack"
	PlatformTelegram = "telegram"

	// Defaults for optional settings.
	DefaultAppEnv            = EnvProduction
	DefaultLogLevel          = "info"
	DefaultHTTPPort          = 8080
	DefaultChatPlatform      = PlatformSlack
	DefaultTimezone          = "Local"
	DefaultDayStart          = "08:00"
	DefaultDayStartOverrides = "wed=07:00"
	DefaultTimesheetDir      = "timesheets"

	// Recommended database names by environment.
	DefaultMongoDBProd = "timebot"
	DefaultMongoDBDev  = "timebot_dev"
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the bot must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the bot.
// .env loading is only permitted when APP_ENV=development; production must rely
// on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeyChatPlatform,
		Example:     PlatformSlack + " / " + PlatformTelegram,
		Default:     DefaultChatPlatform,
		Description: "Chat platform the bot connects to.",
	},
	{
		Key:         KeySlackBotToken,
		Example:     "xoxb-...",
		Description: "Slack bot token used for Web API calls.",
		Notes:       "Required when " + KeyChatPlatform + "=" + PlatformSlack + ".",
	},
	{
		Key:         KeySlackAppToken,
		Example:     "xapp-...",
		Description: "Slack app-level token used to open the Socket Mode connection.",
		Notes:       "Required when " + KeyChatPlatform + "=" + PlatformSlack + ".",
	},
	{
		Key:         KeyTelegramToken,
		Example:     "123:ABC",
		Description: "Telegram Bot Token issued by BotFather.",
		Notes:       "Required when " + KeyChatPlatform + "=" + PlatformTelegram + ".",
	},
	{
		Key:         KeyMongoURI,
		Example:     "mongodb://localhost:27017",
		Required:    true,
		Description: "MongoDB connection string.",
	},
	{
		Key:         KeyMongoDB,
		Example:     DefaultMongoDBProd + " / " + DefaultMongoDBDev,
		Required:    true,
		Description: "MongoDB database name.",
		Notes:       "Recommended: production=" + DefaultMongoDBProd + ", development=" + DefaultMongoDBDev + ".",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "HTTP health/metrics port.",
	},
	{
		Key:         KeyTimezone,
		Example:     "America/Denver",
		Default:     DefaultTimezone,
		Description: "Time zone used for start-of-day and check-in dates.",
	},
	{
		Key:         KeyDayStart,
		Example:     DefaultDayStart,
		Default:     DefaultDayStart,
		Description: "Start of the working day (HH:MM); clocking in later counts as late.",
	},
	{
		Key:         KeyDayStartOverrides,
		Example:     "wed=07:00,fri=09:30",
		Default:     DefaultDayStartOverrides,
		Description: "Per-weekday start times overriding DAY_START.",
	},
	{
		Key:         KeyResetSchedule,
		Example:     "0 0 * * MON",
		Description: "Cron schedule for the automatic weekly reset; empty disables it.",
	},
	{
		Key:         KeyAnnounceChannel,
		Example:     "C0123456789",
		Description: "Channel that receives scheduled reset announcements.",
	},
	{
		Key:         KeyTimesheetDir,
		Example:     DefaultTimesheetDir,
		Default:     DefaultTimesheetDir,
		Description: "Directory where weekly timesheet CSV files are written on reset.",
	},
	{
		Key:         KeyBotAdmins,
		Example:     "U0123,U0456",
		Description: "Comma-separated member ids allowed to reset standings.",
		Notes:       "When empty any member may reset from a direct message.",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	ChatPlatform      string
	SlackBotToken     string
	SlackAppToken     string
	TelegramToken     string
	MongoURI          string
	MongoDB           string
	AppEnv            string
	LogLevel          string
	HTTPPort          int
	Timezone          string
	DayStart          string
	DayStartOverrides string
	ResetSchedule     string
	AnnounceChannel   string
	TimesheetDir      string
	Admins            []string
}

// Load resolves configuration from the environment (with optional dotenv in development).
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:            firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		ChatPlatform:      firstNonEmpty(normalizeEnv(os.Getenv(KeyChatPlatform)), DefaultChatPlatform),
		SlackBotToken:     strings.TrimSpace(os.Getenv(KeySlackBotToken)),
		SlackAppToken:     strings.TrimSpace(os.Getenv(KeySlackAppToken)),
		TelegramToken:     strings.TrimSpace(os.Getenv(KeyTelegramToken)),
		MongoURI:          strings.TrimSpace(os.Getenv(KeyMongoURI)),
		MongoDB:           strings.TrimSpace(os.Getenv(KeyMongoDB)),
		LogLevel:          firstNonEmpty(strings.TrimSpace(os.Getenv(KeyLogLevel)), DefaultLogLevel),
		HTTPPort:          DefaultHTTPPort,
		Timezone:          firstNonEmpty(os.Getenv(KeyTimezone), DefaultTimezone),
		DayStart:          firstNonEmpty(os.Getenv(KeyDayStart), DefaultDayStart),
		DayStartOverrides: envOrDefault(KeyDayStartOverrides, DefaultDayStartOverrides),
		ResetSchedule:     strings.TrimSpace(os.Getenv(KeyResetSchedule)),
		AnnounceChannel:   strings.TrimSpace(os.Getenv(KeyAnnounceChannel)),
		TimesheetDir:      firstNonEmpty(os.Getenv(KeyTimesheetDir), DefaultTimesheetDir),
		Admins:            splitList(os.Getenv(KeyBotAdmins)),
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	missing := make([]string, 0)

	switch cfg.ChatPlatform {
	case PlatformSlack:
		if cfg.SlackBotToken == "" {
			missing = append(missing, KeySlackBotToken)
		}
		if cfg.SlackAppToken == "" {
			missing = append(missing, KeySlackAppToken)
		}
	case PlatformTelegram:
		if cfg.TelegramToken == "" {
			missing = append(missing, KeyTelegramToken)
		}
	default:
		return Config{}, fmt.Errorf("invalid %s: must be %q or %q", KeyChatPlatform, PlatformSlack, PlatformTelegram)
	}

	if cfg.MongoURI == "" {
		missing = append(missing, KeyMongoURI)
	}

	if cfg.MongoDB == "" {
		missing = append(missing, KeyMongoDB)
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	if !strings.HasPrefix(cfg.MongoURI, "mongodb://") && !strings.HasPrefix(cfg.MongoURI, "mongodb+srv://") {
		return Config{}, fmt.Errorf("invalid %s: must start with mongodb:// or mongodb+srv://", KeyMongoURI)
	}

	httpPortRaw := strings.TrimSpace(os.Getenv(KeyHTTPPort))
	if httpPortRaw != "" {
		port, parseErr := strconv.Atoi(httpPortRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyHTTPPort, parseErr)
		}
		if port <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyHTTPPort)
		}
		cfg.HTTPPort = port
	}

	if _, err := cfg.Location(); err != nil {
		return Config{}, err
	}

	if _, err := ParseClock(cfg.DayStart); err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", KeyDayStart, err)
	}

	if _, err := ParseOverrides(cfg.DayStartOverrides); err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", KeyDayStartOverrides, err)
	}

	if cfg.ResetSchedule != "" {
		if _, err := cron.ParseStandard(cfg.ResetSchedule); err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyResetSchedule, err)
		}
	}

	return cfg, nil
}

// Location resolves the configured time zone.
func (c Config) Location() (*time.Location, error) {
	name := firstNonEmpty(c.Timezone, DefaultTimezone)
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", KeyTimezone, err)
	}
	return loc, nil
}

// ParseClock parses an HH:MM wall-clock time into an offset from midnight.
func ParseClock(value string) (time.Duration, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", value)
	}

	return time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute, nil
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// ParseOverrides parses "wed=07:00,fri=09:30" into per-weekday offsets.
func ParseOverrides(value string) (map[time.Weekday]time.Duration, error) {
	out := make(map[time.Weekday]time.Duration)

	for _, item := range splitList(value) {
		day, clock, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("expected day=HH:MM, got %q", item)
		}

		weekday, ok := weekdayNames[normalizeEnv(day)]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", day)
		}

		offset, err := ParseClock(clock)
		if err != nil {
			return nil, err
		}
		out[weekday] = offset
	}

	return out, nil
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// envOrDefault returns the trimmed value of key, or def when key is unset. A
// key that is set but empty stays empty.
func envOrDefault(key, def string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return strings.TrimSpace(value)
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
