// Package logging configures the process-wide logrus logger.
//
// Every entry carries the service name, the runtime environment and the chat
// platform, and callers are expected to add an "event" field naming what
// happened.
package logging

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"timebot/internal/config"
)

const serviceName = "timebot"

var baseLogger *logrus.Entry

// Fields is a shorthand alias for structured log fields.
type Fields = logrus.Fields

// Context names the optional per-message fields of an entry.
type Context struct {
	MemberID string
	Channel  string
	Command  string
	Event    string
}

func (c Context) fields() Fields {
	fields := Fields{}
	for key, value := range map[string]string{
		"member_id": c.MemberID,
		"channel":   c.Channel,
		"command":   c.Command,
		"event":     strings.TrimSpace(c.Event),
	} {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}

// Setup builds the base logger for cfg and installs it as the process
// default. The previous logger is kept when the level is invalid.
func Setup(cfg config.Config) (*logrus.Entry, error) {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	baseLogger = newBase(level, cfg.AppEnv, cfg.ChatPlatform)
	return baseLogger, nil
}

// Logger returns the base logger, falling back to a production-style logger
// at info level before Setup has run.
func Logger() *logrus.Entry {
	if baseLogger == nil {
		baseLogger = newBase(logrus.InfoLevel, config.DefaultAppEnv, "")
	}
	return baseLogger
}

// WithContext returns the base logger with the non-empty fields of ctx.
func WithContext(ctx Context) *logrus.Entry {
	return withFields(ctx.fields())
}

// Info logs at info level on the base logger.
func Info(msg string, fields Fields) {
	withFields(fields).Info(msg)
}

// Warn logs at warn level on the base logger.
func Warn(msg string, fields Fields) {
	withFields(fields).Warn(msg)
}

// Error logs at error level on the base logger.
func Error(msg string, fields Fields) {
	withFields(fields).Error(msg)
}

func withFields(fields Fields) *logrus.Entry {
	if len(fields) == 0 {
		return Logger()
	}
	return Logger().WithFields(fields)
}

func newBase(level logrus.Level, appEnv, platform string) *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(formatterForEnv(appEnv))

	fields := Fields{
		"service": serviceName,
		"env":     appEnv,
	}
	if platform != "" {
		fields["platform"] = platform
	}
	return logger.WithFields(fields)
}

var fieldMap = logrus.FieldMap{
	logrus.FieldKeyTime:  "ts",
	logrus.FieldKeyMsg:   "msg",
	logrus.FieldKeyLevel: "level",
}

func formatterForEnv(appEnv string) logrus.Formatter {
	if appEnv != config.EnvDevelopment {
		return &logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap:        fieldMap,
		}
	}

	return &logrus.TextFormatter{
		FullTimestamp:          true,
		TimestampFormat:        time.RFC3339,
		FieldMap:               fieldMap,
		DisableLevelTruncation: true,
		SortingFunc:            eventFirst,
	}
}

var keyRank = map[string]int{"ts": 0, "level": 1, "msg": 2, "event": 3}

// eventFirst orders text output keys as ts, level, msg, event, then the rest
// alphabetically.
func eventFirst(keys []string) {
	rank := func(key string) int {
		if r, ok := keyRank[key]; ok {
			return r
		}
		return len(keyRank)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := rank(keys[i]), rank(keys[j])
		if ri != rj {
			return ri < rj
		}
		return keys[i] < keys[j]
	})
}

func parseLevel(value string) (logrus.Level, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return logrus.InfoLevel, nil
	}

	level, err := logrus.ParseLevel(value)
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid log level %q: %w", value, err)
	}
	return level, nil
}

// resetLogger clears the cached logger; used in tests.
func resetLogger() {
	baseLogger = nil
}
