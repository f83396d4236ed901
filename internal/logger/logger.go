// Package logger provides structured logging with sensitive-value masking.
// Credentials travel through connection URLs and config dumps; the writer
// masks them before anything reaches disk or stdout.
package logger

import (
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/relaylens/relaylens/internal/config"
)

var sensitivePatterns = []*regexp.Regexp{
	// Bearer tokens.
	regexp.MustCompile(`(Bearer\s+[a-zA-Z0-9\-_\.]+)`),
	// JWT-shaped values.
	regexp.MustCompile(`(eyJ[a-zA-Z0-9\-_]+\.eyJ[a-zA-Z0-9\-_]+\.[a-zA-Z0-9\-_]+)`),
	// ws://user:pass@host and http(s) variants.
	regexp.MustCompile(`((?:wss?|https?)://[^:/\s]+):([^@/\s]+)@`),
	// key=value style credentials.
	regexp.MustCompile(`((?:api[_-]?key|apikey|key|token|secret|password)\s*[=:]\s*)([a-zA-Z0-9\-_\.]{6,})`),
}

// maskedWriter masks sensitive values before writing.
type maskedWriter struct {
	underlying io.Writer
}

func (w *maskedWriter) Write(p []byte) (n int, err error) {
	masked := MaskSensitive(string(p))
	if _, err := w.underlying.Write([]byte(masked)); err != nil {
		return 0, err
	}
	// Report the original length; the masked form may differ.
	return len(p), nil
}

// Setup initializes the global logger from the logging configuration.
func Setup(cfg config.LoggingConfig) {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = os.Stdout
	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			log.Warn().Err(err).Str("file", cfg.File).Msg("cannot open log file, falling back to stdout")
		} else {
			output = file
		}
	}

	maskedOutput := &maskedWriter{underlying: output}

	if cfg.Format == "text" {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        maskedOutput,
			TimeFormat: time.RFC3339,
		}
		log.Logger = zerolog.New(consoleWriter).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(maskedOutput).With().Timestamp().Logger()
	}
}

// With returns a child of the global logger tagged with a component name.
func With(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// MaskSensitive masks credentials and token-shaped values in input.
func MaskSensitive(input string) string {
	result := input
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			// URL userinfo: keep the scheme and user, mask the password.
			if idx := strings.Index(match, "://"); idx >= 0 && strings.HasSuffix(match, "@") {
				rest := match[idx+3 : len(match)-1]
				if colon := strings.Index(rest, ":"); colon >= 0 {
					return match[:idx+3] + rest[:colon] + ":***@"
				}
			}
			if strings.HasPrefix(match, "Bearer ") {
				return "Bearer " + maskValue(strings.TrimPrefix(match, "Bearer "))
			}
			// key=value style: keep the key, mask the value.
			if sep := strings.IndexAny(match, "=:"); sep >= 0 && !strings.HasPrefix(match, "eyJ") {
				return match[:sep+1] + maskValue(strings.TrimSpace(match[sep+1:]))
			}
			return maskValue(match)
		})
	}
	return result
}

// maskValue keeps the first and last four characters of long values.
func maskValue(value string) string {
	value = strings.TrimSpace(value)
	if len(value) <= 8 {
		return "***"
	}
	return value[:4] + "***" + value[len(value)-4:]
}
