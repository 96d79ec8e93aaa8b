// Package logger is pulsenet's console logging front end: a small
// vocabulary of level functions (Debug/Info/Warn/Error/Success/Fatal) and
// banner/section helpers for CLI startup, backed by zerolog's console
// writer instead of the teacher's hand-rolled ANSI formatter. Structured,
// per-component logging (e.g. one zerolog.Logger per connection, tagged
// with its remote address) uses Base() directly, the way the rest of
// pulsenet threads a *zerolog.Logger through constructors.
package logger

import (
	"os"

	"github.com/rs/zerolog"
)

var base zerolog.Logger

func init() {
	zerolog.TimeFieldFormat = "15:04:05"
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	base = zerolog.New(writer).With().Timestamp().Logger()
}

// SetLevel sets the minimum level logged, using zerolog's level names
// ("debug", "info", "warn", "error").
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	base = base.Level(lvl)
}

// Base returns the shared base logger, for components that want a
// structured child logger via .With().Str(...).Logger().
func Base() zerolog.Logger {
	return base
}

func Debug(format string, args ...interface{}) {
	base.Debug().Msgf(format, args...)
}

func Info(format string, args ...interface{}) {
	base.Info().Msgf(format, args...)
}

// InfoCyan logs at info level with a "highlight" field, so the console
// writer renders it distinctly without a bespoke ANSI path.
func InfoCyan(format string, args ...interface{}) {
	base.Info().Bool("highlight", true).Msgf(format, args...)
}

func Warn(format string, args ...interface{}) {
	base.Warn().Msgf(format, args...)
}

func Error(format string, args ...interface{}) {
	base.Error().Msgf(format, args...)
}

func Success(format string, args ...interface{}) {
	base.Info().Bool("success", true).Msgf(format, args...)
}

// Fatal logs at fatal level and exits the process, matching zerolog's
// own Fatal semantics.
func Fatal(format string, args ...interface{}) {
	base.Fatal().Msgf(format, args...)
}

// Section prints a bordered section header, e.g. to separate startup
// phases in server/client CLI output.
func Section(title string) {
	const width = 61
	border := ""
	for i := 0; i < width; i++ {
		border += "═"
	}
	os.Stderr.WriteString("\n╔" + border + "╗\n")
	pad := width - 2 - len(title)
	if pad < 0 {
		pad = 0
	}
	os.Stderr.WriteString("║ " + title + spaces(pad) + " ║\n")
	os.Stderr.WriteString("╚" + border + "╝\n\n")
}

// Banner prints the application banner shown once at startup.
func Banner(title, version string) {
	const width = 61
	border := ""
	for i := 0; i < width; i++ {
		border += "═"
	}
	os.Stderr.WriteString("╔" + border + "╗\n")
	os.Stderr.WriteString("║" + center(title, width) + "║\n")
	os.Stderr.WriteString("║" + center("version "+version, width) + "║\n")
	os.Stderr.WriteString("╚" + border + "╝\n")
}

func spaces(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}

func center(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	left := (width - len(s)) / 2
	right := width - len(s) - left
	return spaces(left) + s + spaces(right)
}
