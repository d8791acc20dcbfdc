package log

import (
	"io"

	"github.com/sirupsen/logrus"
	easy "github.com/t-tomalak/logrus-easy-formatter"
)

type Fields = logrus.Fields

var std = logrus.New()

func init() {
	std.SetFormatter(&easy.Formatter{
		TimestampFormat: "2006-01-02 15:04:05",
		LogFormat:       "[%time%][%lvl%]: %msg%\n",
	})
}

func SetOutput(o io.Writer) {
	std.SetOutput(o)
}

func SetLogFormatter(formatter logrus.Formatter) {
	std.SetFormatter(formatter)
}

// SetLevel parses a logrus level name and applies it to the standard logger.
// Unknown names are ignored.
func SetLevel(level string) {
	if l, err := logrus.ParseLevel(level); err == nil {
		std.SetLevel(l)
	}
}

// Debug logs a message at level Debug on the standard logger.
func Debug(args ...interface{}) {
	std.Debug(args...)
}

// Info logs a message at level Info on the standard logger.
func Info(args ...interface{}) {
	std.Info(args...)
}

// Warn logs a message at level Warn on the standard logger.
func Warn(args ...interface{}) {
	std.Warn(args...)
}

// Error logs a message at level Error on the standard logger.
func Error(args ...interface{}) {
	std.Error(args...)
}

// Fatal logs a message at level Fatal on the standard logger then calls os.Exit(1).
func Fatal(args ...interface{}) {
	std.Fatal(args...)
}

// Panic logs a message at level Panic on the standard logger.
func Panic(args ...interface{}) {
	std.Panic(args...)
}

func DebugWithFields(msg string, fields Fields) {
	std.WithFields(fields).Debug(msg)
}

func InfoWithFields(msg string, fields Fields) {
	std.WithFields(fields).Info(msg)
}

func WarnWithFields(msg string, fields Fields) {
	std.WithFields(fields).Warn(msg)
}

func ErrorWithFields(msg string, fields Fields) {
	std.WithFields(fields).Error(msg)
}
