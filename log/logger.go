// Package log is the structured, leveled logger used across neton.
//
// Events are built with chained field setters and written by Msg:
//
//	log.Info().Str("channel", id).Int("frames", n).Msg("drained")
//
// A disabled level returns a nil *LogEvent and every setter on it is a no-op.
package log

import (
	"github.com/lcx/neton/config"
)

type Logger interface {
	Trace() *LogEvent
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
	Fatal() *LogEvent
	IgnoreCheckLevel() bool
	GetAppender() []LogAppender
	AddAppender(appender LogAppender)
	OnEventEnd(e *LogEvent)
}

var _defaultLogger *GameLogger

func init() {
	_defaultLogger = NewLogger(nil)
}

// AddAppender adds a new log appender to the default logger.
func AddAppender(appender LogAppender) {
	_defaultLogger.AddAppender(appender)
}

// Refresh flushes every appender of the default logger.
func Refresh() {
	_defaultLogger.Refresh()
}

// SetDefaultLogger replaces the logger behind the package-level functions.
func SetDefaultLogger(logger *GameLogger) {
	_defaultLogger = logger
}

// DefaultLogger returns the logger behind the package-level functions.
func DefaultLogger() *GameLogger {
	return _defaultLogger
}

// InitializeWithConfigManager loads the "logger" config from configManager
// and installs a hot-reloadable default logger built from it.
//
// Parameters:
//   - configManager: Configuration manager instance
//
// Returns:
//   - Error if configuration loading fails, nil otherwise
func InitializeWithConfigManager(configManager config.ConfigManager) error {
	if configManager == nil {
		return nil
	}

	logCfg := &LogCfg{}
	if err := configManager.LoadConfig("logger", logCfg); err != nil {
		return err
	}

	SetDefaultLogger(NewLoggerWithConfigManager(logCfg, configManager))
	return nil
}

// Initialize initializes the default logger using the singleton ConfigManager instance.
func Initialize() error {
	return InitializeWithConfigManager(config.GetInstance())
}

func Trace() *LogEvent {
	return _defaultLogger.Trace()
}

func Debug() *LogEvent {
	return _defaultLogger.Debug()
}

func Info() *LogEvent {
	return _defaultLogger.Info()
}

func Warn() *LogEvent {
	return _defaultLogger.Warn()
}

func Error() *LogEvent {
	return _defaultLogger.Error()
}

// Fatal logs and then panics once the event is written.
func Fatal() *LogEvent {
	return _defaultLogger.Fatal()
}
