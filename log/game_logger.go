package log

import (
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lcx/neton/config"
)

// GameLogger is the leveled event logger behind the package-level helpers.
// The transport logs connection lifecycle, desync and decode failures
// through it, so a disabled level returns a nil event without allocating.
//
//	logger := NewLogger(&LogCfg{LogLevel: InfoLevel, ConsoleAppender: true})
//	logger.Info().Str("addr", ":7001").Int("channels", 42).Msg("service started")
//
// Level, caller settings and per-line overrides can be swapped at runtime
// through the "logger" config.
type GameLogger struct {
	minLevel atomic.Uint32
	settings atomic.Pointer[loggerSettings]

	mu        sync.RWMutex
	appenders []LogAppender

	eventPool   sync.Pool
	callerCache sync.Map // pc -> *callerInfo
}

// loggerSettings is replaced as a whole on reload.
type loggerSettings struct {
	cfg         *LogCfg
	callerSkip  int
	callerInfo  bool
	levelChange *levelChange
}

func settingsOf(cfg *LogCfg) *loggerSettings {
	return &loggerSettings{
		cfg:         cfg,
		callerSkip:  cfg.CallerSkip,
		callerInfo:  cfg.EnabledCallerInfo,
		levelChange: newLevelChange(cfg.LevelChange),
	}
}

// NewLogger builds a logger from cfg, or from the defaults when cfg is nil.
func NewLogger(cfg *LogCfg) *GameLogger {
	if cfg == nil {
		cfg = getDefaultCfg()
	}

	logger := &GameLogger{}
	logger.minLevel.Store(uint32(cfg.LogLevel))
	logger.settings.Store(settingsOf(cfg))
	logger.eventPool.New = func() any {
		return newEvent(logger)
	}

	if cfg.FileAppender {
		logger.AddAppender(NewFileAppender(cfg, logger))
	}
	if cfg.ConsoleAppender {
		logger.AddAppender(NewConsoleAppender())
	}
	return logger
}

// NewLoggerWithConfigManager is NewLogger plus hot reload: the logger and
// its file appender follow later changes to the "logger" config.
func NewLoggerWithConfigManager(cfg *LogCfg, configManager config.ConfigManager) *GameLogger {
	logger := NewLogger(cfg)
	if configManager != nil {
		configManager.AddChangeListener(logger)
		logger.rebuildAppenders(configManager)
	}
	return logger
}

// rebuildAppenders replaces the appenders with ones bound to configManager.
func (x *GameLogger) rebuildAppenders(configManager config.ConfigManager) {
	x.mu.Lock()
	x.appenders = nil
	x.mu.Unlock()

	cfg, err := configManager.GetConfig("logger")
	if err != nil {
		return
	}
	logCfg, ok := cfg.(*LogCfg)
	if !ok {
		return
	}
	if logCfg.FileAppender {
		x.AddAppender(NewFileAppenderWithConfigManager(configManager, x))
	}
	if logCfg.ConsoleAppender {
		x.AddAppender(NewConsoleAppender())
	}
}

// OnConfigChanged applies a new "logger" config and forwards it to every
// appender that listens for changes. Other config names are ignored.
func (x *GameLogger) OnConfigChanged(configName string, newConfig, oldConfig config.Config) error {
	if configName != "logger" {
		return nil
	}
	newLogCfg, ok := newConfig.(*LogCfg)
	if !ok {
		return nil
	}

	x.updateConfig(newLogCfg)

	for _, appender := range x.GetAppender() {
		listener, ok := appender.(config.ConfigChangeListener)
		if !ok {
			continue
		}
		if err := listener.OnConfigChanged(configName, newConfig, oldConfig); err != nil {
			x.Error().Err(err).Msg("appender rejected config change")
		}
	}
	return nil
}

func (x *GameLogger) updateConfig(newCfg *LogCfg) {
	x.minLevel.Store(uint32(newCfg.LogLevel))
	x.settings.Store(settingsOf(newCfg))
	x.Refresh()
}

// GetCurrentConfig returns the config last applied.
func (x *GameLogger) GetCurrentConfig() *LogCfg {
	return x.settings.Load().cfg
}

func (x *GameLogger) checkLevel(level Level) bool {
	return Level(x.minLevel.Load()) <= level
}

// SetLevel changes the minimum level at runtime.
func (x *GameLogger) SetLevel(level Level) {
	x.minLevel.Store(uint32(level))
}

// AddAppender adds an output. Every event is written to all appenders.
func (x *GameLogger) AddAppender(appender LogAppender) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.appenders = append(x.appenders, appender)
}

// GetAppender returns the registered appenders.
func (x *GameLogger) GetAppender() []LogAppender {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.appenders
}

// Refresh flushes every appender.
func (x *GameLogger) Refresh() {
	for _, appender := range x.GetAppender() {
		appender.Refresh()
	}
}

// IgnoreCheckLevel is always false: GameLogger filters by level.
func (x *GameLogger) IgnoreCheckLevel() bool {
	return false
}

func (x *GameLogger) newEvent() *LogEvent {
	e := x.eventPool.Get().(*LogEvent)
	e.Reset()
	return e
}

// OnEventEnd writes a finished event and returns it to the pool. A Fatal
// event panics with the formatted line after it is written.
func (x *GameLogger) OnEventEnd(e *LogEvent) {
	for _, appender := range x.GetAppender() {
		_, _ = appender.Write(e.buf.Bytes())
	}
	if e.level == FatalLevel {
		panic(string(e.buf.Bytes()))
	}
	x.eventPool.Put(e)
}

// Trace starts a trace event, used for per-frame dumps.
func (x *GameLogger) Trace() *LogEvent {
	return x.log(TraceLevel)
}

// Debug starts a debug event, or returns nil when debug is disabled.
func (x *GameLogger) Debug() *LogEvent {
	return x.log(DebugLevel)
}

// Info starts an info event.
func (x *GameLogger) Info() *LogEvent {
	return x.log(InfoLevel)
}

// Warn starts a warning event.
func (x *GameLogger) Warn() *LogEvent {
	return x.log(WarnLevel)
}

// Error starts an error event.
func (x *GameLogger) Error() *LogEvent {
	return x.log(ErrorLevel)
}

// Fatal starts an event that panics once Msg writes it.
func (x *GameLogger) Fatal() *LogEvent {
	return x.log(FatalLevel)
}

// getCallerInfo resolves the caller of the level method as "dir/file.go",
// function name and line. Results are cached per program counter.
func (x *GameLogger) getCallerInfo(skip, extraSkip int) *callerInfo {
	// getCallerInfo, logWith, log and the level method sit above the caller.
	pc, file, line, ok := runtime.Caller(4 + skip + extraSkip)
	if !ok {
		return _UnknownCallerInfo
	}
	if cached, found := x.callerCache.Load(pc); found {
		return cached.(*callerInfo)
	}

	function := runtime.FuncForPC(pc).Name()
	if dot := strings.LastIndexByte(function, '.'); dot != -1 {
		function = function[dot+1:]
	}
	if last := strings.LastIndexByte(file, '/'); last > 0 {
		if prev := strings.LastIndexByte(file[:last], '/'); prev >= 0 {
			file = file[prev+1:]
		}
	}

	c := newCallerInfo(file, function, line)
	x.callerCache.Store(pc, c)
	return c
}

func (x *GameLogger) log(level Level) *LogEvent {
	return x.logWith(level, x.IgnoreCheckLevel(), 0)
}

// logWith is log with an explicit level bypass for wrappers such as
// PeerLogger, which add extraSkip frames to the call stack.
func (x *GameLogger) logWith(level Level, ignoreLevel bool, extraSkip int) *LogEvent {
	s := x.settings.Load()
	var info *callerInfo
	if !ignoreLevel && !x.checkLevel(level) {
		if s.levelChange.Empty() {
			return nil
		}
		// a per-line override may raise this call site above the minimum
		info = x.getCallerInfo(s.callerSkip, extraSkip)
		level = s.levelChange.GetLevel(info.file, info.line, level)
		if !x.checkLevel(level) {
			return nil
		}
	}

	e := x.newEvent()
	e.level = level

	t := time.Now()
	e.Time("time", &t)
	e.Str("level", level.String())

	if s.callerInfo {
		if info == nil {
			info = x.getCallerInfo(s.callerSkip, extraSkip)
		}
		e.Str("caller", info.String())
	}
	return e
}
