package log

import (
	"errors"
	"net"
	"sync"
)

// LogCfg configures a GameLogger. It is loaded from the "logger" config file
// and can be changed at runtime through the config manager.
type LogCfg struct {
	// LogPath is the target file of the file appender. Parent directories are created.
	LogPath string `mapstructure:"path"`

	// LogLevel is the minimum level written. Hot reloadable.
	LogLevel Level `mapstructure:"level"`

	// FileSplitMB rotates the log file once it grows past this many megabytes.
	// Zero disables rotation.
	FileSplitMB int `mapstructure:"splitmb"`

	// MaxBackups caps the number of rotated files kept. Zero keeps them all.
	MaxBackups int `mapstructure:"maxBackups"`

	// Compress gzips rotated files.
	Compress bool `mapstructure:"compress"`

	// IsAsync buffers file writes and flushes them every AsyncWriteMillSec.
	IsAsync bool `mapstructure:"isasync"`

	// AsyncWriteMillSec is the flush interval of an async file appender.
	// Default: 200ms.
	AsyncWriteMillSec int `mapstructure:"asyncwritemillsec"`

	// CallerSkip specifies the number of extra stack frames to skip for caller information.
	// The package level functions (log.Info() and friends) add one frame.
	CallerSkip int `mapstructure:"callerSkip"`

	// FileAppender enables file output.
	FileAppender bool `mapstructure:"fileAppender"`

	// ConsoleAppender enables stdout output.
	ConsoleAppender bool `mapstructure:"consoleAppender"`

	// LevelChange overrides the level of single log statements by file and line,
	// for turning on one noisy statement in production without lowering the
	// global level.
	LevelChange []LevelChangeEntry `mapstructure:"levelChange"`

	// PeerWhiteList lists remote IPs whose connection logs bypass level
	// filtering, e.g. ["10.0.0.12", "192.168.1.7"].
	PeerWhiteList []string `mapstructure:"peerWhiteList"`

	// peerWhiteListSet caches PeerWhiteList for O(1) lookups. It is built
	// once, on first use, and only read afterwards.
	peerWhiteListSet  map[string]struct{} `mapstructure:"-"`
	peerWhiteListOnce sync.Once           `mapstructure:"-"`

	EnabledCallerInfo bool `mapstructure:"enabledCallerInfo"`
}

// GetName implements config.Config.
func (cfg *LogCfg) GetName() string {
	return "logger"
}

// Validate implements config.Config.
func (cfg *LogCfg) Validate() error {
	if cfg.LogLevel > FatalLevel {
		return errors.New("level out of range")
	}
	if cfg.FileAppender && cfg.LogPath == "" {
		return errors.New("path is required when fileAppender is enabled")
	}
	if cfg.FileSplitMB < 0 {
		return errors.New("splitmb must not be negative")
	}
	if cfg.MaxBackups < 0 {
		return errors.New("maxBackups must not be negative")
	}
	return nil
}

// ApplyDefaults implements config.Defaulter.
func (cfg *LogCfg) ApplyDefaults() {
	if cfg.LogPath == "" {
		cfg.LogPath = _defaultCfg.LogPath
	}
	if cfg.AsyncWriteMillSec == 0 {
		cfg.AsyncWriteMillSec = 200
	}
}

// IsInWhiteList reports whether the IP of addr is whitelisted. addr may be
// "host:port" or a bare host.
func (cfg *LogCfg) IsInWhiteList(addr string) bool {
	if len(cfg.PeerWhiteList) == 0 {
		return false
	}
	cfg.peerWhiteListOnce.Do(func() {
		set := make(map[string]struct{}, len(cfg.PeerWhiteList))
		for _, ip := range cfg.PeerWhiteList {
			set[ip] = struct{}{}
		}
		cfg.peerWhiteListSet = set
	})

	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	_, exists := cfg.peerWhiteListSet[host]
	return exists
}

var _defaultCfg = &LogCfg{
	LogPath:           "./neton.log",
	LogLevel:          InfoLevel,
	FileSplitMB:       50,
	IsAsync:           true,
	AsyncWriteMillSec: 200,
	CallerSkip:        1,
	ConsoleAppender:   true,
}

func getDefaultCfg() *LogCfg {
	return _defaultCfg
}
