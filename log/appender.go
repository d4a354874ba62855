package log

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/lcx/neton/config"
)

// LogAppender writes finished log lines to some destination.
type LogAppender interface {
	Write(p []byte) (int, error)
	// Refresh flushes buffered output and picks up configuration changes.
	Refresh()
}

// ConsoleAppender writes to standard output.
type ConsoleAppender struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleAppender creates an appender writing to os.Stdout.
func NewConsoleAppender() *ConsoleAppender {
	return &ConsoleAppender{out: os.Stdout}
}

// NewWriterAppender creates a console style appender over any writer, mostly
// useful in tests.
func NewWriterAppender(w io.Writer) *ConsoleAppender {
	return &ConsoleAppender{out: w}
}

func (c *ConsoleAppender) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(p)
}

func (c *ConsoleAppender) Refresh() {}

const (
	_mb = 1024 * 1024
	// _noSplitMB stands in for "never rotate" since lumberjack treats a zero
	// MaxSize as its 100 MB default.
	_noSplitMB = 1 << 20
)

// FileAppender writes to a file rotated by lumberjack once it grows past
// FileSplitMB. In async mode lines are buffered and flushed every
// AsyncWriteMillSec by a background goroutine. Flushes never split a line, so
// a rotated file always ends on a line boundary.
type FileAppender struct {
	mu       sync.Mutex
	cfg      fileCfg
	async    bool
	interval time.Duration
	file     *lumberjack.Logger
	writer   *bufio.Writer
	stop     chan struct{}
	stopOnce sync.Once
	logger   Logger
}

type fileCfg struct {
	path       string
	splitMB    int
	maxBackups int
	compress   bool
}

func fileCfgOf(cfg *LogCfg) fileCfg {
	return fileCfg{
		path:       cfg.LogPath,
		splitMB:    cfg.FileSplitMB,
		maxBackups: cfg.MaxBackups,
		compress:   cfg.Compress,
	}
}

// NewFileAppender writes to cfg.LogPath. The file and its directory are
// created on the first write.
func NewFileAppender(cfg *LogCfg, logger Logger) *FileAppender {
	f := &FileAppender{
		cfg:    fileCfgOf(cfg),
		async:  cfg.IsAsync,
		stop:   make(chan struct{}),
		logger: logger,
	}
	f.interval = time.Duration(cfg.AsyncWriteMillSec) * time.Millisecond
	if f.interval <= 0 {
		f.interval = 200 * time.Millisecond
	}

	f.mu.Lock()
	f.openLocked()
	f.mu.Unlock()

	if f.async {
		go f.flushLoop()
	}
	return f
}

// NewFileAppenderWithConfigManager builds a FileAppender from the "logger"
// config held by configManager, falling back to the defaults.
func NewFileAppenderWithConfigManager(configManager config.ConfigManager, logger Logger) *FileAppender {
	cfg := getDefaultCfg()
	if configManager != nil {
		if c, err := configManager.GetConfig("logger"); err == nil {
			if logCfg, ok := c.(*LogCfg); ok {
				cfg = logCfg
			}
		}
	}
	return NewFileAppender(cfg, logger)
}

func (f *FileAppender) openLocked() {
	if f.cfg.path == "" {
		return
	}
	splitMB := f.cfg.splitMB
	if splitMB <= 0 {
		splitMB = _noSplitMB
	}
	f.file = &lumberjack.Logger{
		Filename:   f.cfg.path,
		MaxSize:    splitMB,
		MaxBackups: f.cfg.maxBackups,
		LocalTime:  true,
		Compress:   f.cfg.compress,
	}
	f.writer = bufio.NewWriterSize(f.file, 64*1024)
}

func (f *FileAppender) closeLocked() {
	if f.file == nil {
		return
	}
	if err := f.writer.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "log: flush %s: %v\n", f.cfg.path, err)
	}
	_ = f.file.Close()
	f.file = nil
	f.writer = nil
}

func (f *FileAppender) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return 0, fmt.Errorf("log file %s not open", f.cfg.path)
	}
	if len(p) > f.writer.Available() && f.writer.Buffered() > 0 {
		if err := f.writer.Flush(); err != nil {
			return 0, err
		}
	}
	n, err := f.writer.Write(p)
	if err == nil && !f.async {
		err = f.writer.Flush()
	}
	return n, err
}

// Refresh flushes buffered lines.
func (f *FileAppender) Refresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		f.openLocked()
		return
	}
	_ = f.writer.Flush()
}

// Rotate closes the current file, renames it with a timestamp and starts a
// new one.
func (f *FileAppender) Rotate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return fmt.Errorf("log file %s not open", f.cfg.path)
	}
	if err := f.writer.Flush(); err != nil {
		return err
	}
	return f.file.Rotate()
}

// OnConfigChanged reopens the file when the path or rotation settings change.
func (f *FileAppender) OnConfigChanged(configName string, newConfig, _ config.Config) error {
	if configName != "logger" {
		return nil
	}
	cfg, ok := newConfig.(*LogCfg)
	if !ok {
		return nil
	}

	next := fileCfgOf(cfg)
	if next.path == "" {
		next.path = f.cfg.path
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if next == f.cfg {
		return nil
	}
	f.closeLocked()
	f.cfg = next
	f.openLocked()
	return nil
}

// Close flushes and closes the file and stops the flush goroutine.
func (f *FileAppender) Close() error {
	f.stopOnce.Do(func() { close(f.stop) })
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeLocked()
	return nil
}

func (f *FileAppender) flushLoop() {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-f.stop:
			return
		case <-ticker.C:
			f.mu.Lock()
			if f.writer != nil {
				_ = f.writer.Flush()
			}
			f.mu.Unlock()
		}
	}
}
