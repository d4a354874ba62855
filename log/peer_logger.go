package log

// PeerLogger stamps every event with the channel id and remote address of one
// connection. It shares the appenders of its parent GameLogger, and when the
// peer's IP is in LogCfg.PeerWhiteList every level is written regardless of
// the configured minimum, which makes it possible to trace a single client in
// production.
type PeerLogger struct {
	parent      *GameLogger
	channelID   string
	peer        string
	inWhiteList bool
}

// NewPeerLogger creates a PeerLogger over parent for the given connection.
// A nil parent uses the package default logger.
func NewPeerLogger(parent *GameLogger, channelID, peer string) *PeerLogger {
	if parent == nil {
		parent = _defaultLogger
	}
	cfg := parent.GetCurrentConfig()
	return &PeerLogger{
		parent:      parent,
		channelID:   channelID,
		peer:        peer,
		inWhiteList: cfg != nil && cfg.IsInWhiteList(peer),
	}
}

func (x *PeerLogger) log(level Level) *LogEvent {
	e := x.parent.logWith(level, x.inWhiteList, 0)
	if e == nil {
		return nil
	}
	if x.channelID != "" {
		e.Str("channel", x.channelID)
	}
	return e.Str("peer", x.peer)
}

// IgnoreCheckLevel reports whether the peer is whitelisted.
func (x *PeerLogger) IgnoreCheckLevel() bool {
	return x.inWhiteList
}

func (x *PeerLogger) Trace() *LogEvent {
	return x.log(TraceLevel)
}

func (x *PeerLogger) Debug() *LogEvent {
	return x.log(DebugLevel)
}

func (x *PeerLogger) Info() *LogEvent {
	return x.log(InfoLevel)
}

func (x *PeerLogger) Warn() *LogEvent {
	return x.log(WarnLevel)
}

func (x *PeerLogger) Error() *LogEvent {
	return x.log(ErrorLevel)
}

func (x *PeerLogger) Fatal() *LogEvent {
	return x.log(FatalLevel)
}

func (x *PeerLogger) GetAppender() []LogAppender {
	return x.parent.GetAppender()
}

func (x *PeerLogger) AddAppender(appender LogAppender) {
	x.parent.AddAppender(appender)
}

func (x *PeerLogger) OnEventEnd(e *LogEvent) {
	x.parent.OnEventEnd(e)
}
