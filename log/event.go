package log

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"
)

// ObjectMarshaller lets a value write its own fields into an event.
type ObjectMarshaller interface {
	MarshalLogObj(e *LogEvent)
}

// LogEvent accumulates the fields of one log line. Every method is safe on a
// nil receiver, which is what a disabled level returns, so call chains such as
// log.Debug().Str("k", v).Msg("...") cost nothing when debug is off.
type LogEvent struct {
	buf    bytes.Buffer
	level  Level
	logger Logger
}

func newEvent(logger Logger) *LogEvent {
	return &LogEvent{logger: logger}
}

// Reset clears the event for reuse.
func (e *LogEvent) Reset() {
	e.buf.Reset()
	e.level = InfoLevel
}

// Level returns the severity the event was created with.
func (e *LogEvent) Level() Level {
	if e == nil {
		return InfoLevel
	}
	return e.level
}

func (e *LogEvent) key(k string) {
	if e.buf.Len() > 0 {
		e.buf.WriteByte(' ')
	}
	e.buf.WriteString(k)
	e.buf.WriteByte('=')
}

func (e *LogEvent) quoted(v string) {
	if needsQuote(v) {
		e.buf.WriteString(strconv.Quote(v))
		return
	}
	e.buf.WriteString(v)
}

func needsQuote(s string) bool {
	if s == "" {
		return true
	}
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			if c <= ' ' || c == '"' || c == '=' || c == '\\' {
				return true
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError {
			return true
		}
		i += size
	}
	return false
}

func (e *LogEvent) Str(k, v string) *LogEvent {
	if e == nil {
		return nil
	}
	e.key(k)
	e.quoted(v)
	return e
}

func (e *LogEvent) Int(k string, v int) *LogEvent {
	if e == nil {
		return nil
	}
	e.key(k)
	e.buf.WriteString(strconv.Itoa(v))
	return e
}

func (e *LogEvent) Int64(k string, v int64) *LogEvent {
	if e == nil {
		return nil
	}
	e.key(k)
	e.buf.WriteString(strconv.FormatInt(v, 10))
	return e
}

func (e *LogEvent) Uint16(k string, v uint16) *LogEvent {
	return e.Uint64(k, uint64(v))
}

func (e *LogEvent) Uint32(k string, v uint32) *LogEvent {
	return e.Uint64(k, uint64(v))
}

func (e *LogEvent) Uint64(k string, v uint64) *LogEvent {
	if e == nil {
		return nil
	}
	e.key(k)
	e.buf.WriteString(strconv.FormatUint(v, 10))
	return e
}

func (e *LogEvent) Float64(k string, v float64) *LogEvent {
	if e == nil {
		return nil
	}
	e.key(k)
	e.buf.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	return e
}

func (e *LogEvent) Bool(k string, v bool) *LogEvent {
	if e == nil {
		return nil
	}
	e.key(k)
	e.buf.WriteString(strconv.FormatBool(v))
	return e
}

// Err adds the error under the key "err". A nil error is skipped.
func (e *LogEvent) Err(err error) *LogEvent {
	if e == nil || err == nil {
		return e
	}
	return e.Str("err", err.Error())
}

func (e *LogEvent) Dur(k string, d time.Duration) *LogEvent {
	if e == nil {
		return nil
	}
	e.key(k)
	e.buf.WriteString(d.String())
	return e
}

func (e *LogEvent) Time(k string, t *time.Time) *LogEvent {
	if e == nil || t == nil {
		return e
	}
	e.key(k)
	e.buf.WriteString(t.Format("2006-01-02T15:04:05.000Z07:00"))
	return e
}

// Hex adds b as lowercase hex, handy for dumping frame bytes.
func (e *LogEvent) Hex(k string, b []byte) *LogEvent {
	if e == nil {
		return nil
	}
	e.key(k)
	e.buf.WriteString(fmt.Sprintf("%x", b))
	return e
}

// Any adds v formatted with %v.
func (e *LogEvent) Any(k string, v any) *LogEvent {
	if e == nil {
		return nil
	}
	return e.Str(k, fmt.Sprintf("%v", v))
}

// Obj lets o write its own fields.
func (e *LogEvent) Obj(o ObjectMarshaller) *LogEvent {
	if e == nil || o == nil {
		return e
	}
	o.MarshalLogObj(e)
	return e
}

// Msg finishes the event and hands it to the logger's appenders.
func (e *LogEvent) Msg(msg string) {
	if e == nil {
		return
	}
	e.key("msg")
	e.quoted(msg)
	e.buf.WriteByte('\n')
	e.logger.OnEventEnd(e)
}

// Msgf is Msg with fmt.Sprintf formatting.
func (e *LogEvent) Msgf(format string, args ...any) {
	if e == nil {
		return
	}
	e.Msg(fmt.Sprintf(format, args...))
}

// Bytes returns the encoded line. It is only valid until the event is reused.
func (e *LogEvent) Bytes() []byte {
	if e == nil {
		return nil
	}
	return e.buf.Bytes()
}
