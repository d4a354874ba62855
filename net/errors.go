package net

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

var (
	ErrDuplicateMessageID   = errors.New("net: duplicate message id")
	ErrDuplicateMessageType = errors.New("net: duplicate message type")
	ErrInvalidMessage       = errors.New("net: invalid message registration")
	ErrUnregisteredMessage  = errors.New("net: message type not registered")
	ErrUnknownMessageID     = errors.New("net: unknown message id")
	ErrPayloadTooLarge      = errors.New("net: payload too large")
	ErrShortFrame           = errors.New("net: frame shorter than header")
	ErrFrameLengthMismatch  = errors.New("net: frame length mismatch")
	ErrDecodeFailed         = errors.New("net: decode failed")
	ErrFrameDesync          = errors.New("net: frame desync")

	ErrRecvPending      = errors.New("net: receive already pending")
	ErrOperationTimeout = errors.New("net: operation timed out")
	ErrConnectAborted   = errors.New("net: connect superseded or cancelled")
	ErrNotConnected     = errors.New("net: not connected")
	ErrClosed           = errors.New("net: closed")
	ErrSendQueueFull    = errors.New("net: send queue full")
	ErrServiceRunning   = errors.New("net: service already running")
)

// ErrorCode is the machine readable reason carried by failure events.
type ErrorCode int

const (
	CodeSocketError ErrorCode = iota + 1
	CodeConnectionAborted
	CodeTimeout
	CodeFrameDesync
	CodeDecodeFailed
	CodePayloadTooLarge
	CodeNotConnected
	CodeClosed
)

var _codeNames = map[ErrorCode]string{
	CodeSocketError:       "socket_error",
	CodeConnectionAborted: "connection_aborted",
	CodeTimeout:           "timeout",
	CodeFrameDesync:       "frame_desync",
	CodeDecodeFailed:      "decode_failed",
	CodePayloadTooLarge:   "payload_too_large",
	CodeNotConnected:      "not_connected",
	CodeClosed:            "closed",
}

func (c ErrorCode) String() string {
	if s, ok := _codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// NetError is the payload of every failure event. Err keeps the underlying
// cause, including the OS error of socket failures.
type NetError struct {
	Code ErrorCode
	Op   string
	Err  error
}

func newNetError(code ErrorCode, op string, err error) *NetError {
	return &NetError{Code: code, Op: op, Err: err}
}

func (e *NetError) Error() string {
	if e.Err == nil {
		return "net: " + e.Op + ": " + e.Code.String()
	}
	return "net: " + e.Op + ": " + e.Code.String() + ": " + e.Err.Error()
}

func (e *NetError) Unwrap() error {
	return e.Err
}

// CodeOf extracts the ErrorCode of err, or 0 when err is not a *NetError.
func CodeOf(err error) ErrorCode {
	var ne *NetError
	if errors.As(err, &ne) {
		return ne.Code
	}
	return 0
}

// classify maps a transport error to the code reported to callbacks.
func classify(err error) ErrorCode {
	var ne net.Error
	switch {
	case err == nil:
		return CodeConnectionAborted
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrOperationTimeout):
		return CodeTimeout
	case errors.As(err, &ne) && ne.Timeout():
		return CodeTimeout
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE):
		return CodeConnectionAborted
	case errors.Is(err, net.ErrClosed):
		return CodeClosed
	default:
		return CodeSocketError
	}
}
