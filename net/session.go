package net

import (
	"context"

	"github.com/lcx/neton/log"
	"github.com/lcx/neton/metrics"
)

const _metricGroup = "net"

// session is the receive side shared by clients and channels: one private
// RecvBuffer, the shared Registry and the connection's events. It is driven
// by a single reader at a time.
type session struct {
	buf      *RecvBuffer
	registry *Registry
	events   *ConnEvents
	exec     Executor
	logger   log.Logger
	limiter  RecvLimiter
	ctx      context.Context
}

func newSession(registry *Registry, events *ConnEvents, exec Executor, logger log.Logger, threshold int) *session {
	return &session{
		buf:      NewRecvBuffer(threshold),
		registry: registry,
		events:   events,
		exec:     exec,
		logger:   logger,
		ctx:      context.Background(),
	}
}

// handleRead appends data and, unless deferExtract is set, delivers every
// complete frame. It returns the number of frames extracted.
func (s *session) handleRead(data []byte, deferExtract bool) int {
	metrics.IncrCounterWithGroup(_metricGroup, "bytes_received_total", metrics.Value(len(data)))
	s.buf.Append(data)
	if deferExtract {
		return 0
	}
	return s.drain()
}

func (s *session) drain() int {
	frames := 0
	for {
		frame, err := s.registry.AnalyzeMessage(s.buf)
		if err != nil {
			metrics.IncrCounterWithGroup(_metricGroup, "frame_desync_total", 1)
			s.logger.Warn().Err(err).Msg("frame desync, receive buffer dropped")
			post(s.exec, &s.events.FrameDesync, newNetError(CodeFrameDesync, "analyze", err))
			break
		}
		if frame == nil {
			break
		}
		frames++
		if !s.deliver(frame) {
			break
		}
	}
	s.buf.CompactIfDrained()
	return frames
}

// deliver emits one frame. It returns false when the limiter was cancelled.
func (s *session) deliver(frame []byte) bool {
	metrics.IncrCounterWithGroup(_metricGroup, "frames_received_total", 1)
	metrics.ObserveHistogramWithGroup(_metricGroup, "frame_size_bytes", metrics.Value(len(frame)))
	s.logger.Trace().Int("size", len(frame)).Hex("frame", frame).Msg("frame received")

	post(s.exec, &s.events.RecvRaw, frame)

	msg, err := s.registry.DepackMessage(frame)
	if err != nil {
		metrics.IncrCounterWithGroup(_metricGroup, "frame_decode_error_total", 1)
		s.logger.Warn().Err(err).Msg("frame decode failed")
		post(s.exec, &s.events.DecodeFailed, newNetError(CodeDecodeFailed, "depack", err))
		return true
	}

	if s.limiter != nil {
		if err := s.limiter.Take(s.ctx); err != nil {
			return false
		}
	}
	post(s.exec, &s.events.RecvMessage, msg)
	return true
}
