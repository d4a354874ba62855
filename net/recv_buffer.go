package net

// DefaultCompactThreshold is the cursor high-water mark past which a fully
// drained RecvBuffer is reset.
const DefaultCompactThreshold = 8192

// RecvBuffer accumulates raw bytes of one connection and tracks how far
// frame extraction has consumed them.
//
// Invariants: 0 <= Cursor() <= Len(). Bytes before the cursor are never read
// again. The buffer only shrinks through Reset or CompactIfDrained, and
// compaction never discards unread bytes. Not safe for concurrent use.
type RecvBuffer struct {
	data      []byte
	cursor    int
	threshold int
}

// NewRecvBuffer creates a buffer compacting past threshold bytes. A threshold
// <= 0 selects DefaultCompactThreshold.
func NewRecvBuffer(threshold int) *RecvBuffer {
	if threshold <= 0 {
		threshold = DefaultCompactThreshold
	}
	return &RecvBuffer{threshold: threshold}
}

// Append copies p to the end of the buffer.
func (b *RecvBuffer) Append(p []byte) {
	b.data = append(b.data, p...)
}

// Len is the logical end of the buffer.
func (b *RecvBuffer) Len() int {
	return len(b.data)
}

// Cursor is the offset of the first unconsumed byte.
func (b *RecvBuffer) Cursor() int {
	return b.cursor
}

// Unread is the number of bytes between the cursor and the end.
func (b *RecvBuffer) Unread() int {
	return len(b.data) - b.cursor
}

// Threshold returns the compaction high-water mark.
func (b *RecvBuffer) Threshold() int {
	return b.threshold
}

// Peek returns the next n unread bytes without consuming them, or nil when
// fewer than n remain. The slice aliases the buffer.
func (b *RecvBuffer) Peek(n int) []byte {
	if n < 0 || n > b.Unread() {
		return nil
	}
	return b.data[b.cursor : b.cursor+n]
}

// Advance consumes n bytes. It panics when n exceeds Unread, which would
// break the cursor invariant.
func (b *RecvBuffer) Advance(n int) {
	if n < 0 || n > b.Unread() {
		panic("net: RecvBuffer.Advance out of range")
	}
	b.cursor += n
}

// Reset drops every byte and moves the cursor to zero. Capacity is kept.
func (b *RecvBuffer) Reset() {
	b.data = b.data[:0]
	b.cursor = 0
}

// CompactIfDrained resets the buffer when the cursor is past the threshold
// and nothing is left unread. It reports whether it did.
func (b *RecvBuffer) CompactIfDrained() bool {
	if b.cursor > b.threshold && b.cursor == len(b.data) {
		b.Reset()
		return true
	}
	return false
}
