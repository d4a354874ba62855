package net

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecvBufferCursor(t *testing.T) {
	b := NewRecvBuffer(0)
	assert.Equal(t, DefaultCompactThreshold, b.Threshold())

	b.Append([]byte{1, 2, 3, 4, 5})
	assert.Equal(t, []byte{1, 2}, b.Peek(2))
	assert.Nil(t, b.Peek(6))
	assert.Equal(t, 0, b.Cursor())

	b.Advance(3)
	assert.Equal(t, 3, b.Cursor())
	assert.Equal(t, 2, b.Unread())
	assert.Equal(t, []byte{4, 5}, b.Peek(2))
	assert.Panics(t, func() { b.Advance(3) })

	b.Reset()
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 0, b.Cursor())
}

func TestRecvBufferCompaction(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		consume  int
		compacts bool
	}{
		{name: "drained at threshold", size: 8192, consume: 8192, compacts: false},
		{name: "drained past threshold", size: 8193, consume: 8193, compacts: true},
		{name: "unread bytes past threshold", size: 9000, consume: 8999, compacts: false},
		{name: "drained below threshold", size: 100, consume: 100, compacts: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewRecvBuffer(DefaultCompactThreshold)
			b.Append(make([]byte, tt.size))
			b.Advance(tt.consume)

			assert.Equal(t, tt.compacts, b.CompactIfDrained())
			if tt.compacts {
				assert.Equal(t, 0, b.Len())
				assert.Equal(t, 0, b.Cursor())
			} else {
				assert.Equal(t, tt.size, b.Len())
				assert.Equal(t, tt.consume, b.Cursor())
			}
		})
	}
}

func TestRecvBufferCustomThreshold(t *testing.T) {
	b := NewRecvBuffer(4)
	b.Append([]byte{1, 2, 3, 4, 5})
	b.Advance(5)
	assert.True(t, b.CompactIfDrained())
}
