package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter(t *testing.T) {
	Reset()
	IncrCounterWithGroup("net", "frames_received_total", 1)
	IncrCounterWithGroup("net", "frames_received_total", 2)
	IncrCounterWithGroup("net", "frames_received_total", -5)

	c := _collectors["counter:net_frames_received_total"]
	require.NotNil(t, c)
	assert.Equal(t, 3.0, testutil.ToFloat64(c.counter.WithLabelValues()))
}

func TestCounterWithDimensions(t *testing.T) {
	Reset()
	IncrCounterWithDimGroup("net", "connect_error_total", 1, Dimension{"error_type": "dial"})
	IncrCounterWithDimGroup("net", "connect_error_total", 1, Dimension{"error_type": "dial"})
	IncrCounterWithDimGroup("net", "connect_error_total", 1, Dimension{"error_type": "timeout"})
	// a different label set is dropped
	IncrCounterWithDimGroup("net", "connect_error_total", 1, Dimension{"other": "x"})

	c := _collectors["counter:net_connect_error_total"]
	require.NotNil(t, c)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.counter.WithLabelValues("dial")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.counter.WithLabelValues("timeout")))
}

func TestGaugeAndHistogram(t *testing.T) {
	Reset()
	UpdateGaugeWithGroup("net", "current_channels", 4)
	UpdateGaugeWithGroup("net", "current_channels", 2)
	ObserveHistogramWithGroup("net", "frame_size_bytes", 100)
	ObserveHistogramWithGroup("net", "frame_size_bytes", 300)

	g := _collectors["gauge:net_current_channels"]
	require.NotNil(t, g)
	assert.Equal(t, 2.0, testutil.ToFloat64(g.gauge.WithLabelValues()))

	n, err := testutil.GatherAndCount(Registry(), "neton_net_frame_size_bytes")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestKindConflict(t *testing.T) {
	Reset()
	IncrCounterWithGroup("net", "dup", 1)
	assert.NotPanics(t, func() { UpdateGaugeWithGroup("net", "dup", 1) })
	_, ok := _collectors["gauge:net_dup"]
	assert.False(t, ok)
}

func TestHandler(t *testing.T) {
	Reset()
	IncrCounterWithGroup("net", "bytes_sent_total", 42)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "neton_net_bytes_sent_total 42"))
}
