package statusapi

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfkrypt/mirror/internal/pipeline"
)

type fakeSource struct {
	state   pipeline.State
	running bool
	stats   pipeline.Stats
}

func (f fakeSource) State() pipeline.State { return f.state }
func (f fakeSource) IsRunning() bool       { return f.running }
func (f fakeSource) Stats() pipeline.Stats { return f.stats }

func TestHealthzReportsState(t *testing.T) {
	src := fakeSource{state: pipeline.StateStreaming, running: true}
	srv := New("127.0.0.1:17770", src)
	srv.Start()
	defer srv.Stop()

	time.Sleep(50 * time.Millisecond)
	resp, err := http.Get("http://127.0.0.1:17770/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var h healthResponse
	require.NoError(t, json.Unmarshal(body, &h))
	assert.Equal(t, "streaming", h.State)
	assert.True(t, h.Connected)
}

func TestMetricsReportsQueueDepthsAndDrops(t *testing.T) {
	src := fakeSource{
		state:   pipeline.StateStreaming,
		running: true,
		stats: pipeline.Stats{
			State:         pipeline.StateStreaming,
			VideoQueueLen: 3,
			AudioQueueLen: 1,
			FrameQueueLen: 1,
			VideoDrops:    12,
			AudioDrops:    4,
			Resyncs:       2,
		},
	}
	srv := New("127.0.0.1:17771", src)
	srv.Start()
	defer srv.Stop()

	time.Sleep(50 * time.Millisecond)
	resp, err := http.Get("http://127.0.0.1:17771/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var m metricsResponse
	require.NoError(t, json.Unmarshal(body, &m))
	assert.Equal(t, 3, m.VideoQueueLen)
	assert.EqualValues(t, 12, m.VideoDrops)
	assert.EqualValues(t, 2, m.Resyncs)
}

func TestStopBeforeStartIsSafe(t *testing.T) {
	srv := New("127.0.0.1:0", fakeSource{})
	srv.Stop()
}
