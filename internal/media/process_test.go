package media

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessRendererStartWriteStop(t *testing.T) {
	r := NewProcessRenderer("cat")
	require.True(t, r.Start())
	assert.True(t, r.IsRunning())

	frame, ok := r.Decode([]byte{1, 2, 3})
	assert.False(t, ok)
	assert.Equal(t, Frame{}, frame)

	r.Stop()
	assert.False(t, r.IsRunning())
}

func TestProcessRendererStartMissingBinaryFails(t *testing.T) {
	r := NewProcessRenderer("definitely-not-a-real-binary-xyz")
	assert.False(t, r.Start())
	assert.False(t, r.IsRunning())
}

func TestProcessRendererDecodeBeforeStartIsNoop(t *testing.T) {
	r := NewProcessRenderer("cat")
	frame, ok := r.Decode([]byte{1})
	assert.False(t, ok)
	assert.Equal(t, Frame{}, frame)
}

func TestWithStartCodePrependsOnlyWhenMissing(t *testing.T) {
	raw := []byte{0x67, 0x42, 0x00}
	withCode := withStartCode(raw)
	assert.Equal(t, append([]byte{0, 0, 0, 1}, raw...), withCode)

	alreadyPrefixed := append([]byte{0, 0, 0, 1}, raw...)
	assert.Equal(t, alreadyPrefixed, withStartCode(alreadyPrefixed))
}

func TestProcessRendererStopIsIdempotent(t *testing.T) {
	r := NewProcessRenderer("cat")
	require.True(t, r.Start())
	r.Stop()
	r.Stop()
	assert.False(t, r.IsRunning())
}

func TestProcessRendererStartTwiceIsNoop(t *testing.T) {
	r := NewProcessRenderer("cat")
	require.True(t, r.Start())
	defer r.Stop()
	assert.True(t, r.Start())
	time.Sleep(10 * time.Millisecond)
	assert.True(t, r.IsRunning())
}
