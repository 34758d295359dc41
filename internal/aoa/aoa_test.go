package aoa

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityStringsOrder(t *testing.T) {
	id := Identity{
		Manufacturer: "Wolfkrypt",
		Model:        "Screen Mirror Host",
		Description:  "Wolfkrypt Screen Mirror for Android",
		Version:      "1.0",
		URI:          "https://wolfkrypt.example",
		Serial:       "WK001",
	}

	got := id.strings()
	assert.Equal(t, [6]string{
		"Wolfkrypt",
		"Screen Mirror Host",
		"Wolfkrypt Screen Mirror for Android",
		"1.0",
		"https://wolfkrypt.example",
		"WK001",
	}, got)
}

func TestNewHostStartsDisconnected(t *testing.T) {
	h := NewHost(Identity{})
	assert.False(t, h.IsConnected())
}

func TestDisconnectOnUnconnectedHostIsSafe(t *testing.T) {
	h := NewHost(Identity{})
	h.Disconnect()
	assert.False(t, h.IsConnected())
}

func TestReadBeforeConnectReturnsNotConnected(t *testing.T) {
	h := NewHost(Identity{})
	n, err := h.Read(make([]byte, 16), 0)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestWriteBeforeConnectFails(t *testing.T) {
	h := NewHost(Identity{})
	assert.False(t, h.Write([]byte{1, 2, 3}))
}
