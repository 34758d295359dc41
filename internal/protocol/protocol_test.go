package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeHeaderRoundTrip(t *testing.T) {
	hdr := EncodeHeader(Video, 1024)
	assert.Equal(t, [5]byte{0x01, 0x00, 0x00, 0x04, 0x00}, hdr)

	decoded, ok := DecodeHeader(hdr[:])
	require.True(t, ok)
	assert.Equal(t, Video, decoded.Type)
	assert.Equal(t, uint32(1024), decoded.Length)
}

func TestDecodeHeaderAllRecognizedTypes(t *testing.T) {
	types := []PacketType{Video, Audio, Config, Heartbeat, AuthChallenge, AuthResponse, AuthSuccess, AuthFail}
	for _, pt := range types {
		hdr := EncodeHeader(pt, 0)
		decoded, ok := DecodeHeader(hdr[:])
		require.True(t, ok, "type %v should decode", pt)
		assert.Equal(t, pt, decoded.Type)
	}
}

func TestDecodeHeaderUnknownType(t *testing.T) {
	data := []byte{0xFF, 0x00, 0x00, 0x00, 0x01}
	_, ok := DecodeHeader(data)
	assert.False(t, ok)
}

func TestDecodeHeaderOversizePayload(t *testing.T) {
	data := []byte{0x01, 0xFF, 0xFF, 0xFF, 0xFF}
	_, ok := DecodeHeader(data)
	assert.False(t, ok)
}

func TestDecodeHeaderMaxPayloadAccepted(t *testing.T) {
	hdr := EncodeHeader(Video, MaxPayload)
	decoded, ok := DecodeHeader(hdr[:])
	require.True(t, ok)
	assert.Equal(t, uint32(MaxPayload), decoded.Length)
}

func TestDecodeHeaderTooShort(t *testing.T) {
	_, ok := DecodeHeader([]byte{0x01, 0x00, 0x00})
	assert.False(t, ok)
}
