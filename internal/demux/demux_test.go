package demux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfkrypt/mirror/internal/protocol"
)

func encode(t protocol.PacketType, payload []byte) []byte {
	hdr := protocol.EncodeHeader(t, uint32(len(payload)))
	return append(hdr[:], payload...)
}

func TestFeedSinglePacket(t *testing.T) {
	var r Reassembler
	var got []protocol.Packet

	stream := encode(protocol.Audio, []byte{1, 2, 3})
	resyncs := r.Feed(stream, func(p protocol.Packet) { got = append(got, p) })

	assert.Zero(t, resyncs)
	require.Len(t, got, 1)
	assert.Equal(t, protocol.Audio, got[0].Type)
	assert.Equal(t, []byte{1, 2, 3}, got[0].Payload)
	assert.Less(t, r.Len(), protocol.HeaderSize)
}

func TestFeedIncompletePacketWaitsForMoreBytes(t *testing.T) {
	var r Reassembler
	var got []protocol.Packet

	full := encode(protocol.Video, []byte{9, 9, 9, 9})
	r.Feed(full[:3], func(p protocol.Packet) { got = append(got, p) })
	assert.Empty(t, got)

	r.Feed(full[3:], func(p protocol.Packet) { got = append(got, p) })
	require.Len(t, got, 1)
	assert.Equal(t, []byte{9, 9, 9, 9}, got[0].Payload)
}

func TestFeedResyncsOnCorruption(t *testing.T) {
	var r Reassembler
	var got []protocol.Packet

	stream := append([]byte{0xAA}, encode(protocol.Audio, []byte{1, 2, 3})...)
	resyncs := r.Feed(stream, func(p protocol.Packet) { got = append(got, p) })

	assert.Equal(t, 1, resyncs)
	require.Len(t, got, 1)
	assert.Equal(t, protocol.Audio, got[0].Type)
	assert.Equal(t, []byte{1, 2, 3}, got[0].Payload)
}

func TestFeedOversizeHeaderAdvancesOneByte(t *testing.T) {
	var r Reassembler
	var got []protocol.Packet

	// type=Video(0x01), length=0xFFFFFFFF -> invalid, must resync by exactly 1 byte.
	stream := []byte{0x01, 0xFF, 0xFF, 0xFF, 0xFF}
	resyncs := r.Feed(stream, func(p protocol.Packet) { got = append(got, p) })

	assert.Equal(t, 1, resyncs)
	assert.Empty(t, got)
	assert.Equal(t, len(stream)-1, r.Len())
}

func TestFeedMultiplePacketsInOneChunk(t *testing.T) {
	var r Reassembler
	var got []protocol.Packet

	stream := append(encode(protocol.Config, []byte{byte(protocol.VideoSPS)}), encode(protocol.Video, []byte{5, 6})...)
	r.Feed(stream, func(p protocol.Packet) { got = append(got, p) })

	require.Len(t, got, 2)
	assert.Equal(t, protocol.Config, got[0].Type)
	assert.Equal(t, protocol.Video, got[1].Type)
}

func TestResetClearsBuffer(t *testing.T) {
	var r Reassembler
	r.Feed([]byte{0x01, 0x00}, func(protocol.Packet) {})
	require.NotZero(t, r.Len())
	r.Reset()
	assert.Zero(t, r.Len())
}
