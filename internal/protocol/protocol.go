// Package protocol defines the wire format of the Wolfkrypt mirror stream:
// packet types, config subtypes, and the 5-byte header that precedes every
// payload. It is pure — no I/O, no allocation beyond the header itself.
package protocol

import "encoding/binary"

// PacketType identifies the kind of a framed packet on the wire.
type PacketType uint8

const (
	Video         PacketType = 0x01
	Audio         PacketType = 0x02
	Config        PacketType = 0x03
	Heartbeat     PacketType = 0x04
	AuthChallenge PacketType = 0x10
	AuthResponse  PacketType = 0x11
	AuthSuccess   PacketType = 0x12
	AuthFail      PacketType = 0x13
)

// ConfigSubtype is the first payload byte of a Config packet.
type ConfigSubtype uint8

const (
	VideoSPS ConfigSubtype = 0x01
	VideoPPS ConfigSubtype = 0x02
	AudioAAC ConfigSubtype = 0x03
)

// HeaderSize is the fixed on-wire size of a PacketHeader: 1 byte type
// followed by a 4-byte big-endian length.
const HeaderSize = 5

// MaxPayload is the ceiling on a single packet's payload size. A decoded
// length above this is treated as an invalid header.
const MaxPayload = 65536

// PacketHeader is the 5-byte prefix of every frame: a type byte and the
// big-endian length of the payload that follows.
type PacketHeader struct {
	Type   PacketType
	Length uint32
}

func isKnownType(t PacketType) bool {
	switch t {
	case Video, Audio, Config, Heartbeat, AuthChallenge, AuthResponse, AuthSuccess, AuthFail:
		return true
	default:
		return false
	}
}

// EncodeHeader writes the 5-byte header for (t, length) into a fresh array.
// The caller guarantees length <= MaxPayload.
func EncodeHeader(t PacketType, length uint32) [HeaderSize]byte {
	var out [HeaderSize]byte
	out[0] = byte(t)
	binary.BigEndian.PutUint32(out[1:5], length)
	return out
}

// DecodeHeader parses a header from the first HeaderSize bytes of data. It
// returns ok=false if data is too short, the type byte is unrecognized, or
// the decoded length exceeds MaxPayload — all three are the caller's signal
// to resynchronize rather than trust the header.
func DecodeHeader(data []byte) (hdr PacketHeader, ok bool) {
	if len(data) < HeaderSize {
		return PacketHeader{}, false
	}
	t := PacketType(data[0])
	if !isKnownType(t) {
		return PacketHeader{}, false
	}
	length := binary.BigEndian.Uint32(data[1:5])
	if length > MaxPayload {
		return PacketHeader{}, false
	}
	return PacketHeader{Type: t, Length: length}, true
}

// Packet is a fully reassembled unit of routing.
type Packet struct {
	Type    PacketType
	Payload []byte
}
