// Package media defines the decoder and renderer facades the pipeline
// drives, and a process-backed implementation of both that pipes raw
// Annex-B framed H.264 to an external player rather than decoding
// in-process. The actual decode/render engines stay external collaborators;
// this package only narrows the interface they must satisfy.
package media

// Frame is the unit worker B hands to worker C: a decoded picture's raw
// YUV plane bytes plus its dimensions. A Decoder that cannot itself
// produce pixels (e.g. the process-backed one below) returns no Frame and
// instead renders by side effect.
type Frame struct {
	YUV    []byte
	Width  int
	Height int
}

// Decoder is the facade worker B drives: SPS/PPS arrive out of band via
// Config packets, then each Video payload is handed to Decode.
// Implementations may prepend Annex-B start codes (00 00 00 01) to SPS/PPS
// if the payload lacks them.
type Decoder interface {
	SetSPS(nal []byte)
	SetPPS(nal []byte)
	// Decode consumes one H.264 payload. ok is false if the payload
	// produced no displayable frame (e.g. it was consumed by an external
	// process instead of decoded in-process).
	Decode(payload []byte) (frame Frame, ok bool)
	Stop()
}

// Renderer is the facade worker C drives.
type Renderer interface {
	Start() bool
	Stop()
	IsRunning() bool
	UpdateFrame(frame Frame)
	SetVideoSize(width, height int)
}
