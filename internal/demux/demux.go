// Package demux reassembles the length-prefixed packet stream coming off
// the AOA bulk endpoint, resynchronizing byte-by-byte on a corrupt header.
package demux

import "github.com/wolfkrypt/mirror/internal/protocol"

// Reassembler is an append-only byte accumulator confined to a single
// goroutine (the USB pump). Its length grows with inbound bytes and
// shrinks only by whole-packet consumption or one-byte resync advances.
type Reassembler struct {
	buf []byte
}

// Feed appends chunk to the buffer and extracts every complete packet it
// now contains, calling emit for each in wire order. Each payload is a
// fresh copy, not a slice of the internal buffer, so emit may retain it
// beyond the call.
//
// Returns the number of one-byte resync advances performed, for drop
// accounting.
func (r *Reassembler) Feed(chunk []byte, emit func(protocol.Packet)) (resyncs int) {
	r.buf = append(r.buf, chunk...)

	consumed := 0
	for {
		remaining := r.buf[consumed:]
		if len(remaining) < protocol.HeaderSize {
			break
		}

		hdr, ok := protocol.DecodeHeader(remaining)
		if !ok {
			consumed++
			resyncs++
			continue
		}

		need := protocol.HeaderSize + int(hdr.Length)
		if len(remaining) < need {
			break
		}

		payload := make([]byte, hdr.Length)
		copy(payload, remaining[protocol.HeaderSize:need])
		emit(protocol.Packet{Type: hdr.Type, Payload: payload})
		consumed += need
	}

	r.compact(consumed)
	return resyncs
}

// compact drops the consumed prefix, keeping the buffer from growing
// without bound across calls.
func (r *Reassembler) compact(consumed int) {
	if consumed == 0 {
		return
	}
	remaining := len(r.buf) - consumed
	copy(r.buf, r.buf[consumed:])
	r.buf = r.buf[:remaining]
}

// Len returns the number of unconsumed bytes currently buffered.
func (r *Reassembler) Len() int {
	return len(r.buf)
}

// Reset discards any buffered bytes, used when the pipeline stops.
func (r *Reassembler) Reset() {
	r.buf = r.buf[:0]
}
