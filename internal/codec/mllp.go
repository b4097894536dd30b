// Package codec implements the wire codec of the design: MLLP framing, HL7 v2
// segment parsing/serialization, and FHIR JSON bundle handling.
package codec

import (
	"bytes"
	"fmt"

	coreerrors "hl7-interop-bridge/internal/errors"
)

const (
	startBlock       byte = 0x0B
	endBlock         byte = 0x1C
	carriageReturn   byte = 0x0D
	defaultMaxFrame       = 1024 * 1024 // 1 MiB default
)

// FrameDecoder consumes a byte stream across reads and emits one payload per
// complete MLLP frame, buffering partial frames.
type FrameDecoder struct {
	buf         bytes.Buffer
	maxFrameLen int
}

// NewFrameDecoder builds a decoder with the given maximum frame size in
// bytes; a non-positive value falls back to the design default of 1 MiB.
func NewFrameDecoder(maxFrameBytes int) *FrameDecoder {
	if maxFrameBytes <= 0 {
		maxFrameBytes = defaultMaxFrame
	}
	return &FrameDecoder{maxFrameLen: maxFrameBytes}
}

// Feed appends newly read bytes and returns every complete frame payload
// extracted so far. Incomplete trailing bytes remain buffered for the next
// call.
func (d *FrameDecoder) Feed(chunk []byte) ([][]byte, error) {
	d.buf.Write(chunk)

	var frames [][]byte
	for {
		raw := d.buf.Bytes()
		start := bytes.IndexByte(raw, startBlock)
		if start == -1 {
			// No frame start found; drop noise bytes but keep buffer bounded.
			if d.buf.Len() > d.maxFrameLen {
				d.buf.Reset()
				return frames, coreerrors.New(coreerrors.KindFramingError, "no frame start within max frame size", nil)
			}
			return frames, nil
		}
		if start > 0 {
			// Discard leading garbage before START_BLOCK.
			d.buf.Next(start)
			raw = d.buf.Bytes()
		}

		end := findFrameEnd(raw)
		if end == -1 {
			if len(raw) > d.maxFrameLen {
				d.buf.Reset()
				return frames, coreerrors.New(coreerrors.KindFramingError, "frame exceeds maximum size", map[string]any{"max": d.maxFrameLen})
			}
			return frames, nil
		}

		if end-1 > d.maxFrameLen {
			d.buf.Next(end + 2)
			return frames, coreerrors.New(coreerrors.KindFramingError, "frame exceeds maximum size", map[string]any{"max": d.maxFrameLen})
		}

		payload := make([]byte, end-1)
		copy(payload, raw[1:end])
		frames = append(frames, payload)
		d.buf.Next(end + 2) // consume END_BLOCK + CR
	}
}

// findFrameEnd returns the index of END_BLOCK such that it is immediately
// followed by CARRIAGE_RETURN, or -1 if no complete terminator is present.
func findFrameEnd(raw []byte) int {
	idx := 0
	for {
		rel := bytes.IndexByte(raw[idx:], endBlock)
		if rel == -1 {
			return -1
		}
		pos := idx + rel
		if pos+1 < len(raw) && raw[pos+1] == carriageReturn {
			return pos
		}
		idx = pos + 1
	}
}

// EncodeFrame wraps payload in the MLLP START_BLOCK/END_BLOCK/CR envelope.
func EncodeFrame(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+3)
	out = append(out, startBlock)
	out = append(out, payload...)
	out = append(out, endBlock, carriageReturn)
	return out
}

// ErrFrameTooLarge is a descriptive wrapper kept for callers that want to
// test error strings without matching on CoreError internals.
func ErrFrameTooLarge(max int) error {
	return fmt.Errorf("mllp: frame exceeds max of %d bytes", max)
}
