// Package wire implements the length-prefixed framing used on the bgo
// socket: every message is a fixed-width ASCII decimal header followed by
// the payload it describes.
package wire

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	// HeaderSize is the width, in bytes, of the length header prefixing
	// every frame.
	HeaderSize = 16
	// BufferSize is the chunk size used to read a frame off the wire.
	BufferSize = 2048
	// MaxPayloadSize bounds the decimal value a HeaderSize-wide header can
	// encode (10**HeaderSize - 1), guarding against a corrupt or hostile
	// header driving an unbounded allocation.
	MaxPayloadSize = 1e16 - 1
)

// ErrNoMessage indicates the peer closed the connection before a complete
// frame (or any bytes at all) was read. It is not a framing error: an
// orderly close is expected at the end of a session.
var ErrNoMessage = fmt.Errorf("wire: no message")

// WriteFrame writes payload to w prefixed with a HeaderSize-byte,
// left-justified, space-padded ASCII decimal length header.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return fmt.Errorf("wire: payload length %d exceeds max %d", len(payload), int64(MaxPayloadSize))
	}
	header := fmt.Sprintf("%-*d", HeaderSize, len(payload))
	if len(header) != HeaderSize {
		return fmt.Errorf("wire: payload length %d does not fit in a %d-byte header", len(payload), HeaderSize)
	}
	frame := make([]byte, 0, len(header)+len(payload))
	frame = append(frame, header...)
	frame = append(frame, payload...)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("wire: write frame: %w", err)
	}
	return nil
}

// ReadFrame reads a single framed message from r in BufferSize chunks,
// parsing the header out of the first chunk and accumulating until the
// declared payload length has been read in full. It returns ErrNoMessage
// if r is closed before any bytes, or before a complete frame, arrive.
func ReadFrame(r io.Reader) ([]byte, error) {
	var buf []byte
	msgLen := -1
	chunk := make([]byte, BufferSize)
	for {
		n, err := r.Read(chunk)
		if n == 0 {
			if err == nil || err == io.EOF {
				return nil, ErrNoMessage
			}
			return nil, fmt.Errorf("wire: read frame: %w", err)
		}
		buf = append(buf, chunk[:n]...)

		if msgLen < 0 && len(buf) >= HeaderSize {
			msgLen, err = parseHeader(buf[:HeaderSize])
			if err != nil {
				return nil, err
			}
		}
		if msgLen >= 0 && len(buf)-HeaderSize >= msgLen {
			return buf[HeaderSize : HeaderSize+msgLen], nil
		}
		if err != nil {
			if err == io.EOF {
				return nil, ErrNoMessage
			}
			return nil, fmt.Errorf("wire: read frame: %w", err)
		}
	}
}

// parseHeader parses a HeaderSize-byte ASCII-decimal, space-padded header
// into the payload length it declares.
func parseHeader(header []byte) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(string(header)))
	if err != nil {
		return 0, fmt.Errorf("wire: unparsable frame header %q: %w", header, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("wire: negative frame length %d", n)
	}
	return n, nil
}
