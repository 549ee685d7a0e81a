// Package sse decodes the incremental search protocol: a text stream of
// frames separated by blank lines, each frame carrying "data:" lines with
// a JSON object.
//
// Decoder works on already decoded text and does not do any I/O, the
// network side only pipes chunks into Push:
//
//	var dec sse.Decoder
//	for chunk := range chunks {
//		for _, frame := range dec.Push(chunk) {
//			event, err := sse.ParseFrame(frame)
//			...
//		}
//	}
//	frames := dec.Flush()
package sse

import (
	"bytes"
	"strings"
)

const separator = "\n\n"

// Decoder splits chunks of a stream into frames. Frames are returned in
// arrival order regardless of how the stream was chunked. The zero value is
// ready to use. A Decoder is not safe for concurrent use.
type Decoder struct {
	buf []byte
	// no separator starts before this offset of buf
	scanned int
}

// Push appends chunk to the carry-over buffer and returns all frames
// completed by it. A trailing partial frame stays buffered.
func (d *Decoder) Push(chunk string) []string {
	if chunk == "" {
		return nil
	}
	if n := len(d.buf); n > 0 && d.buf[n-1] == '\r' && chunk[0] == '\n' {
		d.buf = d.buf[:n-1]
	}
	d.buf = append(d.buf, normalize(chunk)...)

	var frames []string
	start := 0
	for {
		idx := bytes.Index(d.buf[d.scanned:], []byte(separator))
		if idx < 0 {
			break
		}
		end := d.scanned + idx
		if frame := string(d.buf[start:end]); strings.TrimSpace(frame) != "" {
			frames = append(frames, frame)
		}
		start = end + len(separator)
		d.scanned = start
	}

	if start > 0 {
		d.buf = append(d.buf[:0], d.buf[start:]...)
	}
	// a trailing "\n" or "\n\r" may still pair with the next chunk
	d.scanned = max(len(d.buf)-len(separator), 0)
	return frames
}

// Flush returns the buffered frame once the stream has ended. The producer
// should terminate every frame, but a missing final separator is tolerated.
func (d *Decoder) Flush() []string {
	pending := strings.TrimRight(string(d.buf), "\r\n")
	d.buf = d.buf[:0]
	d.scanned = 0
	if strings.TrimSpace(pending) == "" {
		return nil
	}
	return []string{pending}
}

// normalize converts CRLF line endings to LF. A CR at the very end is kept,
// its LF may arrive with the next chunk.
func normalize(s string) string {
	if !strings.Contains(s, "\r\n") {
		return s
	}
	return strings.ReplaceAll(s, "\r\n", "\n")
}
