// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// STREAMING: Robust SSE parsing with bounded buffering

// DefaultMaxFrameSize is the maximum accumulated data size for one event (1MB).
const DefaultMaxFrameSize = 1 << 20

// maxLineOverhead is the room allowed for a field name and separator on top
// of the payload limit when bounding a single line.
const maxLineOverhead = 256

// ErrFrameTooLarge is returned when an event or a single line exceeds the
// reader's size limit. The offending input is not buffered past the limit.
var ErrFrameTooLarge = errors.New("sse event too large")

// Frame is one complete server-sent event.
type Frame struct {
	// Event is the event name, empty for the default "message" event.
	Event string
	// Data is the event payload; multiple data lines are joined with "\n".
	Data []byte
	// ID is the last event ID field seen on this event, if any.
	ID string
}

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader parses server-sent events from a stream.
type SSEReader struct {
	reader  *bufio.Reader
	maxSize int
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return NewSSEReaderSize(r, DefaultMaxFrameSize)
}

// NewSSEReaderSize creates an SSE reader that rejects events larger than maxSize.
func NewSSEReaderSize(r io.Reader, maxSize int) *SSEReader {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &SSEReader{
		reader:  bufio.NewReader(r),
		maxSize: maxSize,
	}
}

// ReadEvent reads the next event. Comment lines and events without data are
// skipped. A partial event at end of input is returned before io.EOF.
func (s *SSEReader) ReadEvent() (Frame, error) {
	var (
		frame   Frame
		data    bytes.Buffer
		hasData bool
	)

	for {
		line, err := s.readLine()
		if errors.Is(err, ErrFrameTooLarge) {
			return Frame{}, err
		}
		if err != nil && (err != io.EOF || len(line) == 0) {
			if err == io.EOF && hasData {
				frame.Data = data.Bytes()
				return frame, nil
			}
			return Frame{}, err
		}
		atEOF := err == io.EOF

		line = bytes.TrimRight(line, "\r\n")

		// Blank line dispatches the event.
		if len(line) == 0 {
			if hasData {
				frame.Data = data.Bytes()
				return frame, nil
			}
			frame = Frame{}
			continue
		}

		// Comment / keep-alive
		if line[0] == ':' {
			continue
		}

		field, value := splitField(line)
		switch field {
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.Write(value)
			hasData = true
			if data.Len() > s.maxSize {
				return Frame{}, fmt.Errorf("%w: %d bytes (limit %d)", ErrFrameTooLarge, data.Len(), s.maxSize)
			}
		case "event":
			frame.Event = string(value)
		case "id":
			frame.ID = string(value)
		}
		// Other fields (retry, unknown) are ignored.

		if atEOF {
			if hasData {
				frame.Data = data.Bytes()
				return frame, nil
			}
			return Frame{}, io.EOF
		}
	}
}

// readLine returns the next line including its terminator. Unlike
// ReadBytes it stops as soon as the line outgrows the size limit, so a
// newline-free body cannot be buffered without bound.
func (s *SSEReader) readLine() ([]byte, error) {
	limit := s.maxSize + maxLineOverhead
	var line []byte
	for {
		chunk, err := s.reader.ReadSlice('\n')
		if len(line)+len(chunk) > limit {
			return nil, fmt.Errorf("%w: line exceeds %d bytes", ErrFrameTooLarge, limit)
		}
		line = append(line, chunk...)
		if err == bufio.ErrBufferFull {
			continue
		}
		return line, err
	}
}

// splitField splits "name: value" per the SSE grammar: one leading space
// after the colon is dropped, a line without a colon is a field with no value.
func splitField(line []byte) (string, []byte) {
	i := bytes.IndexByte(line, ':')
	if i < 0 {
		return string(line), nil
	}
	value := line[i+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	return string(line[:i]), value
}
