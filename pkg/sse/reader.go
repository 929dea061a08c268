package sse

import (
	"bytes"
	"errors"
	"io"
)

const (
	readChunkSize  = 4 * 1024
	defaultMaxLine = 1024 * 1024
)

// ErrLineTooLong is returned when a line grows beyond the reader's limit
// without a newline.
var ErrLineTooLong = errors.New("sse: line too long")

// TeeReader splits a byte stream into lines while writing every raw byte
// verbatim to a destination writer.
//
// ┌──────────────────┐
// │ source io.Reader │
// └──────────────────┘
// │
// ▼
// ┌──────────────────┐   ┌───────────────────────┐
// │ TeeReader.Next() │──▶│ destination io.Writer │
// └──────────────────┘   └───────────────────────┘
// │
// ▼
// ┌──────────────────┐
// │   line string    │
// └──────────────────┘
//
// Reads may end anywhere: in the middle of a line, or in the middle of a
// multi-byte UTF-8 sequence. Bytes after the last newline are carried over
// to the next read. Because UTF-8 never uses the newline byte inside a
// multi-byte sequence, a character split across reads is whole again by the
// time its line is complete.
type TeeReader struct {
	src  io.Reader
	dest io.Writer

	// carry holds bytes received after the last newline.
	carry   []byte
	pending []string
	readBuf []byte
	maxLine int

	// err is sticky: once set, Next returns it after draining pending lines.
	err error
}

// NewReader returns a TeeReader that discards the raw copy.
func NewReader(src io.Reader) *TeeReader {
	return NewTeeReader(src, io.Discard)
}

// NewTeeReader returns a TeeReader that reads lines from src and writes all
// raw bytes through to dest. A nil dest discards them.
func NewTeeReader(src io.Reader, dest io.Writer) *TeeReader {
	if dest == nil {
		dest = io.Discard
	}

	return &TeeReader{
		src:     src,
		dest:    dest,
		readBuf: make([]byte, readChunkSize),
		maxLine: defaultMaxLine,
	}
}

// Next returns the next complete line without its "\n" (or "\r\n")
// terminator. It blocks until a line is available.
//
// At the end of the source Next returns io.EOF. Bytes that never formed a
// complete line are discarded at that point. Any other read error is returned
// as is.
func (r *TeeReader) Next() (string, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return "", r.err
		}
		r.fill()
	}

	line := r.pending[0]
	r.pending = r.pending[1:]
	return line, nil
}

// fill performs one read from the source and splits whatever arrived.
func (r *TeeReader) fill() {
	n, err := r.src.Read(r.readBuf)
	if n > 0 {
		if _, werr := r.dest.Write(r.readBuf[:n]); werr != nil {
			r.err = werr
			return
		}
		if ferr := r.feed(r.readBuf[:n]); ferr != nil {
			r.err = ferr
			return
		}
	}

	if err != nil {
		if errors.Is(err, io.EOF) {
			r.carry = r.carry[:0]
			r.err = io.EOF
			return
		}
		r.err = err
	}
}

// feed appends p to the carry-over buffer and moves every complete line to
// the pending queue.
func (r *TeeReader) feed(p []byte) error {
	r.carry = append(r.carry, p...)

	start := 0
	for {
		i := bytes.IndexByte(r.carry[start:], '\n')
		if i < 0 {
			break
		}
		line := r.carry[start : start+i]
		line = bytes.TrimSuffix(line, []byte("\r"))
		r.pending = append(r.pending, string(line))
		start += i + 1
	}

	// Shift the unterminated tail to the front of the buffer.
	rest := copy(r.carry, r.carry[start:])
	r.carry = r.carry[:rest]

	if len(r.carry) > r.maxLine {
		return ErrLineTooLong
	}
	return nil
}
