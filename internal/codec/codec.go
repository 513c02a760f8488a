// Package codec implements the fixed-width little-endian binary framing
// used for the meta payload exchanged between client and server (see
// the meta endpoint in internal/server and internal/delta).
package codec

import (
	"encoding/binary"
	"errors"
)

// ErrOutOfRange is returned when a read or write would run past the end
// of the underlying buffer.
var ErrOutOfRange = errors.New("codec: out of range")

// Reader is a forward-only cursor over a byte slice. It never copies the
// underlying buffer.
type Reader struct {
	data []byte
	pos  int
}

// NewReader wraps data for sequential reading.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Pos returns the current read offset.
func (r *Reader) Pos() int { return r.pos }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

func (r *Reader) advance(n int) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, ErrOutOfRange
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadUint8 reads the next byte.
func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.advance(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUint32 reads the next 4 bytes as a little-endian uint32.
func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.advance(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadUint64 reads the next 8 bytes as a little-endian uint64.
func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.advance(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Writer is a forward-only cursor writing little-endian values into a
// pre-sized buffer.
type Writer struct {
	data []byte
	pos  int
}

// NewWriter wraps a buffer for sequential writing. The buffer must already
// be sized to hold everything that will be written to it.
func NewWriter(data []byte) *Writer {
	return &Writer{data: data}
}

// Pos returns the current write offset.
func (w *Writer) Pos() int { return w.pos }

// Remaining returns the number of bytes left before the buffer is full.
func (w *Writer) Remaining() int { return len(w.data) - w.pos }

// Bytes returns the full underlying buffer, written and unwritten alike.
func (w *Writer) Bytes() []byte { return w.data }

func (w *Writer) reserve(n int) ([]byte, error) {
	if w.pos+n > len(w.data) {
		return nil, ErrOutOfRange
	}
	b := w.data[w.pos : w.pos+n]
	w.pos += n
	return b, nil
}

// WriteUint8 writes a single byte.
func (w *Writer) WriteUint8(v uint8) error {
	b, err := w.reserve(1)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

// WriteUint32 writes v as little-endian.
func (w *Writer) WriteUint32(v uint32) error {
	b, err := w.reserve(4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, v)
	return nil
}

// WriteUint64 writes v as little-endian.
func (w *Writer) WriteUint64(v uint64) error {
	b, err := w.reserve(8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, v)
	return nil
}
