package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxStringLength bounds decoded strings and byte arrays
const MaxStringLength = 4096

var (
	ErrShortBuffer   = errors.New("unexpected end of payload")
	ErrInvalidLength = errors.New("invalid length prefix")
)

// Writer builds a message payload. All integers are big-endian.
type Writer struct {
	buf []byte
}

// NewWriter creates an empty Writer
func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

// Bytes returns the encoded payload
func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
		return
	}
	w.buf = append(w.buf, 0)
}

func (w *Writer) WriteInt32(v int32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
}

func (w *Writer) WriteInt64(v int64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v))
}

// WriteBytes writes a length-prefixed byte array; nil is encoded as length -1
func (w *Writer) WriteBytes(v []byte) {
	if v == nil {
		w.WriteInt32(-1)
		return
	}
	w.WriteInt32(int32(len(v)))
	w.buf = append(w.buf, v...)
}

// WriteString writes a length-prefixed UTF-8 string
func (w *Writer) WriteString(v string) {
	w.WriteInt32(int32(len(v)))
	w.buf = append(w.buf, v...)
}

// Reader decodes a message payload. The first failure is sticky: later reads
// return zero values and Err reports the original problem.
type Reader struct {
	buf []byte
	off int
	err error
}

// NewReader creates a Reader over payload
func NewReader(payload []byte) *Reader {
	return &Reader{buf: payload}
}

// Err returns the first decode error, if any
func (r *Reader) Err() error {
	return r.err
}

// Remaining returns the number of unread bytes
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d of %d", ErrShortBuffer, n, r.off, len(r.buf))
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) ReadBool() bool {
	b := r.take(1)
	if b == nil {
		return false
	}
	return b[0] != 0
}

func (r *Reader) ReadInt32() int32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

func (r *Reader) ReadInt64() int64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

func (r *Reader) readLength() (int, bool) {
	n := r.ReadInt32()
	if r.err != nil {
		return 0, false
	}
	if n == -1 {
		return -1, true
	}
	if n < 0 || n > MaxStringLength {
		r.err = fmt.Errorf("%w: %d", ErrInvalidLength, n)
		return 0, false
	}
	return int(n), true
}

func (r *Reader) ReadBytes() []byte {
	n, ok := r.readLength()
	if !ok || n == -1 {
		return nil
	}
	b := r.take(n)
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func (r *Reader) ReadString() string {
	n, ok := r.readLength()
	if !ok || n <= 0 {
		return ""
	}
	return string(r.take(n))
}
