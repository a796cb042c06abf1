package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the fixed size of every frame header
const HeaderSize = 7

// MaxPayloadSize is the largest payload a frame can carry
const MaxPayloadSize = 0xFFFF

var (
	ErrShortHeader     = errors.New("frame header too short")
	ErrReservedByte    = errors.New("frame header reserved byte must be zero")
	ErrPayloadTooLarge = errors.New("frame payload too large")
)

// Header precedes every frame on the TCP stream.
//
//	bytes 0-1  message type   (uint16, big-endian)
//	byte  2    reserved       (always zero)
//	bytes 3-4  payload length (uint16, big-endian)
//	bytes 5-6  version        (uint16, big-endian)
type Header struct {
	Type    uint16
	Length  uint16
	Version uint16
}

// Encode writes the header into dst, which must be at least HeaderSize bytes
func (h Header) Encode(dst []byte) {
	binary.BigEndian.PutUint16(dst[0:2], h.Type)
	dst[2] = 0
	binary.BigEndian.PutUint16(dst[3:5], h.Length)
	binary.BigEndian.PutUint16(dst[5:7], h.Version)
}

// Bytes returns the encoded header
func (h Header) Bytes() []byte {
	b := make([]byte, HeaderSize)
	h.Encode(b)
	return b
}

// DecodeHeader parses a header from the first HeaderSize bytes of src
func DecodeHeader(src []byte) (Header, error) {
	if len(src) < HeaderSize {
		return Header{}, fmt.Errorf("%w: got %d bytes", ErrShortHeader, len(src))
	}
	if src[2] != 0 {
		return Header{}, ErrReservedByte
	}
	return Header{
		Type:    binary.BigEndian.Uint16(src[0:2]),
		Length:  binary.BigEndian.Uint16(src[3:5]),
		Version: binary.BigEndian.Uint16(src[5:7]),
	}, nil
}

// Frame is a header plus its (possibly encrypted) payload
type Frame struct {
	Header  Header
	Payload []byte
}

// NewFrame builds a frame for payload, rejecting payloads that do not fit the length field
func NewFrame(msgType, version uint16, payload []byte) (Frame, error) {
	if len(payload) > MaxPayloadSize {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	return Frame{
		Header:  Header{Type: msgType, Length: uint16(len(payload)), Version: version},
		Payload: payload,
	}, nil
}

// Bytes returns the header followed by the payload as one buffer so it can be written whole
func (f Frame) Bytes() []byte {
	b := make([]byte, HeaderSize+len(f.Payload))
	f.Header.Encode(b)
	copy(b[HeaderSize:], f.Payload)
	return b
}
