package websocket

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"io"
	"math"
	"strconv"

	"httpws/application/http"
	"httpws/transport"

	"github.com/pkg/errors"
)

type Opcode byte

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

func (o Opcode) String() string {
	switch o {
	case OpContinuation:
		return "continuation"
	case OpText:
		return "text"
	case OpBinary:
		return "binary"
	case OpClose:
		return "close"
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	}
	return "opcode(" + strconv.Itoa(int(o)) + ")"
}

// Reference: https://datatracker.ietf.org/doc/html/rfc6455#section-5.5
func (o Opcode) IsControl() bool { return o&0x8 != 0 }

const (
	finBit     byte = 0x80
	rsvBits    byte = 0x70
	opcodeBits byte = 0x0F
	maskBit    byte = 0x80
	lenBits    byte = 0x7F

	maxLen7 = 125
	len16   = 126
	len64   = 127

	maxControlPayload = 125

	// MaxFragmentSize is the largest payload sent in a single frame.
	// Longer messages are fragmented.
	MaxFragmentSize = 0x20000
)

var (
	ErrEmptyPayload  = errors.New("empty payload")
	ErrFrameTooLarge = errors.Wrap(http.ErrFormat, "frame payload too large")
)

// Frame is a single decoded frame. Payload is already unmasked.
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Masked  bool
	MaskKey [4]byte
	Payload []byte
}

// ApplyMask XORs b with key starting at key position pos, and returns the
// position to continue from. Applying it twice restores b.
func ApplyMask(b []byte, key [4]byte, pos int) int {
	for i := range b {
		b[i] ^= key[(pos+i)&3]
	}
	return (pos + len(b)) & 3
}

func newMaskKey() ([4]byte, error) {
	var key [4]byte
	if _, err := rand.Read(key[:]); err != nil {
		return key, errors.Wrap(err, "generating mask key")
	}
	return key, nil
}

// BuildFrame encodes one frame. A masked frame gets a fresh random key.
func BuildFrame(payload []byte, op Opcode, fin, mask bool) ([]byte, error) {
	var key [4]byte
	if mask {
		var err error
		if key, err = newMaskKey(); err != nil {
			return nil, err
		}
	}
	return appendFrame(nil, payload, op, fin, mask, key), nil
}

func appendFrame(dst, payload []byte, op Opcode, fin, mask bool, key [4]byte) []byte {
	b0 := byte(op) & opcodeBits
	if fin {
		b0 |= finBit
	}
	var b1 byte
	if mask {
		b1 = maskBit
	}

	n := len(payload)
	switch {
	case n <= maxLen7:
		dst = append(dst, b0, b1|byte(n))
	case n <= 0xFFFF:
		dst = append(dst, b0, b1|len16)
		dst = binary.BigEndian.AppendUint16(dst, uint16(n))
	default:
		dst = append(dst, b0, b1|len64)
		dst = binary.BigEndian.AppendUint64(dst, uint64(n))
	}

	if !mask {
		return append(dst, payload...)
	}

	dst = append(dst, key[:]...)
	start := len(dst)
	dst = append(dst, payload...)
	ApplyMask(dst[start:], key, 0)
	return dst
}

// SplitFrames encodes payload as one message, fragmented into frames of at
// most MaxFragmentSize bytes. Only the last frame has FIN set; every frame
// but the first is a continuation.
func SplitFrames(payload []byte, op Opcode, mask bool) ([][]byte, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}

	frames := make([][]byte, 0, (len(payload)+MaxFragmentSize-1)/MaxFragmentSize)
	for len(payload) > 0 {
		n := min(len(payload), MaxFragmentSize)
		fin := n == len(payload)

		frame, err := BuildFrame(payload[:n], op, fin, mask)
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)

		payload = payload[n:]
		op = OpContinuation
	}

	return frames, nil
}

// ReadFrame decodes one frame from r.
// Payloads longer than maxPayload fail with ErrFrameTooLarge; 0 means no limit
// other than math.MaxInt. The payload buffer grows with the bytes actually
// read, not with the announced length.
func ReadFrame(r io.Reader, maxPayload uint64) (*Frame, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:2]); err != nil {
		return nil, readErr(err)
	}

	f := &Frame{
		Fin:    hdr[0]&finBit != 0,
		Opcode: Opcode(hdr[0] & opcodeBits),
		Masked: hdr[1]&maskBit != 0,
	}
	if hdr[0]&rsvBits != 0 {
		return nil, errors.Wrap(http.ErrFormat, "reserved bits are set")
	}

	length := uint64(hdr[1] & lenBits)
	switch length {
	case len16:
		if _, err := io.ReadFull(r, hdr[:2]); err != nil {
			return nil, readErr(err)
		}
		length = uint64(binary.BigEndian.Uint16(hdr[:2]))
	case len64:
		if _, err := io.ReadFull(r, hdr[:8]); err != nil {
			return nil, readErr(err)
		}
		length = binary.BigEndian.Uint64(hdr[:8])
		if length>>63 != 0 {
			return nil, errors.Wrap(http.ErrFormat, "most significant bit of length is set")
		}
	}

	if f.Opcode.IsControl() && (!f.Fin || length > maxControlPayload) {
		return nil, errors.Wrapf(http.ErrFormat, "invalid %s frame", f.Opcode)
	}
	if (maxPayload > 0 && length > maxPayload) || length > math.MaxInt {
		return nil, errors.Wrapf(ErrFrameTooLarge, "%d bytes", length)
	}

	if f.Masked {
		if _, err := io.ReadFull(r, f.MaskKey[:]); err != nil {
			return nil, readErr(err)
		}
	}

	payload, err := readPayload(r, int64(length))
	if err != nil {
		return nil, err
	}
	f.Payload = payload

	if f.Masked {
		ApplyMask(f.Payload, f.MaskKey, 0)
	}

	return f, nil
}

func readPayload(r io.Reader, length int64) ([]byte, error) {
	if length <= MaxFragmentSize {
		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, readErr(err)
		}
		return payload, nil
	}

	var buf bytes.Buffer
	buf.Grow(MaxFragmentSize)
	if _, err := io.CopyN(&buf, r, length); err != nil {
		return nil, readErr(err)
	}
	return buf.Bytes(), nil
}

func readErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return transport.Disconnected("read frame", err)
	}
	return errors.Wrap(err, "reading frame")
}
