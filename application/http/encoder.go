package http

import (
	"io"
	"strconv"

	"httpws/application/util/rule"
	"httpws/transport"

	"github.com/pkg/errors"
)

// Encoder writes messages and body framing to a connection.
// Every write either sends all of its bytes or fails.
type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func (e *Encoder) write(b []byte, what string) error {
	if err := transport.SendAll(e.w, b); err != nil {
		return errors.Wrapf(err, "writing %s", what)
	}
	return nil
}

func (e *Encoder) WriteRequest(r *Request) error   { return e.write(r.Text(), "request header") }
func (e *Encoder) WriteResponse(r *Response) error { return e.write(r.Text(), "response header") }

// WriteBody writes b as is, for fixed-length bodies.
func (e *Encoder) WriteBody(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return e.write(b, "body")
}

// WriteChunk writes b as one chunk. Empty b writes the last chunk.
func (e *Encoder) WriteChunk(b []byte) error {
	return e.write(AppendChunk(nil, b), "chunk")
}

// WritePart writes b as one multipart part. Empty b writes the close delimiter.
func (e *Encoder) WritePart(boundary string, b []byte) error {
	return e.write(AppendPart(nil, boundary, b), "part")
}

// AppendChunk appends the chunked encoding of b to dst.
// Empty b appends the last chunk "0\r\n\r\n".
func AppendChunk(dst, b []byte) []byte {
	dst = strconv.AppendUint(dst, uint64(len(b)), 16)
	dst = append(dst, rule.CRLF...)
	if len(b) > 0 {
		dst = append(dst, b...)
	}
	return append(dst, rule.CRLF...)
}

// AppendPart appends "--boundary\r\n<b>\r\n" to dst.
// Empty b appends the close delimiter "--boundary--\r\n".
func AppendPart(dst []byte, boundary string, b []byte) []byte {
	dst = append(dst, "--"...)
	dst = append(dst, boundary...)
	if len(b) == 0 {
		dst = append(dst, "--"...)
		return append(dst, rule.CRLF...)
	}
	dst = append(dst, rule.CRLF...)
	dst = append(dst, b...)
	return append(dst, rule.CRLF...)
}
