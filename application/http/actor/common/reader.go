// Package common holds what the server and client actors share:
// reading whole messages off a connection and guarding user callbacks.
package common

import (
	"httpws/application/http"
	"httpws/transport"

	"github.com/pkg/errors"
)

const DefaultReadBufferSize = 1024

// Body is one delivered piece of a message body.
// Last is set on the piece that completes the message. A message without
// body is delivered as a single empty piece with Last set.
type Body struct {
	Data []byte
	Last bool
}

// MessageReader reads messages from a connection, receiving more bytes
// whenever the parser runs out of them.
// Deadlines and cancellation are the caller's business, set on the conn.
type MessageReader struct {
	conn   transport.Conn
	parser *http.BodyParser
	buf    []byte
}

func NewMessageReader(conn transport.Conn, bufSize int, opts http.ParserOptions) *MessageReader {
	if bufSize <= 0 {
		bufSize = DefaultReadBufferSize
	}
	return &MessageReader{
		conn:   conn,
		parser: http.NewBodyParser(opts),
		buf:    make([]byte, bufSize),
	}
}

func (r *MessageReader) fill() error {
	n, err := transport.Recv(r.conn, r.buf)
	if err != nil {
		return err
	}
	r.parser.Push(r.buf[:n])
	return nil
}

// Buffered reports whether received bytes are waiting to be parsed.
func (r *MessageReader) Buffered() bool { return r.parser.Buffered() > 0 }

func (r *MessageReader) Mode() http.Mode { return r.parser.Mode() }

// ReadHeader returns the header block of the next message.
func (r *MessageReader) ReadHeader() ([]byte, error) {
	for {
		err := r.parser.ParseHeader()
		if err == nil {
			return r.parser.Header(), nil
		}
		if !errors.Is(err, http.ErrNeedMoreData) {
			return nil, err
		}
		if err := r.fill(); err != nil {
			return nil, err
		}
	}
}

// ReadBody returns the next piece of the current message's body.
func (r *MessageReader) ReadBody() (Body, error) {
	for {
		data, last, err := r.parser.Next()
		if err == nil {
			return Body{Data: data, Last: last}, nil
		}
		if !errors.Is(err, http.ErrNeedMoreData) {
			return Body{}, err
		}
		if err := r.fill(); err != nil {
			return Body{}, err
		}
	}
}

// TakeBuffered hands over the bytes read past the current message.
func (r *MessageReader) TakeBuffered() []byte { return r.parser.TakeBuffered() }
