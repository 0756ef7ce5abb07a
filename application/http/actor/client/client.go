// Package client sends HTTP/1.1 requests over one connection and reads the
// responses back record by record.
package client

import (
	"context"
	"log/slog"
	"strconv"

	"httpws/application/http"
	"httpws/application/http/actor/common"
	"httpws/transport"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

type Body = common.Body

var (
	ErrEmptyBody     = errors.New("empty body")
	ErrEmptyBoundary = errors.New("empty boundary")
	// ErrUpgraded is returned by Receive for a 101 response. The
	// connection speaks another protocol from then on.
	ErrUpgraded = errors.New("connection upgraded")
)

// Client is bound to one connection. Sends and receives may run on
// different goroutines, but each of them must not be called concurrently.
type Client struct {
	conn transport.Conn
	enc  *http.Encoder
	r    *common.MessageReader

	// response in progress, nil between responses.
	response *http.Response

	logger *slog.Logger
	clock  clock.Clock
	opts   Options
}

func New(conn transport.Conn, logger *slog.Logger, clock clock.Clock, opts Options) *Client {
	return &Client{
		conn: conn,
		enc:  http.NewEncoder(conn),
		r: common.NewMessageReader(conn, opts.ReadBufferSize, http.ParserOptions{
			Logger: logger,
		}),
		logger: logger,
		clock:  clock,
		opts:   opts,
	}
}

// Dial connects to addr and returns a client on the new connection.
func Dial(
	ctx context.Context,
	d transport.ConnDialer,
	addr transport.Addr,
	logger *slog.Logger,
	clock clock.Clock,
	opts Options,
) (*Client, error) {
	conn, err := d.Dial(ctx, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", addr)
	}
	return New(conn, logger.With("conn", addr), clock, opts), nil
}

func (c *Client) Conn() transport.Conn { return c.conn }

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) setWriteDeadline() {
	if t := c.opts.Timeout.WriteTimeout; t > 0 {
		c.conn.SetWriteDeadLine(c.clock.Now().Add(t))
	}
}

func (c *Client) SendRequest(request *http.Request) error {
	c.setWriteDeadline()
	return c.enc.WriteRequest(request)
}

// SendBody sends raw body bytes, as announced by Content-Length.
func (c *Client) SendBody(b []byte) error {
	if len(b) == 0 {
		return ErrEmptyBody
	}
	c.setWriteDeadline()
	return c.enc.WriteBody(b)
}

// SendChunk sends one chunk. Empty b sends the last chunk.
func (c *Client) SendChunk(b []byte) error {
	c.setWriteDeadline()
	return c.enc.WriteChunk(b)
}

// SendPart sends one multipart part. Empty b sends the close delimiter.
func (c *Client) SendPart(boundary string, b []byte) error {
	if boundary == "" {
		return ErrEmptyBoundary
	}
	c.setWriteDeadline()
	return c.enc.WritePart(boundary, b)
}

// Receive returns the current response with its next body record.
// Every record of a response comes with the same *http.Response; the next
// response starts after a record with Last set.
func (c *Client) Receive(ctx context.Context) (*http.Response, Body, error) {
	stop := transport.AbortOnDone(ctx, c.conn)
	defer stop()

	res, body, err := c.receive()
	if err != nil && ctx.Err() != nil {
		return nil, Body{}, ctx.Err()
	}
	return res, body, err
}

func (c *Client) receive() (*http.Response, Body, error) {
	if c.response == nil {
		header, err := c.r.ReadHeader()
		if err != nil {
			return nil, Body{}, errors.Wrap(err, "reading response header")
		}

		res, err := http.DecodeResponse(header, http.DecodeOptions{Logger: c.logger})
		if err != nil {
			return nil, Body{}, err
		}
		if c.r.Mode() == http.ModeWebSocket {
			return res, Body{}, ErrUpgraded
		}
		c.response = res
	}

	res := c.response
	body, err := c.r.ReadBody()
	if err != nil {
		c.response = nil
		return nil, Body{}, errors.Wrap(err, "reading response body")
	}
	if body.Last {
		c.response = nil
	}

	return res, body, nil
}

// Do sends request with body, setting Content-Length, and collects the
// whole response body.
func (c *Client) Do(ctx context.Context, request *http.Request, body []byte) (*http.Response, []byte, error) {
	if len(body) > 0 {
		request = request.Clone()
		request.Headers.Set("Content-Length", strconv.Itoa(len(body)))
	}

	if err := c.SendRequest(request); err != nil {
		return nil, nil, errors.Wrap(err, "sending request")
	}
	if len(body) > 0 {
		if err := c.SendBody(body); err != nil {
			return nil, nil, errors.Wrap(err, "sending body")
		}
	}

	var data []byte
	for {
		res, b, err := c.Receive(ctx)
		if err != nil {
			return res, nil, err
		}
		data = append(data, b.Data...)
		if b.Last {
			return res, data, nil
		}
	}
}
