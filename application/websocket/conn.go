package websocket

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"sync"

	"httpws/application/http"
	"httpws/transport"

	"github.com/pkg/errors"
)

// Kind is the data type of a message.
type Kind int

const (
	KindText Kind = iota + 1
	KindBinary
)

func (k Kind) opcode() Opcode {
	if k == KindText {
		return OpText
	}
	return OpBinary
}

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	}
	return "none"
}

type Event int

const (
	// EventOpen is delivered by the server once the handshake is done.
	EventOpen Event = iota
	EventMessage
	EventClose
)

func (e Event) String() string {
	switch e {
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventClose:
		return "close"
	}
	return "unknown"
}

// Record is one delivered piece of a message.
// Fragmented messages are delivered one record per frame, all carrying the
// Kind of the first frame, and only the final one has Last set.
type Record struct {
	Last    bool
	Kind    Kind
	Event   Event
	Payload []byte
}

type Direction string

const (
	Inbound  Direction = "in"
	Outbound Direction = "out"
)

type Options struct {
	// Mask outbound frames. Clients mask, servers don't.
	Mask bool

	// MaxPayload limits the payload of a received frame.
	// 0 means DefaultMaxPayload.
	MaxPayload uint64

	// Buffered holds bytes read past the handshake, consumed before conn.
	Buffered []byte

	Logger *slog.Logger

	// OnFrame, if set, is called for every frame sent or received.
	OnFrame func(dir Direction, op Opcode)
}

const CloseNormal uint16 = 1000

// DefaultMaxPayload is the receive limit used when Options.MaxPayload is 0.
const DefaultMaxPayload = 16 << 20

// Conn exchanges messages over an upgraded connection.
// Receive must be called from one goroutine; Send may be called concurrently.
type Conn struct {
	conn transport.Conn
	r    io.Reader
	opts Options

	logger *slog.Logger

	writeMu sync.Mutex

	// kind of the fragmented message in progress, 0 if none.
	fragment Kind
	// set once a close frame is received.
	peerClosed bool

	closeOnce sync.Once
	closeErr  error
}

func NewConn(conn transport.Conn, opts Options) *Conn {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if opts.MaxPayload == 0 {
		opts.MaxPayload = DefaultMaxPayload
	}

	var r io.Reader = transport.Reader(conn)
	if len(opts.Buffered) > 0 {
		r = io.MultiReader(bytes.NewReader(opts.Buffered), r)
	}

	return &Conn{
		conn:   conn,
		r:      r,
		opts:   opts,
		logger: logger,
	}
}

func (c *Conn) observe(dir Direction, op Opcode) {
	if c.opts.OnFrame != nil {
		c.opts.OnFrame(dir, op)
	}
}

func (c *Conn) RemoteAddr() transport.Addr { return c.conn.RemoteAddr() }

// Receive returns the next data record or the close event.
// Pings are answered with a pong carrying the same payload and pongs are
// dropped; neither is returned.
func (c *Conn) Receive(ctx context.Context) (Record, error) {
	if c.peerClosed {
		return Record{}, errors.Wrap(transport.ErrConnClosed, "close frame already received")
	}

	stop := transport.AbortOnDone(ctx, c.conn)
	defer stop()

	for {
		f, err := ReadFrame(c.r, c.opts.MaxPayload)
		if err != nil {
			if ctx.Err() != nil {
				return Record{}, ctx.Err()
			}
			return Record{}, err
		}
		c.observe(Inbound, f.Opcode)

		switch f.Opcode {
		case OpText, OpBinary:
			if c.fragment != 0 {
				return Record{}, errors.Wrap(http.ErrFormat, "new message started before the fragmented one finished")
			}
			kind := KindBinary
			if f.Opcode == OpText {
				kind = KindText
			}
			if !f.Fin {
				c.fragment = kind
			}
			return Record{Last: f.Fin, Kind: kind, Event: EventMessage, Payload: f.Payload}, nil

		case OpContinuation:
			if c.fragment == 0 {
				return Record{}, errors.Wrap(http.ErrFormat, "continuation frame without a message")
			}
			kind := c.fragment
			if f.Fin {
				c.fragment = 0
			}
			return Record{Last: f.Fin, Kind: kind, Event: EventMessage, Payload: f.Payload}, nil

		case OpClose:
			c.peerClosed = true
			return Record{Last: true, Event: EventClose, Payload: f.Payload}, nil

		case OpPing:
			c.logger.Debug("answering ping", "length", len(f.Payload))
			if err := c.writeControl(OpPong, f.Payload); err != nil {
				return Record{}, err
			}

		case OpPong:
			// Unsolicited pongs are allowed and ignored.

		default:
			return Record{}, errors.Wrapf(http.ErrFormat, "unsupported opcode %d", f.Opcode)
		}
	}
}

// Send sends payload as one message, fragmenting it when needed.
func (c *Conn) Send(payload []byte, kind Kind) error {
	frames, err := SplitFrames(payload, kind.opcode(), c.opts.Mask)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	op := kind.opcode()
	for _, frame := range frames {
		if err := transport.SendAll(c.conn, frame); err != nil {
			return errors.Wrap(err, "sending frame")
		}
		c.observe(Outbound, op)
		op = OpContinuation
	}

	return nil
}

func (c *Conn) Ping(payload []byte) error { return c.writeControl(OpPing, payload) }

func (c *Conn) writeControl(op Opcode, payload []byte) error {
	frame, err := BuildFrame(payload, op, true, c.opts.Mask)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := transport.SendAll(c.conn, frame); err != nil {
		return errors.Wrapf(err, "sending %s frame", op)
	}
	c.observe(Outbound, op)
	return nil
}

// Close sends a close frame, ignoring failures, then closes the transport.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		payload := binary.BigEndian.AppendUint16(nil, CloseNormal)
		if err := c.writeControl(OpClose, payload); err != nil {
			c.logger.Debug("failed to send close frame", "error", err)
		}
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// CloseCode returns the status code of a close frame payload, if any.
func CloseCode(payload []byte) (uint16, bool) {
	if len(payload) < 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(payload), true
}
