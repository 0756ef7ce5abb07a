// Package netconn adapts the net package's connections to transport.Conn.
package netconn

import (
	"context"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"httpws/transport"

	"github.com/pkg/errors"
)

type Addr struct{ net.Addr }

func (a Addr) Network() transport.Protocol { return transport.Protocol(a.Addr.Network()) }
func (a Addr) String() string              { return a.Addr.String() }

var _ transport.Addr = Addr{}

const DefaultPollInterval = time.Millisecond

type Options struct {
	// NonBlocking makes reads and writes that cannot progress within
	// PollInterval return transport.ErrWouldBlock.
	NonBlocking bool
	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration
}

type conn struct {
	c    net.Conn
	opts Options

	// Deadlines set by the user. Only tracked in non-blocking mode, where
	// the net.Conn deadline is the poll deadline instead.
	mu                   sync.Mutex
	rdeadline, wdeadline time.Time
}

var _ transport.Conn = (*conn)(nil)

// Wrap adapts c to transport.Conn, translating net errors into transport ones.
func Wrap(c net.Conn) transport.Conn { return WrapWithOptions(c, Options{}) }

func WrapWithOptions(c net.Conn, opts Options) transport.Conn {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &conn{c: c, opts: opts}
}

func (c *conn) Read(p []byte) (int, error) {
	if !c.opts.NonBlocking {
		n, err := c.c.Read(p)
		return n, convertErr(err)
	}

	user := c.poll(&c.rdeadline, c.c.SetReadDeadline)
	n, err := c.c.Read(p)
	return n, pollErr(err, user)
}

func (c *conn) Write(p []byte) (int, error) {
	if !c.opts.NonBlocking {
		n, err := c.c.Write(p)
		return n, convertErr(err)
	}

	user := c.poll(&c.wdeadline, c.c.SetWriteDeadline)
	n, err := c.c.Write(p)
	return n, pollErr(err, user)
}

// poll arms the net.Conn deadline for one attempt and returns the user's.
func (c *conn) poll(user *time.Time, set func(time.Time) error) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := time.Now().Add(c.opts.PollInterval)
	if !user.IsZero() && user.Before(t) {
		t = *user
	}
	_ = set(t)
	return *user
}

// pollErr turns a poll timeout into ErrWouldBlock unless the user's own
// deadline has passed.
func pollErr(err error, user time.Time) error {
	if errors.Is(err, os.ErrDeadlineExceeded) && (user.IsZero() || time.Now().Before(user)) {
		return transport.ErrWouldBlock
	}
	return convertErr(err)
}

func (c *conn) Close() error { return c.c.Close() }

func (c *conn) LocalAddr() transport.Addr  { return Addr{c.c.LocalAddr()} }
func (c *conn) RemoteAddr() transport.Addr { return Addr{c.c.RemoteAddr()} }

func (c *conn) SetReadDeadLine(t time.Time)  { c.setDeadline(&c.rdeadline, t, c.c.SetReadDeadline) }
func (c *conn) SetWriteDeadLine(t time.Time) { c.setDeadline(&c.wdeadline, t, c.c.SetWriteDeadline) }

func (c *conn) setDeadline(user *time.Time, t time.Time, set func(time.Time) error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	*user = t
	if !c.opts.NonBlocking {
		_ = set(t)
	}
}

func convertErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrDeadlineExceeded):
		return errors.Wrap(transport.ErrDeadLineExceeded, err.Error())
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe):
		return errors.Wrap(transport.ErrConnClosed, err.Error())
	}
	return err
}

type listener struct {
	l net.Listener

	once sync.Once
}

var _ transport.ConnListener = (*listener)(nil)

// Listen opens a TCP listener on address.
func Listen(address string) (*listener, error) {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", address)
	}
	return &listener{l: l}, nil
}

func NewListener(l net.Listener) *listener { return &listener{l: l} }

func (l *listener) Addr() transport.Addr { return Addr{l.l.Addr()} }

// Accept waits for the next connection.
// Cancelling ctx closes the listener.
func (l *listener) Accept(ctx context.Context) (transport.Conn, error) {
	stop := context.AfterFunc(ctx, func() { _ = l.Close() })
	defer stop()

	c, err := l.l.Accept()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, transport.ErrConnListenerClosed
		}
		return nil, errors.Wrap(err, "accepting connection")
	}
	return Wrap(c), nil
}

func (l *listener) Close() error {
	var err error
	l.once.Do(func() { err = l.l.Close() })
	return err
}

// Dialer dials TCP addresses.
type Dialer struct {
	net.Dialer
}

var _ transport.ConnDialer = (*Dialer)(nil)

func (d *Dialer) Dial(ctx context.Context, addr transport.Addr) (transport.Conn, error) {
	c, err := d.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", addr)
	}
	return Wrap(c), nil
}

// TCPAddr is a transport.Addr for dialing by host:port.
type TCPAddr string

func (a TCPAddr) Network() transport.Protocol { return transport.TCP }
func (a TCPAddr) String() string              { return string(a) }
