package transport

import (
	"context"
	"io"
	"runtime"
	"time"

	"github.com/pkg/errors"
)

// DisconnectedError reports that the peer went away or the transport failed
// while a read or write was in progress.
type DisconnectedError struct {
	Op    string
	cause error
}

func Disconnected(op string, cause error) error {
	if cause == nil {
		cause = ErrConnClosed
	}
	return &DisconnectedError{Op: op, cause: cause}
}

func (e *DisconnectedError) Error() string {
	return "disconnected during " + e.Op + ": " + e.cause.Error()
}

func (e *DisconnectedError) Unwrap() error { return e.cause }

func (e *DisconnectedError) Is(target error) bool { return target == ErrConnClosed }

// Recv reads once from conn into buf.
// ErrWouldBlock is retried until data arrives or the conn fails.
// Any failure other than a deadline is reported as disconnected.
func Recv(conn io.Reader, buf []byte) (int, error) {
	for {
		n, err := conn.Read(buf)
		switch {
		case err == nil:
			return n, nil
		case errors.Is(err, ErrWouldBlock):
			if n > 0 {
				return n, nil
			}
			runtime.Gosched()
			continue
		case errors.Is(err, ErrDeadLineExceeded):
			return n, err
		default:
			return n, Disconnected("recv", err)
		}
	}
}

// SendAll writes the whole buf to conn.
// ErrWouldBlock is retried from where it stopped. Writing fewer bytes
// than requested without an error is treated as disconnection.
func SendAll(conn io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := conn.Write(buf)
		buf = buf[n:]
		switch {
		case err == nil:
			if len(buf) > 0 {
				return Disconnected("send", io.ErrShortWrite)
			}
		case errors.Is(err, ErrWouldBlock):
			runtime.Gosched()
		case errors.Is(err, ErrDeadLineExceeded):
			return err
		default:
			return Disconnected("send", err)
		}
	}
	return nil
}

type reader struct{ r io.Reader }

func (r reader) Read(p []byte) (int, error) { return Recv(r.r, p) }

// Reader returns an io.Reader reading through Recv.
func Reader(r io.Reader) io.Reader { return reader{r: r} }

type writer struct{ w io.Writer }

func (w writer) Write(p []byte) (int, error) {
	if err := SendAll(w.w, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Writer returns an io.Writer writing through SendAll.
func Writer(w io.Writer) io.Writer { return writer{w: w} }

// AbortOnDone makes blocked reads and writes on conn fail with
// ErrDeadLineExceeded once ctx is done. Calling stop detaches it.
func AbortOnDone(ctx context.Context, conn Conn) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		past := time.Unix(1, 0)
		conn.SetReadDeadLine(past)
		conn.SetWriteDeadLine(past)
	})
}
