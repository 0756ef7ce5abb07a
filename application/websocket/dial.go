package websocket

import (
	"context"
	"log/slog"

	"httpws/application/http"
	"httpws/transport"

	"github.com/pkg/errors"
)

type DialOptions struct {
	Target string
	Host   string

	// Extra request headers, set after the handshake ones.
	Headers []http.Field

	// MaxPayload limits received frames. 0 means DefaultMaxPayload.
	MaxPayload uint64
	Logger     *slog.Logger
	OnFrame    func(dir Direction, op Opcode)

	// ReadBufferSize is the size of each read during the handshake.
	ReadBufferSize int
}

// Dial performs the client handshake on conn and returns a masking Conn.
// The handshake response is returned even when verification fails.
func Dial(ctx context.Context, conn transport.Conn, opts DialOptions) (*Conn, *http.Response, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	key, err := NewKey()
	if err != nil {
		return nil, nil, err
	}

	req := NewOpenRequest(opts.Target, opts.Host, key)
	for _, f := range opts.Headers {
		req.Headers.Set(f.Name, f.Value)
	}

	stop := transport.AbortOnDone(ctx, conn)
	defer stop()

	if err := http.NewEncoder(conn).WriteRequest(req); err != nil {
		return nil, nil, ctxErr(ctx, errors.Wrap(err, "sending handshake request"))
	}

	parser := http.NewBodyParser(http.ParserOptions{Logger: logger})
	buf := make([]byte, max(opts.ReadBufferSize, 1024))
	for {
		err := parser.ParseHeader()
		if err == nil {
			break
		}
		if !errors.Is(err, http.ErrNeedMoreData) {
			return nil, nil, err
		}

		n, err := transport.Recv(conn, buf)
		if err != nil {
			return nil, nil, ctxErr(ctx, errors.Wrap(err, "receiving handshake response"))
		}
		parser.Push(buf[:n])
	}

	res, err := http.DecodeResponse(parser.Header(), http.DecodeOptions{Logger: logger})
	if err != nil {
		return nil, nil, err
	}
	if err := VerifyResponse(res, key); err != nil {
		return nil, res, err
	}

	logger.Debug("websocket handshake done", "target", opts.Target)

	return NewConn(conn, Options{
		Mask:       true,
		MaxPayload: opts.MaxPayload,
		Buffered:   parser.TakeBuffered(),
		Logger:     logger,
		OnFrame:    opts.OnFrame,
	}), res, nil
}

func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
