package server

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"httpws/application/http"
	"httpws/application/http/actor/common"
	"httpws/application/websocket"
	"httpws/transport"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

const notFoundBody = "URL Not Found: The resource specified is unavailable."

var ErrIdleTimeoutExceeded = errors.New("idle timeout exceeded")

type conn struct {
	con transport.Conn
	r   *common.MessageReader
	w   *responseWriter

	mux     *Mux
	clock   clock.Clock
	session string

	logger *slog.Logger

	opts Options
}

func newConn(con transport.Conn, mux *Mux, clock clock.Clock, session string, logger *slog.Logger, opts Options) *conn {
	c := &conn{
		con: con,
		r: common.NewMessageReader(con, opts.ReadBufferSize, http.ParserOptions{
			Logger:          logger,
			MaxHeaderLength: opts.MaxHeaderLength,
		}),
		mux:     mux,
		clock:   clock,
		session: session,
		logger:  logger,
		opts:    opts,
	}
	c.w = &responseWriter{
		enc:     http.NewEncoder(con),
		conn:    con,
		clock:   clock,
		name:    opts.Name,
		timeout: opts.Timeout,
		onCode: func(code int) {
			opts.Metrics.Responses.WithLabelValues(strconv.Itoa(code)).Inc()
		},
	}
	return c
}

func (c *conn) start(ctx context.Context) {
	m := c.opts.Metrics
	m.Connections.Inc()
	m.ActiveConnections.Inc()
	defer m.ActiveConnections.Dec()

	defer func() {
		c.logger.Debug("closing connection")
		if err := c.con.Close(); err != nil {
			c.logger.Debug("error when closing connection", "error", err)
		}
	}()

	// Closing unblocks any read or write in progress.
	stop := context.AfterFunc(ctx, func() { c.con.Close() })
	defer stop()

	err := c.serve(ctx)

	switch {
	case ctx.Err() != nil:
		// Server is closing.
	case errors.Is(err, ErrIdleTimeoutExceeded):
		c.logger.Info("idle timeout exceeded")
	case errors.Is(err, transport.ErrConnClosed):
		c.logger.Debug("connection closed by peer")
	case errors.Is(err, http.ErrFormat):
		c.logger.Warn("malformed message", "error", err)
	case err != nil:
		c.logger.Error("unknown error occured", "error", err)
	}
}

func (c *conn) serve(ctx context.Context) error {
	for {
		c.w.written = false

		request, err := c.readRequest()
		if err != nil {
			if errors.Is(err, http.ErrFormat) {
				c.reject()
			}
			return err
		}

		mode := c.r.Mode()
		c.opts.Metrics.Requests.WithLabelValues(mode.String()).Inc()
		c.logger.Debug("received request",
			"method", request.Method,
			"target", request.Target,
			"mode", mode,
		)

		if mode == http.ModeWebSocket {
			return c.upgrade(ctx, request)
		}

		handle, ok := c.mux.http.Match(request.Target)
		if !ok {
			return c.notFound()
		}

		keep, err := c.handle(ctx, handle, request)
		if err != nil || !keep {
			return err
		}
	}
}

func (c *conn) readRequest() (*http.Request, error) {
	if t := c.opts.Timeout.IdleTimeout; t > 0 {
		c.con.SetReadDeadLine(c.clock.Now().Add(t))
	}

	header, err := c.r.ReadHeader()
	if err != nil {
		if errors.Is(err, transport.ErrDeadLineExceeded) {
			return nil, ErrIdleTimeoutExceeded
		}
		return nil, err
	}
	c.con.SetReadDeadLine(time.Time{})

	return http.DecodeRequest(header, http.DecodeOptions{Logger: c.logger})
}

// handle feeds every body record of request to h.
// It reports whether the connection should serve another request.
func (c *conn) handle(ctx context.Context, h HandleFunc, request *http.Request) (bool, error) {
	hctx := &HandleContext{
		ctx:        ctx,
		remoteAddr: c.con.RemoteAddr(),
		session:    c.session,
		logger:     c.logger,
		w:          c.w,
	}

	mode := c.r.Mode()
	for {
		body, err := c.r.ReadBody()
		if err != nil {
			if errors.Is(err, http.ErrFormat) {
				c.reject()
			}
			return false, err
		}
		c.opts.Metrics.BodyRecords.WithLabelValues(mode.String()).Inc()

		if err := common.Guard(func() error { return h(hctx, request, body) }); err != nil {
			return false, errors.Wrap(err, "handling request")
		}

		if body.Last {
			break
		}
	}

	if hctx.closeConn || request.Headers.Contains("Connection", "close") {
		return false, nil
	}
	return true, nil
}

func (c *conn) upgrade(ctx context.Context, request *http.Request) error {
	handle, ok := c.mux.websocket.Match(request.Target)
	if !ok {
		return c.notFound()
	}

	res, err := websocket.NewAcceptResponse(request)
	if err != nil {
		c.reject()
		return err
	}
	if err := c.w.writeResponse(res); err != nil {
		return errors.Wrap(err, "writing handshake response")
	}
	c.con.SetWriteDeadLine(time.Time{})

	m := c.opts.Metrics
	ws := websocket.NewConn(c.con, websocket.Options{
		MaxPayload: c.opts.MaxFramePayload,
		Buffered:   c.r.TakeBuffered(),
		Logger:     c.logger,
		OnFrame: func(dir websocket.Direction, op websocket.Opcode) {
			m.WebSocketFrames.WithLabelValues(op.String(), string(dir)).Inc()
		},
	})
	defer ws.Close()

	wctx := &WebSocketContext{
		ctx:     ctx,
		conn:    ws,
		request: request,
		session: c.session,
		logger:  c.logger,
	}
	c.logger.Debug("upgraded to websocket", "target", request.Target)

	err = serveWebSocket(wctx, handle)
	if errors.Is(err, http.ErrFormat) {
		m.FormatErrors.WithLabelValues("websocket").Inc()
	}
	return err
}

func serveWebSocket(c *WebSocketContext, h WebSocketHandleFunc) error {
	call := func(record websocket.Record) error {
		return common.Guard(func() error { return h(c, record) })
	}

	if err := call(websocket.Record{Last: true, Event: websocket.EventOpen}); err != nil {
		return errors.Wrap(err, "handling websocket open")
	}

	for !c.closeConn {
		record, err := c.conn.Receive(c.ctx)
		if err != nil {
			return err
		}

		if err := call(record); err != nil {
			return errors.Wrap(err, "handling websocket record")
		}

		if record.Event == websocket.EventClose {
			return nil
		}
	}
	return nil
}

func (c *conn) notFound() error {
	res := http.NewResponse(http.StatusNotFound)
	res.Headers.Set("Content-Type", "text/html")
	res.Headers.Set("Content-Length", strconv.Itoa(len(notFoundBody)))
	res.Headers.SetClose()

	if err := c.w.writeResponse(res); err != nil {
		return err
	}
	return c.w.enc.WriteBody([]byte(notFoundBody))
}

// reject answers a malformed request with 400 unless a response is
// already under way. Failures are ignored since the connection is closing.
func (c *conn) reject() {
	c.opts.Metrics.FormatErrors.WithLabelValues("http").Inc()
	if c.w.written {
		return
	}

	res := http.NewResponse(http.StatusBadRequest)
	res.Headers.Set("Content-Length", "0")
	res.Headers.SetClose()
	if err := c.w.writeResponse(res); err != nil {
		c.logger.Debug("failed to send bad request response", "error", err)
	}
}
