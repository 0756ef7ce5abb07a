package server

import (
	"context"
	"log/slog"
	"strconv"

	"httpws/application/http"
	"httpws/application/http/actor/common"
	"httpws/application/websocket"
	"httpws/transport"

	"github.com/benbjohnson/clock"
)

type Body = common.Body

// HandleFunc is called once per body record of a request, in order.
// Returning an error closes the connection.
type HandleFunc func(c *HandleContext, request *http.Request, body Body) error

// WebSocketHandleFunc is called with EventOpen once the handshake is done,
// then once per received record. Returning an error closes the connection.
type WebSocketHandleFunc func(c *WebSocketContext, record websocket.Record) error

// Mux holds the HTTP and WebSocket routes of a server.
type Mux struct {
	http      *Router[HandleFunc]
	websocket *Router[WebSocketHandleFunc]
}

func NewMux() *Mux {
	return &Mux{
		http:      NewRouter[HandleFunc](),
		websocket: NewRouter[WebSocketHandleFunc](),
	}
}

func (m *Mux) Handle(pattern string, h HandleFunc) { m.http.Handle(pattern, h) }

func (m *Mux) HandleWebSocket(pattern string, h WebSocketHandleFunc) {
	m.websocket.Handle(pattern, h)
}

type HandleContext struct {
	ctx        context.Context
	remoteAddr transport.Addr
	session    string
	logger     *slog.Logger

	w *responseWriter

	closeConn bool
}

func (c *HandleContext) Context() context.Context   { return c.ctx }
func (c *HandleContext) RemoteAddr() transport.Addr { return c.remoteAddr }
func (c *HandleContext) Session() string            { return c.session }
func (c *HandleContext) Logger() *slog.Logger       { return c.logger }

// CloseConn closes the connection once the current request is done.
func (c *HandleContext) CloseConn() { c.closeConn = true }

// Started reports whether a response header went out for this request.
func (c *HandleContext) Started() bool { return c.w.written }

// WriteResponse sends the response header. Server and Date are filled in
// when missing, and Connection: Close is added after CloseConn.
func (c *HandleContext) WriteResponse(res *http.Response) error {
	if c.closeConn {
		res.Headers.SetClose()
	}
	return c.w.writeResponse(res)
}

// Reply sends a complete response with a fixed-length body.
func (c *HandleContext) Reply(code int, contentType string, body []byte) error {
	res := http.NewResponse(code)
	if contentType != "" {
		res.Headers.Set("Content-Type", contentType)
	}
	res.Headers.Set("Content-Length", strconv.Itoa(len(body)))

	if err := c.WriteResponse(res); err != nil {
		return err
	}
	return c.w.enc.WriteBody(body)
}

// WriteBody sends raw body bytes after WriteResponse.
func (c *HandleContext) WriteBody(b []byte) error { return c.w.enc.WriteBody(b) }

// ReplyChunk sends one chunk of a chunked response. Empty b ends the body.
func (c *HandleContext) ReplyChunk(b []byte) error { return c.w.enc.WriteChunk(b) }

// ReplyPart sends one part of a multipart response. Empty b ends the body.
func (c *HandleContext) ReplyPart(boundary string, b []byte) error {
	return c.w.enc.WritePart(boundary, b)
}

type WebSocketContext struct {
	ctx     context.Context
	conn    *websocket.Conn
	request *http.Request
	session string
	logger  *slog.Logger

	closeConn bool
}

func (c *WebSocketContext) Context() context.Context   { return c.ctx }
func (c *WebSocketContext) RemoteAddr() transport.Addr { return c.conn.RemoteAddr() }
func (c *WebSocketContext) Session() string            { return c.session }
func (c *WebSocketContext) Logger() *slog.Logger       { return c.logger }

// Request is the upgrade request that opened the connection.
func (c *WebSocketContext) Request() *http.Request { return c.request }

func (c *WebSocketContext) Send(payload []byte, kind websocket.Kind) error {
	return c.conn.Send(payload, kind)
}

func (c *WebSocketContext) Ping(payload []byte) error { return c.conn.Ping(payload) }

// CloseConn closes the connection once the handler returns.
func (c *WebSocketContext) CloseConn() { c.closeConn = true }

type responseWriter struct {
	enc     *http.Encoder
	conn    transport.Conn
	clock   clock.Clock
	name    string
	timeout TimeoutOptions
	onCode  func(code int)

	// written is set once a response header went out for the current request.
	written bool
}

func (w *responseWriter) writeResponse(res *http.Response) error {
	if !res.Headers.Has("Server") {
		res.Headers.Set("Server", w.name)
	}
	if !res.Headers.Has("Date") {
		res.Headers.SetDate(w.clock.Now())
	}

	if t := w.timeout.WriteTimeout; t > 0 {
		w.conn.SetWriteDeadLine(w.clock.Now().Add(t))
	}

	w.written = true
	w.onCode(res.Code)
	return w.enc.WriteResponse(res)
}
