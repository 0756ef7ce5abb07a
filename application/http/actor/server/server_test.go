package server

import (
	"context"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"httpws/application/http"
	"httpws/application/http/actor/common"
	"httpws/application/websocket"
	"httpws/metrics"
	"httpws/transport"
	"httpws/transport/pipe"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

type ServerTestSuite struct {
	suite.Suite

	transport     *pipe.PipeTransport
	transportAddr pipe.Addr

	mux     *Mux
	metrics *metrics.Metrics
	server  *Server

	clock *clock.Mock
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func (s *ServerTestSuite) SetupTest() {
	s.clock = clock.NewMock()

	s.transport = pipe.NewBufferedPipeTransport(s.clock, pipe.BufferedOptions{Size: 1 << 16})
	s.transportAddr = pipe.Addr{Name: "addr"}

	lis, err := s.transport.Listen(s.transportAddr)
	s.Require().NoError(err)

	s.mux = NewMux()
	s.metrics = metrics.New(prometheus.NewRegistry(), "")
	s.server = New(lis, slog.New(slog.DiscardHandler), s.clock, s.mux, Options{
		Name:    "test",
		Metrics: s.metrics,
	})
	s.server.Start()
}

func (s *ServerTestSuite) TearDownTest() {
	defer goleak.VerifyNone(s.T())
	s.NoError(s.server.Close())
}

type testClient struct {
	conn transport.Conn
	r    *common.MessageReader
}

func (s *ServerTestSuite) dial() *testClient {
	conn, err := s.transport.Dial(context.Background(), s.transportAddr)
	s.Require().NoError(err)
	s.T().Cleanup(func() { conn.Close() })

	return &testClient{conn: conn, r: common.NewMessageReader(conn, 0, http.ParserOptions{})}
}

func (s *ServerTestSuite) send(c *testClient, raw string) {
	s.Require().NoError(transport.SendAll(c.conn, []byte(raw)))
}

// receive reads one whole response and its concatenated body.
func (s *ServerTestSuite) receive(c *testClient) (*http.Response, []byte) {
	header, err := c.r.ReadHeader()
	s.Require().NoError(err)

	res, err := http.DecodeResponse(header, http.DecodeOptions{})
	s.Require().NoError(err)

	var body []byte
	for {
		b, err := c.r.ReadBody()
		s.Require().NoError(err)
		body = append(body, b.Data...)
		if b.Last {
			return res, body
		}
	}
}

func (s *ServerTestSuite) requireClosed(c *testClient) {
	_, err := c.r.ReadHeader()
	s.Require().ErrorIs(err, transport.ErrConnClosed)
}

func (s *ServerTestSuite) header(res *http.Response, name string) string {
	v, ok := res.Headers.Get(name)
	s.True(ok, "missing %s", name)
	return v
}

func (s *ServerTestSuite) TestReply() {
	s.mux.Handle("/hello", func(c *HandleContext, request *http.Request, body Body) error {
		s.Equal("GET", request.Method)
		s.Equal(Body{Last: true}, body)
		s.NotEmpty(c.Session())
		return c.Reply(http.StatusOK, "text/plain", []byte("hi"))
	})

	c := s.dial()
	for range 2 {
		s.send(c, "GET /hello?name=x HTTP/1.1\r\nHost: localhost\r\n\r\n")

		res, body := s.receive(c)
		s.Equal(http.StatusOK, res.Code)
		s.Equal("OK", res.Status)
		s.Equal("test", s.header(res, "Server"))
		s.Equal("Thu, 01 Jan 1970 00:00:00 GMT", s.header(res, "Date"))
		s.Equal("2", s.header(res, "Content-Length"))
		s.Equal("hi", string(body))
	}

	s.Equal(2.0, testutil.ToFloat64(s.metrics.Requests.WithLabelValues("normal")))
	s.Equal(2.0, testutil.ToFloat64(s.metrics.Responses.WithLabelValues("200")))
}

func (s *ServerTestSuite) TestContentLengthBody() {
	s.mux.Handle("/echo", func(c *HandleContext, request *http.Request, body Body) error {
		s.True(body.Last)
		return c.Reply(http.StatusOK, "", body.Data)
	})

	c := s.dial()
	s.send(c, "POST /echo HTTP/1.1\r\nContent-Length: 11\r\n\r\nhello world")

	_, body := s.receive(c)
	s.Equal("hello world", string(body))
}

func (s *ServerTestSuite) TestChunkedEcho() {
	var records []Body
	s.mux.Handle("/chunked", func(c *HandleContext, request *http.Request, body Body) error {
		if len(records) == 0 {
			res := http.NewResponse(http.StatusOK)
			res.Headers.Set("Transfer-Encoding", "chunked")
			if err := c.WriteResponse(res); err != nil {
				return err
			}
		}
		records = append(records, body)
		return c.ReplyChunk(body.Data)
	})

	c := s.dial()
	s.send(c, "POST /chunked HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n"+
		"3\r\nabc\r\n2;ext=1\r\nde\r\n0\r\n\r\n")

	res, body := s.receive(c)
	s.Equal("chunked", s.header(res, "Transfer-Encoding"))
	s.Equal("abcde", string(body))
	s.Equal([]Body{{Data: []byte("abc")}, {Data: []byte("de")}, {Last: true}}, records)
	s.Equal(3.0, testutil.ToFloat64(s.metrics.BodyRecords.WithLabelValues("chunked")))
}

func (s *ServerTestSuite) TestMultipartUpload() {
	var parts []string
	s.mux.Handle("/upload", func(c *HandleContext, request *http.Request, body Body) error {
		if !body.Last {
			parts = append(parts, string(body.Data))
			return nil
		}

		boundary := http.NewBoundary()
		res := http.NewResponse(http.StatusOK)
		res.Headers.SetBoundary(boundary)
		if err := c.WriteResponse(res); err != nil {
			return err
		}
		for _, p := range parts {
			if err := c.ReplyPart(boundary, []byte(p)); err != nil {
				return err
			}
		}
		return c.ReplyPart(boundary, nil)
	})

	c := s.dial()
	s.send(c, "POST /upload HTTP/1.1\r\nContent-Type: multipart/form-data; boundary=XyZ\r\n\r\n"+
		"--XyZ\r\npart one\r\n--XyZ\r\npart two\r\n--XyZ--\r\n")

	res, body := s.receive(c)
	s.Contains(s.header(res, "Content-Type"), "multipart/form-data; boundary=httpws")
	s.Equal("part onepart two", string(body))
	s.Equal([]string{"part one", "part two"}, parts)
}

func (s *ServerTestSuite) TestNotFound() {
	c := s.dial()
	s.send(c, "GET /missing HTTP/1.1\r\n\r\n")

	res, body := s.receive(c)
	s.Equal(http.StatusNotFound, res.Code)
	s.Equal("Not Found", res.Status)
	s.Equal("test", s.header(res, "Server"))
	s.Equal("text/html", s.header(res, "Content-Type"))
	s.Equal(strconv.Itoa(len(notFoundBody)), s.header(res, "Content-Length"))
	s.Equal("Close", s.header(res, "Connection"))
	s.NotEmpty(s.header(res, "Date"))
	s.Equal(notFoundBody, string(body))

	s.requireClosed(c)
}

func (s *ServerTestSuite) TestBadRequest() {
	testcases := []struct {
		desc string
		raw  string
	}{
		{desc: "content length", raw: "POST /x HTTP/1.1\r\nContent-Length: abc\r\n\r\n"},
		{desc: "request line", raw: "GET /x\r\n\r\n"},
		{desc: "version", raw: "GET /x HTTP/1.X\r\n\r\n"},
		{desc: "chunk size", raw: "POST /x HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\nzz\r\n"},
	}
	s.mux.Handle("/x", func(c *HandleContext, request *http.Request, body Body) error { return nil })

	for _, tc := range testcases {
		s.Run(tc.desc, func() {
			c := s.dial()
			s.send(c, tc.raw)

			res, _ := s.receive(c)
			s.Equal(http.StatusBadRequest, res.Code)
			s.Equal("Close", s.header(res, "Connection"))
			s.requireClosed(c)
		})
	}
	s.Equal(float64(len(testcases)), testutil.ToFloat64(s.metrics.FormatErrors.WithLabelValues("http")))
}

func (s *ServerTestSuite) TestHandlerFailure() {
	s.mux.Handle("/error", func(c *HandleContext, request *http.Request, body Body) error {
		return errors.New("nope")
	})
	s.mux.Handle("/panic", func(c *HandleContext, request *http.Request, body Body) error {
		panic("haha I always panic")
	})

	for _, target := range []string{"/error", "/panic"} {
		c := s.dial()
		s.send(c, "GET "+target+" HTTP/1.1\r\n\r\n")
		s.requireClosed(c)
	}
}

func (s *ServerTestSuite) TestCloseConn() {
	s.mux.Handle("/bye", func(c *HandleContext, request *http.Request, body Body) error {
		c.CloseConn()
		return c.Reply(http.StatusOK, "", nil)
	})

	c := s.dial()
	s.send(c, "GET /bye HTTP/1.1\r\n\r\n")

	res, _ := s.receive(c)
	s.Equal("Close", s.header(res, "Connection"))
	s.requireClosed(c)
}

func (s *ServerTestSuite) TestClientRequestsClose() {
	s.mux.Handle("/", func(c *HandleContext, request *http.Request, body Body) error {
		return c.Reply(http.StatusOK, "", nil)
	})

	c := s.dial()
	s.send(c, "GET / HTTP/1.1\r\nConnection: close\r\n\r\n")

	res, _ := s.receive(c)
	s.Equal(http.StatusOK, res.Code)
	s.requireClosed(c)
}

func (s *ServerTestSuite) TestWebSocket() {
	var events []websocket.Event
	closed := make(chan struct{})
	s.mux.HandleWebSocket("/ws", func(c *WebSocketContext, record websocket.Record) error {
		events = append(events, record.Event)
		switch record.Event {
		case websocket.EventMessage:
			return c.Send(record.Payload, record.Kind)
		case websocket.EventClose:
			close(closed)
		}
		return nil
	})

	conn, err := s.transport.Dial(context.Background(), s.transportAddr)
	s.Require().NoError(err)

	ws, res, err := websocket.Dial(context.Background(), conn, websocket.DialOptions{Target: "/ws", Host: "addr"})
	s.Require().NoError(err)
	s.Equal("test", s.header(res, "Server"))

	s.Require().NoError(ws.Send([]byte("hello"), websocket.KindText))
	record, err := ws.Receive(context.Background())
	s.Require().NoError(err)
	s.Equal(websocket.Record{Last: true, Kind: websocket.KindText, Event: websocket.EventMessage, Payload: []byte("hello")}, record)

	s.Require().NoError(ws.Close())
	<-closed

	s.Equal([]websocket.Event{websocket.EventOpen, websocket.EventMessage, websocket.EventClose}, events)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.WebSocketFrames.WithLabelValues("text", "in")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.WebSocketFrames.WithLabelValues("text", "out")))
}

func (s *ServerTestSuite) TestWebSocketNotFound() {
	c := s.dial()
	s.send(c, "GET /nows HTTP/1.1\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n"+
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n\r\n")

	res, _ := s.receive(c)
	s.Equal(http.StatusNotFound, res.Code)
}

func (s *ServerTestSuite) TestWebSocketMissingKey() {
	s.mux.HandleWebSocket("/ws", func(c *WebSocketContext, record websocket.Record) error { return nil })

	c := s.dial()
	s.send(c, "GET /ws HTTP/1.1\r\nUpgrade: websocket\r\n\r\n")

	res, _ := s.receive(c)
	s.Equal(http.StatusBadRequest, res.Code)
	s.requireClosed(c)
}

func TestIdleTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := pipe.NewBufferedPipeTransport(clock.New(), pipe.BufferedOptions{Size: 1024})
	addr := pipe.Addr{Name: "idle"}
	lis, err := tr.Listen(addr)
	require.NoError(t, err)

	srv := New(lis, slog.New(slog.DiscardHandler), clock.New(), nil, Options{
		Timeout: TimeoutOptions{IdleTimeout: 20 * time.Millisecond},
	})
	srv.Start()
	defer srv.Close()

	conn, err := tr.Dial(context.Background(), addr)
	require.NoError(t, err)
	defer conn.Close()

	// Nothing is sent, so the server gives up on the connection.
	_, err = transport.Recv(conn, make([]byte, 1))
	require.ErrorIs(t, err, transport.ErrConnClosed)
}

func TestCloseBeforeStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := pipe.NewBufferedPipeTransport(clock.New(), pipe.BufferedOptions{Size: 1024})
	lis, err := tr.Listen(pipe.Addr{Name: "unstarted"})
	require.NoError(t, err)

	srv := New(lis, slog.New(slog.DiscardHandler), clock.New(), nil, Options{})
	require.NotPanics(t, func() {
		require.NoError(t, srv.Close())
		require.NoError(t, srv.Close())
	})
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{}.withDefaults()
	require.Equal(t, DefaultName, opts.Name)
	require.Equal(t, uint64(websocket.DefaultMaxPayload), opts.MaxFramePayload)
	require.NotNil(t, opts.Metrics)

	opts = Options{MaxFramePayload: 10}.withDefaults()
	require.Equal(t, uint64(10), opts.MaxFramePayload)
}
