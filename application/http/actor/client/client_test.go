package client

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"httpws/application/http"
	"httpws/application/http/actor/server"
	"httpws/transport"
	"httpws/transport/pipe"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

type ClientTestSuite struct {
	suite.Suite

	local, peer transport.Conn
	client      *Client
}

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func (s *ClientTestSuite) SetupTest() {
	s.local, s.peer = pipe.NewBufferedPair("client", "server", clock.New(), pipe.BufferedOptions{Size: 1 << 16})
	s.client = New(s.local, slog.New(slog.DiscardHandler), clock.New(), Options{ReadBufferSize: 7})
}

func (s *ClientTestSuite) TearDownTest() {
	s.local.Close()
	s.peer.Close()
}

// sent reads n bytes of what the client wrote.
func (s *ClientTestSuite) sent(n int) string {
	buf := make([]byte, n)
	_, err := io.ReadFull(transport.Reader(s.peer), buf)
	s.Require().NoError(err)
	return string(buf)
}

func (s *ClientTestSuite) respond(raw string) {
	s.Require().NoError(transport.SendAll(s.peer, []byte(raw)))
}

func (s *ClientTestSuite) TestSendChunks() {
	req := http.NewRequest("POST", "/upload")
	req.Headers.Set("Transfer-Encoding", "chunked")

	s.Require().NoError(s.client.SendRequest(req))
	s.Require().NoError(s.client.SendChunk([]byte("hello world")))
	s.Require().NoError(s.client.SendChunk(nil))

	expected := "POST /upload HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"b\r\nhello world\r\n" +
		"0\r\n\r\n"
	s.Equal(expected, s.sent(len(expected)))
}

func (s *ClientTestSuite) TestSendParts() {
	s.Require().NoError(s.client.SendPart("b", []byte("one")))
	s.Require().NoError(s.client.SendPart("b", nil))
	s.ErrorIs(s.client.SendPart("", []byte("x")), ErrEmptyBoundary)

	expected := "--b\r\none\r\n--b--\r\n"
	s.Equal(expected, s.sent(len(expected)))
}

func (s *ClientTestSuite) TestSendBodyEmpty() {
	s.ErrorIs(s.client.SendBody(nil), ErrEmptyBody)
}

func (s *ClientTestSuite) TestReceiveRecords() {
	s.respond("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n" +
		"HTTP/1.1 204 No Content\r\n\r\n")

	var bodies []Body
	var first *http.Response
	for {
		res, body, err := s.client.Receive(context.Background())
		s.Require().NoError(err)
		if first == nil {
			first = res
		}
		s.Same(first, res)
		bodies = append(bodies, body)
		if body.Last {
			break
		}
	}
	s.Equal(200, first.Code)
	s.Equal([]Body{{Data: []byte("hello")}, {Data: []byte(" world")}, {Last: true}}, bodies)

	res, body, err := s.client.Receive(context.Background())
	s.Require().NoError(err)
	s.Equal(204, res.Code)
	s.Equal("No Content", res.Status)
	s.Equal(Body{Last: true}, body)
}

func (s *ClientTestSuite) TestReceiveMalformed() {
	s.respond("HTTP/1.1 200 OK\r\nContent-Length: -1\r\n\r\n")

	_, _, err := s.client.Receive(context.Background())
	s.ErrorIs(err, http.ErrFormat)
}

func (s *ClientTestSuite) TestReceiveUpgraded() {
	s.respond("HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\n\r\n")

	res, _, err := s.client.Receive(context.Background())
	s.ErrorIs(err, ErrUpgraded)
	s.Equal(101, res.Code)
}

func (s *ClientTestSuite) TestReceiveCanceled() {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := s.client.Receive(ctx)
	s.ErrorIs(err, context.DeadlineExceeded)
}

func (s *ClientTestSuite) TestReceiveDisconnected() {
	s.respond("HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\nshort")
	s.peer.Close()

	_, _, err := s.client.Receive(context.Background())
	s.ErrorIs(err, transport.ErrConnClosed)
}

func TestDoAgainstServer(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := pipe.NewBufferedPipeTransport(clock.New(), pipe.BufferedOptions{Size: 1 << 16})
	addr := pipe.Addr{Name: "server"}
	lis, err := tr.Listen(addr)
	require.NoError(t, err)

	mux := server.NewMux()
	mux.Handle("/echo", func(c *server.HandleContext, request *http.Request, body server.Body) error {
		return c.Reply(http.StatusOK, "text/plain", body.Data)
	})

	srv := server.New(lis, slog.New(slog.DiscardHandler), clock.New(), mux, server.Options{})
	srv.Start()
	defer srv.Close()

	c, err := Dial(context.Background(), tr, addr, slog.New(slog.DiscardHandler), clock.New(), Options{})
	require.NoError(t, err)
	defer c.Close()

	for _, msg := range []string{"first", "second"} {
		res, body, err := c.Do(context.Background(), http.NewRequest("POST", "/echo"), []byte(msg))
		require.NoError(t, err)
		assert.Equal(t, 200, res.Code)
		assert.Equal(t, msg, string(body))
	}

	res, body, err := c.Do(context.Background(), http.NewRequest("GET", "/nowhere"), nil)
	require.NoError(t, err)
	assert.Equal(t, 404, res.Code)
	assert.Equal(t, "URL Not Found: The resource specified is unavailable.", string(body))
}
