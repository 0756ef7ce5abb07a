package websocket

import (
	"bytes"
	"context"
	"net"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"httpws/transport/netconn"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoServer(t *testing.T) (addr string, done <-chan struct{}) {
	t.Helper()

	finished := make(chan struct{})
	upgrader := gorilla.Upgrader{}

	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.URL.Path != "/echo" {
			nethttp.NotFound(w, r)
			return
		}

		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer close(finished)
		defer c.Close()

		for {
			typ, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			if err := c.WriteMessage(typ, msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return srv.Listener.Addr().String(), finished
}

func TestDialEcho(t *testing.T) {
	addr, done := echoServer(t)

	nc, err := net.Dial("tcp", addr)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, res, err := Dial(ctx, netconn.Wrap(nc), DialOptions{Target: "/echo", Host: addr})
	require.NoError(t, err)
	assert.Equal(t, 101, res.Code)

	require.NoError(t, c.Send([]byte("hello"), KindText))
	rec, err := c.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, Record{Last: true, Kind: KindText, Event: EventMessage, Payload: []byte("hello")}, rec)

	// Fragmented on the way out, reassembled by the peer.
	big := bytes.Repeat([]byte{0xab}, 3*MaxFragmentSize/2)
	require.NoError(t, c.Send(big, KindBinary))

	var got []byte
	for {
		rec, err := c.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, KindBinary, rec.Kind)
		got = append(got, rec.Payload...)
		if rec.Last {
			break
		}
	}
	assert.Equal(t, big, got)

	require.NoError(t, c.Ping([]byte("are you there")))

	require.NoError(t, c.Close())
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("echo handler did not finish")
	}
}

func TestDialRejected(t *testing.T) {
	addr, _ := echoServer(t)

	nc, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer nc.Close()

	_, res, err := Dial(context.Background(), netconn.Wrap(nc), DialOptions{Target: "/missing", Host: addr})
	assert.ErrorIs(t, err, ErrHandshake)
	require.NotNil(t, res)
	assert.Equal(t, 404, res.Code)
}

func TestDialCanceled(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	// A peer that accepts but never answers.
	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	nc, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer nc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err = Dial(ctx, netconn.Wrap(nc), DialOptions{Target: "/", Host: "localhost"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	(<-accepted).Close()
}
