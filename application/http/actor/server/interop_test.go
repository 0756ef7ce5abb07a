package server

import (
	"io"
	"log/slog"
	nethttp "net/http"
	"strings"
	"testing"
	"time"

	"httpws/application/http"
	"httpws/application/websocket"
	"httpws/transport/netconn"

	"github.com/benbjohnson/clock"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Standard library and gorilla clients talking to the server over TCP.
func TestInterop(t *testing.T) {
	lis, err := netconn.Listen("127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()

	mux := NewMux()
	mux.Handle("/hello", func(c *HandleContext, request *http.Request, body Body) error {
		return c.Reply(http.StatusOK, "text/plain", []byte("hello, world"))
	})
	mux.Handle("/upload", func(c *HandleContext, request *http.Request, body Body) error {
		if !body.Last {
			return nil
		}
		return c.Reply(http.StatusOK, "text/plain", []byte("done"))
	})
	// gorilla fragments large messages; echo them back whole.
	var pending []byte
	mux.HandleWebSocket("/ws", func(c *WebSocketContext, record websocket.Record) error {
		if record.Event != websocket.EventMessage {
			return nil
		}
		pending = append(pending, record.Payload...)
		if !record.Last {
			return nil
		}
		msg := pending
		pending = nil
		return c.Send(msg, record.Kind)
	})

	srv := New(lis, slog.New(slog.DiscardHandler), clock.New(), mux, Options{})
	srv.Start()
	defer srv.Close()

	client := &nethttp.Client{Timeout: 5 * time.Second}

	t.Run("get", func(t *testing.T) {
		res, err := client.Get("http://" + addr + "/hello")
		require.NoError(t, err)
		defer res.Body.Close()

		b, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		assert.Equal(t, nethttp.StatusOK, res.StatusCode)
		assert.Equal(t, "hello, world", string(b))
		assert.Equal(t, DefaultName, res.Header.Get("Server"))
	})

	t.Run("chunked post", func(t *testing.T) {
		// Unknown length makes the client send a chunked body.
		body := io.MultiReader(strings.NewReader("abc"), strings.NewReader("def"))
		res, err := client.Post("http://"+addr+"/upload", "text/plain", body)
		require.NoError(t, err)
		defer res.Body.Close()

		b, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		assert.Equal(t, "done", string(b))
	})

	t.Run("not found", func(t *testing.T) {
		res, err := client.Get("http://" + addr + "/missing")
		require.NoError(t, err)
		defer res.Body.Close()

		b, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		assert.Equal(t, nethttp.StatusNotFound, res.StatusCode)
		assert.Equal(t, notFoundBody, string(b))
	})

	t.Run("websocket", func(t *testing.T) {
		ws, _, err := gorilla.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
		require.NoError(t, err)
		defer ws.Close()

		require.NoError(t, ws.WriteMessage(gorilla.TextMessage, []byte("echo me")))
		typ, msg, err := ws.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, gorilla.TextMessage, typ)
		assert.Equal(t, "echo me", string(msg))

		big := strings.Repeat("x", 3*websocket.MaxFragmentSize)
		require.NoError(t, ws.WriteMessage(gorilla.BinaryMessage, []byte(big)))
		typ, msg, err = ws.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, gorilla.BinaryMessage, typ)
		assert.Equal(t, big, string(msg))

		require.NoError(t, ws.WriteMessage(gorilla.CloseMessage,
			gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, "")))
		_, _, err = ws.ReadMessage()
		assert.True(t, gorilla.IsCloseError(err, gorilla.CloseNormalClosure))
	})
}
