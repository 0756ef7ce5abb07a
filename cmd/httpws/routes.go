package main

import (
	"log/slog"
	"sync"

	"httpws/application/http"
	"httpws/application/http/actor/server"
	"httpws/application/websocket"
)

const helloPage = "<html><body><h1>hello from httpws</h1></body></html>"

func newMux(logger *slog.Logger) *server.Mux {
	mux := server.NewMux()

	mux.Handle("/", hello)
	mux.Handle("/hello", hello)
	mux.Handle("/echo", echo)
	mux.Handle("/upload", upload(logger))
	mux.HandleWebSocket("/ws", newWSEcho().handle)

	return mux
}

func hello(c *server.HandleContext, request *http.Request, body server.Body) error {
	if !body.Last {
		return nil
	}
	return c.Reply(http.StatusOK, "text/html", []byte(helloPage))
}

// echo streams the request body back as chunks, whatever its framing.
func echo(c *server.HandleContext, request *http.Request, body server.Body) error {
	if len(body.Data) == 0 && !body.Last {
		return nil
	}
	if !c.Started() {
		res := http.NewResponse(http.StatusOK)
		if ct, ok := request.Headers.Get("Content-Type"); ok {
			res.Headers.Set("Content-Type", ct)
		}
		res.Headers.Set("Transfer-Encoding", "chunked")
		if err := c.WriteResponse(res); err != nil {
			return err
		}
	}

	if len(body.Data) > 0 {
		if err := c.ReplyChunk(body.Data); err != nil {
			return err
		}
	}
	if body.Last {
		return c.ReplyChunk(nil)
	}
	return nil
}

func upload(logger *slog.Logger) server.HandleFunc {
	return func(c *server.HandleContext, request *http.Request, body server.Body) error {
		if !body.Last {
			c.Logger().Info("received upload part", "length", len(body.Data))
			return nil
		}
		logger.Debug("upload finished", "session", c.Session())
		return c.Reply(http.StatusOK, "text/plain", []byte("upload complete"))
	}
}

// wsEcho sends every message back once it is complete.
type wsEcho struct {
	mu sync.Mutex
	// pending fragments by session.
	pending map[string][]byte
}

func newWSEcho() *wsEcho { return &wsEcho{pending: make(map[string][]byte)} }

func (e *wsEcho) handle(c *server.WebSocketContext, record websocket.Record) error {
	switch record.Event {
	case websocket.EventOpen:
		c.Logger().Info("websocket opened", "target", c.Request().Target)

	case websocket.EventMessage:
		e.mu.Lock()
		msg := append(e.pending[c.Session()], record.Payload...)
		if record.Last {
			delete(e.pending, c.Session())
		} else {
			e.pending[c.Session()] = msg
		}
		e.mu.Unlock()

		if !record.Last || len(msg) == 0 {
			return nil
		}
		return c.Send(msg, record.Kind)

	case websocket.EventClose:
		e.mu.Lock()
		delete(e.pending, c.Session())
		e.mu.Unlock()

		code, _ := websocket.CloseCode(record.Payload)
		c.Logger().Info("websocket closed by peer", "code", code)
	}
	return nil
}
