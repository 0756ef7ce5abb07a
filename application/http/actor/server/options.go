package server

import (
	"time"

	"httpws/application/websocket"
	"httpws/metrics"
)

const DefaultName = "httpws"

type Options struct {
	// Name is sent in the Server header.
	Name string

	// ReadBufferSize is the size of each read from a connection.
	ReadBufferSize int
	// MaxHeaderLength rejects header blocks longer than this. 0 means no limit.
	MaxHeaderLength int

	Timeout TimeoutOptions

	// MaxFramePayload limits received WebSocket frames.
	// 0 means websocket.DefaultMaxPayload.
	MaxFramePayload uint64

	// Metrics defaults to metrics registered nowhere.
	Metrics *metrics.Metrics
}

type TimeoutOptions struct {
	// IdleTimeout closes a connection that sends no request for this long.
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = DefaultName
	}
	if o.MaxFramePayload == 0 {
		o.MaxFramePayload = websocket.DefaultMaxPayload
	}
	if o.Metrics == nil {
		o.Metrics = metrics.Discard()
	}
	return o
}
