package client

import "time"

type Options struct {
	// ReadBufferSize is the size of each read from the connection.
	ReadBufferSize int

	Timeout TimeoutOptions
}

type TimeoutOptions struct {
	// WriteTimeout bounds each send. 0 means no limit.
	WriteTimeout time.Duration
}
