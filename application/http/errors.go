package http

import "github.com/pkg/errors"

var (
	// ErrNeedMoreData is returned when the queued bytes do not hold a complete
	// unit yet. Push more data and call again; the parser state is unchanged.
	ErrNeedMoreData = errors.New("need more data")

	// ErrFormat is returned for malformed messages. The message cannot be
	// recovered and the connection should be closed.
	ErrFormat = errors.New("malformed message")
)
