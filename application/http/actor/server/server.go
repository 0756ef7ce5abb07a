package server

import (
	"context"
	"log/slog"
	"sync"

	"httpws/transport"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Server struct {
	l transport.ConnListener

	closeListener func()
	wg            sync.WaitGroup

	logger *slog.Logger
	opts   Options

	mux   *Mux
	clock clock.Clock
}

func New(
	l transport.ConnListener,
	logger *slog.Logger,
	clock clock.Clock,
	mux *Mux,
	opts Options,
) *Server {
	if mux == nil {
		mux = NewMux()
	}

	return &Server{
		l:      l,
		logger: logger,
		opts:   opts.withDefaults(),
		mux:    mux,
		clock:  clock,
	}
}

// Start accepts connections in the background until Close is called.
func (s *Server) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.closeListener = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		connCtx, connCancel := context.WithCancel(context.Background())
		defer connCancel()

		for {
			conn, err := s.acceptConn(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, transport.ErrConnListenerClosed) {
					s.logger.Error(
						"unexpected error when accepting connection",
						"error", err.Error(),
					)
				}
				return
			}

			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				conn.start(connCtx)
			}()
		}
	}()
}

func (s *Server) acceptConn(ctx context.Context) (*conn, error) {
	con, err := s.l.Accept(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listening for connection")
	}

	session := uuid.NewString()
	logger := s.logger.With("conn", con.RemoteAddr(), "session", session)
	logger.Debug("accepted connection")

	return newConn(con, s.mux, s.clock, session, logger, s.opts), nil
}

// Close stops accepting, closes every connection and waits for them.
// It is safe to call before Start.
func (s *Server) Close() error {
	if s.closeListener != nil {
		s.closeListener()
	}
	err := s.l.Close()
	s.wg.Wait()
	if err != nil && !errors.Is(err, transport.ErrConnListenerClosed) {
		s.logger.Debug("error when closing listener", "error", err)
	}
	return nil
}
