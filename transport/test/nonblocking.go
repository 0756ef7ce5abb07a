package test

import (
	"bytes"
	"sync"
	"time"

	"httpws/transport"
)

// NonBlockingConnTestSuite covers conns that return transport.ErrWouldBlock
// instead of waiting, and the transport helpers that retry on it.
type NonBlockingConnTestSuite struct {
	PairSuite
}

func (s *NonBlockingConnTestSuite) TestReadWouldBlock() {
	n, err := s.C1.Read(make([]byte, 8))
	s.ErrorIs(err, transport.ErrWouldBlock)
	s.Zero(n)
}

func (s *NonBlockingConnTestSuite) TestWriteWouldBlock() {
	input := overflow(s.C1)

	n, err := s.C1.Write(input)
	s.ErrorIs(err, transport.ErrWouldBlock)
	s.Less(n, len(input))
}

func (s *NonBlockingConnTestSuite) TestRecvRetries() {
	var wg sync.WaitGroup
	defer wg.Wait()
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		s.NoError(transport.SendAll(s.C2, []byte("late")))
	}()

	got, err := recvN(s.C1, 4, 4)
	s.Require().NoError(err)
	s.Equal("late", string(got))
}

// TestSendAllRetries pushes more than the peer can hold at once, so SendAll
// has to resume after partial writes.
func (s *NonBlockingConnTestSuite) TestSendAllRetries() {
	data := bytes.Repeat([]byte("0123456789abcdef"), len(overflow(s.C1))/4)

	var wg sync.WaitGroup
	defer wg.Wait()
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.NoError(transport.SendAll(s.C1, data))
	}()

	got, err := recvN(s.C2, len(data), 4096)
	s.Require().NoError(err)
	s.Equal(data, got)
}

func (s *NonBlockingConnTestSuite) TestDeadlineOverWouldBlock() {
	s.C1.SetReadDeadLine(s.Clock.Now().Add(-time.Second))
	_, err := s.C1.Read(make([]byte, 1))
	s.ErrorIs(err, transport.ErrDeadLineExceeded)

	_, err = transport.Recv(s.C1, make([]byte, 1))
	s.ErrorIs(err, transport.ErrDeadLineExceeded)

	s.C1.SetWriteDeadLine(s.Clock.Now().Add(-time.Second))
	s.ErrorIs(transport.SendAll(s.C1, overflow(s.C1)), transport.ErrDeadLineExceeded)
}

func (s *NonBlockingConnTestSuite) TestCloseOverWouldBlock() {
	s.Require().NoError(s.C2.Close())

	_, err := s.C1.Read(make([]byte, 1))
	s.ErrorIs(err, transport.ErrConnClosed)
	s.NotErrorIs(err, transport.ErrWouldBlock)

	_, err = s.C1.Write([]byte("x"))
	s.ErrorIs(err, transport.ErrConnClosed)
}
