// Package test holds conformance suites shared by transport.Conn implementations.
//
// Each suite is parameterised by a Pair that opens two connected conns.
// The suite owns them and closes both after every test.
package test

import (
	"bytes"
	"context"
	"sync"
	"time"

	"httpws/transport"

	"github.com/pkg/errors"
)

// ConnTestSuite covers conns whose reads and writes wait for the peer.
type ConnTestSuite struct {
	PairSuite
}

// TestRoundTrip sends a message larger than one read in both directions.
func (s *ConnTestSuite) TestRoundTrip() {
	request := bytes.Repeat([]byte("GET / HTTP/1.1\r\n"), 8)
	response := []byte("HTTP/1.1 200 OK\r\n\r\n")

	var wg sync.WaitGroup
	defer wg.Wait()
	wg.Add(1)
	go func() {
		defer wg.Done()
		got, err := recvN(s.C2, len(request), 7)
		if s.NoError(err) {
			s.Equal(request, got)
		}
		s.NoError(transport.SendAll(s.C2, response))
	}()

	s.Require().NoError(transport.SendAll(s.C1, request))
	got, err := recvN(s.C1, len(response), 7)
	s.Require().NoError(err)
	s.Equal(response, got)
}

// TestPartialRead checks that a short buffer takes the head of the data and
// leaves the rest for the next read.
func (s *ConnTestSuite) TestPartialRead() {
	data := []byte("Hello, World!")

	var wg sync.WaitGroup
	defer wg.Wait()
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.NoError(transport.SendAll(s.C1, data))
	}()

	got, err := recvN(s.C2, len(data), 5)
	s.Require().NoError(err)
	s.Equal(data, got)
}

// TestConcurrentWriters checks that concurrent writes are not interleaved.
func (s *ConnTestSuite) TestConcurrentWriters() {
	const writers = 10
	messages := make([][]byte, writers)
	for i := range messages {
		messages[i] = bytes.Repeat([]byte{'a' + byte(i)}, 4)
	}

	var wg sync.WaitGroup
	defer wg.Wait()
	for _, m := range messages {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.NoError(transport.SendAll(s.C1, m))
		}()
	}

	got, err := recvN(s.C2, writers*4, 16)
	s.Require().NoError(err)
	for i := 0; i < len(got); i += 4 {
		s.Equal(bytes.Repeat(got[i:i+1], 4), got[i:i+4], "message at %d is interleaved", i)
	}
}

func (s *ConnTestSuite) TestClose() {
	s.Require().NoError(s.C1.Close())

	for _, c := range []transport.Conn{s.C1, s.C2} {
		buf := make([]byte, 10)

		n, err := c.Read(buf)
		s.ErrorIs(err, transport.ErrConnClosed)
		s.Zero(n)

		n, err = c.Write(buf)
		s.ErrorIs(err, transport.ErrConnClosed)
		s.Zero(n)
	}
}

// TestRecvAfterPeerClose checks that the transport helpers report the peer
// going away as a DisconnectedError.
func (s *ConnTestSuite) TestRecvAfterPeerClose() {
	s.Require().NoError(s.C2.Close())

	_, err := transport.Recv(s.C1, make([]byte, 4))
	s.ErrorIs(err, transport.ErrConnClosed)

	var de *transport.DisconnectedError
	s.Require().True(errors.As(err, &de))
	s.Equal("recv", de.Op)
}

func (s *ConnTestSuite) TestCloseUnblocksRead() {
	errc := make(chan error, 1)
	go func() {
		_, err := s.C1.Read(make([]byte, 1))
		errc <- err
	}()

	time.Sleep(50 * time.Millisecond)
	s.Require().NoError(s.C1.Close())
	s.ErrorIs(<-errc, transport.ErrConnClosed)
}

func (s *ConnTestSuite) TestCloseUnblocksWrite() {
	input := overflow(s.C1)

	errc := make(chan error, 1)
	go func() {
		_, err := s.C1.Write(input)
		errc <- err
	}()

	time.Sleep(50 * time.Millisecond)
	s.Require().NoError(s.C1.Close())
	s.ErrorIs(<-errc, transport.ErrConnClosed)
}

func (s *ConnTestSuite) TestExpiredDeadlines() {
	s.C1.SetReadDeadLine(s.Clock.Now().Add(-time.Second))
	n, err := s.C1.Read(make([]byte, 1))
	s.ErrorIs(err, transport.ErrDeadLineExceeded)
	s.Zero(n)

	s.C1.SetWriteDeadLine(s.Clock.Now().Add(-time.Second))
	n, err = s.C1.Write(make([]byte, 1))
	s.ErrorIs(err, transport.ErrDeadLineExceeded)
	s.Zero(n)
}

func (s *ConnTestSuite) TestClearedDeadline() {
	s.C1.SetReadDeadLine(s.Clock.Now().Add(-time.Second))
	s.C1.SetReadDeadLine(time.Time{})

	var wg sync.WaitGroup
	defer wg.Wait()
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.NoError(transport.SendAll(s.C2, []byte("x")))
	}()

	got, err := recvN(s.C1, 1, 1)
	s.Require().NoError(err)
	s.Equal("x", string(got))
}

// TestAbortOnDone checks that cancelling a context fails a blocked read
// through the conn's deadline.
func (s *ConnTestSuite) TestAbortOnDone() {
	ctx, cancel := context.WithCancel(context.Background())
	stop := transport.AbortOnDone(ctx, s.C1)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		_, err := transport.Recv(s.C1, make([]byte, 1))
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	s.ErrorIs(<-errc, transport.ErrDeadLineExceeded)
}

func (s *ConnTestSuite) TestAddr() {
	s.Equal(s.C1.LocalAddr(), s.C2.RemoteAddr())
	s.Equal(s.C2.LocalAddr(), s.C1.RemoteAddr())
}

// recvN reads exactly n bytes from c in reads of at most chunk bytes.
func recvN(c transport.Conn, n, chunk int) ([]byte, error) {
	got := make([]byte, 0, n)
	buf := make([]byte, chunk)
	for len(got) < n {
		m, err := transport.Recv(c, buf[:min(chunk, n-len(got))])
		if err != nil {
			return got, err
		}
		got = append(got, buf[:m]...)
	}
	return got, nil
}
