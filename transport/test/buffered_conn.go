package test

import (
	"sync"

	"httpws/transport"
)

// BufferedConnTestSuite adds the buffer guarantees of transport.BufferedConn.
type BufferedConnTestSuite struct {
	ConnTestSuite
}

func (s *BufferedConnTestSuite) buffered() (c1, c2 transport.BufferedConn) {
	c1, ok1 := s.C1.(transport.BufferedConn)
	c2, ok2 := s.C2.(transport.BufferedConn)
	s.Require().True(ok1 && ok2, "pair is not buffered")
	return c1, c2
}

func (s *BufferedConnTestSuite) TestSizesAgree() {
	c1, c2 := s.buffered()
	s.Equal(c1.WriteBufSize(), c2.ReadBufSize())
	s.Equal(c2.WriteBufSize(), c1.ReadBufSize())
	s.NotZero(c1.ReadBufSize())
}

// TestFillWithoutReader writes a full buffer in each direction before either
// side reads.
func (s *BufferedConnTestSuite) TestFillWithoutReader() {
	c1, c2 := s.buffered()

	n, err := c1.Write(make([]byte, c1.WriteBufSize()))
	s.Require().NoError(err)
	s.Equal(int(c1.WriteBufSize()), n)

	n, err = c2.Write(make([]byte, c2.WriteBufSize()))
	s.Require().NoError(err)
	s.Equal(int(c2.WriteBufSize()), n)

	got, err := recvN(c2, int(c2.ReadBufSize()), int(c2.ReadBufSize()))
	s.Require().NoError(err)
	s.Len(got, int(c2.ReadBufSize()))

	got, err = recvN(c1, int(c1.ReadBufSize()), int(c1.ReadBufSize()))
	s.Require().NoError(err)
	s.Len(got, int(c1.ReadBufSize()))
}

// TestWriteWaitsForRoom checks that a write larger than the buffer finishes
// once the peer drains it.
func (s *BufferedConnTestSuite) TestWriteWaitsForRoom() {
	c1, c2 := s.buffered()
	data := make([]byte, 3*c1.WriteBufSize()+1)
	for i := range data {
		data[i] = byte(i)
	}

	var wg sync.WaitGroup
	defer wg.Wait()
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.NoError(transport.SendAll(c1, data))
	}()

	got, err := recvN(c2, len(data), 3)
	s.Require().NoError(err)
	s.Equal(data, got)
}

// TestDrainAfterPeerClose checks that bytes buffered before a close can still
// be read, and that the close is reported after them.
func (s *BufferedConnTestSuite) TestDrainAfterPeerClose() {
	c1, c2 := s.buffered()
	size := int(c1.ReadBufSize())

	n, err := c2.Write(make([]byte, size))
	s.Require().NoError(err)
	s.Require().Equal(size, n)

	s.Require().NoError(c2.Close())

	got, err := recvN(c1, size, size)
	s.Require().NoError(err)
	s.Len(got, size)

	n, err = c1.Read(make([]byte, 1))
	s.ErrorIs(err, transport.ErrConnClosed)
	s.Zero(n)
}
