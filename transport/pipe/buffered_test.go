package pipe

import (
	"testing"

	"httpws/transport"
	"httpws/transport/test"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestBufferedPipeConformance(t *testing.T) {
	s := new(test.BufferedConnTestSuite)
	s.NewPair = func(clk clock.Clock) (transport.Conn, transport.Conn) {
		return NewBufferedPair("A", "B", clk, BufferedOptions{Size: 20})
	}
	suite.Run(t, s)
}

func TestNonBlockingBufferedPipeConformance(t *testing.T) {
	s := new(test.NonBlockingConnTestSuite)
	s.NewPair = func(clk clock.Clock) (transport.Conn, transport.Conn) {
		return NewBufferedPair("A", "B", clk, BufferedOptions{Size: 16, NonBlocking: true})
	}
	suite.Run(t, s)
}

func TestNonBlockingBufferedPipe(t *testing.T) {
	c1, c2 := NewBufferedPair("A", "B", clock.New(), BufferedOptions{Size: 4, NonBlocking: true})
	defer c1.Close()
	defer c2.Close()

	buf := make([]byte, 8)
	n, err := c2.Read(buf)
	assert.ErrorIs(t, err, transport.ErrWouldBlock)
	assert.Zero(t, n)

	n, err = c1.Write([]byte("abcdef"))
	assert.ErrorIs(t, err, transport.ErrWouldBlock)
	assert.Equal(t, 4, n)

	n, err = c2.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(buf[:n]))

	// transport helpers retry until the rest gets through.
	done := make(chan error, 1)
	go func() { done <- transport.SendAll(c1, []byte("ef")) }()

	got := []byte{}
	for len(got) < 2 {
		n, err := transport.Recv(c2, buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	require.NoError(t, <-done)
	assert.Equal(t, "ef", string(got))
}
