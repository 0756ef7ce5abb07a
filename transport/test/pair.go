package test

import (
	"time"

	"httpws/transport"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

// Timeout bounds a single conformance test. On expiry both conns are closed
// so that stuck reads and writes return.
const Timeout = 5 * time.Second

// Pair opens two conns connected to each other.
type Pair func(clk clock.Clock) (c1, c2 transport.Conn)

// PairSuite opens a fresh pair before every test and closes it after.
type PairSuite struct {
	suite.Suite

	NewPair Pair

	C1, C2 transport.Conn
	Clock  clock.Clock

	watchdog *time.Timer
}

func (s *PairSuite) SetupTest() {
	s.Require().NotNil(s.NewPair, "NewPair is not set")

	s.Clock = clock.New()
	s.C1, s.C2 = s.NewPair(s.Clock)

	c1, c2 := s.C1, s.C2
	t := s.T()
	s.watchdog = time.AfterFunc(Timeout, func() {
		t.Errorf("test did not finish within %s", Timeout)
		c1.Close()
		c2.Close()
	})
}

func (s *PairSuite) TearDownTest() {
	defer goleak.VerifyNone(s.T())
	s.watchdog.Stop()
	s.NoError(s.C1.Close())
	s.NoError(s.C2.Close())
}

// overflow returns more bytes than c can hand to its peer without a read.
func overflow(c transport.Conn) []byte {
	if bc, ok := c.(transport.BufferedConn); ok {
		return make([]byte, bc.WriteBufSize()+1)
	}
	return make([]byte, 1<<16)
}
