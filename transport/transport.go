package transport

type Protocol string

const (
	TCP  Protocol = "tcp"
	Pipe Protocol = "pipe"
)

type Addr interface {
	Network() Protocol
	String() string
}
