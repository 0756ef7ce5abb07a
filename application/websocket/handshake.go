package websocket

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"strings"

	"httpws/application/http"

	"github.com/pkg/errors"
)

// Reference: https://datatracker.ietf.org/doc/html/rfc6455#section-1.3
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

var ErrHandshake = errors.New("websocket handshake failed")

// AcceptKey derives Sec-WebSocket-Accept from Sec-WebSocket-Key.
func AcceptKey(key string) string {
	sum := sha1.Sum([]byte(key + acceptGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// NewKey returns a fresh Sec-WebSocket-Key nonce.
func NewKey() (string, error) {
	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", errors.Wrap(err, "generating handshake nonce")
	}
	return base64.StdEncoding.EncodeToString(nonce[:]), nil
}

// NewOpenRequest builds the client's upgrade request.
func NewOpenRequest(target, host, key string) *http.Request {
	req := http.NewRequest("GET", target)
	req.Headers.Set("Upgrade", "websocket")
	req.Headers.Set("Connection", "Upgrade")
	req.Headers.Set("Sec-WebSocket-Key", key)
	req.Headers.Set("Host", host)
	req.Headers.Set("Pragma", "no-cache")
	req.Headers.Set("Cache-Control", "no-cache")
	req.Headers.Set("Accept-Encoding", "gzip, deflate, br")
	req.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	req.Headers.Set("Sec-WebSocket-Version", "13")
	return req
}

// VerifyResponse checks the server's answer to a request sent with key.
func VerifyResponse(res *http.Response, key string) error {
	if res.Code != http.StatusSwitchingProtocols {
		return errors.Wrapf(ErrHandshake, "unexpected status %d %s", res.Code, res.Status)
	}

	if upgrade, _ := res.Headers.Get("Upgrade"); !strings.EqualFold(upgrade, "websocket") {
		return errors.Wrapf(ErrHandshake, "unexpected upgrade %q", upgrade)
	}

	accept, _ := res.Headers.Get("Sec-WebSocket-Accept")
	if accept != AcceptKey(key) {
		return errors.Wrap(ErrHandshake, "accept key mismatch")
	}

	return nil
}

// NewAcceptResponse builds the server's 101 response to an upgrade request.
func NewAcceptResponse(req *http.Request) (*http.Response, error) {
	key, _ := req.Headers.Get("Sec-WebSocket-Key")
	if key == "" {
		return nil, errors.Wrap(ErrHandshake, "missing Sec-WebSocket-Key")
	}

	res := http.NewResponse(http.StatusSwitchingProtocols)
	res.Headers.Set("Upgrade", "websocket")
	res.Headers.Set("Connection", "upgrade")
	res.Headers.Set("Sec-WebSocket-Accept", AcceptKey(key))
	return res, nil
}
