// Package websocket implements the WebSocket framing protocol and the opening
// handshake on top of an upgraded HTTP/1.1 connection.
//
// Reference:
//
// - https://datatracker.ietf.org/doc/html/rfc6455
package websocket
