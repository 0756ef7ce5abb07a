// Package http implements the HTTP/1.1 message layer used by the server and
// client actors: header model, start-line codec and an incremental body parser
// supporting fixed-length, chunked, multipart and upgraded connections.
//
// Reference:
//
// - https://datatracker.ietf.org/doc/html/rfc9110
//
// - https://datatracker.ietf.org/doc/html/rfc9112
//
// - https://datatracker.ietf.org/doc/html/rfc2046#section-5.1
package http
