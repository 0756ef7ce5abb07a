package http

import (
	"strconv"

	"httpws/application/util/rule"
)

type RequestLine struct {
	Method  string
	Target  string
	Version Version
}

type Request struct {
	RequestLine
	Headers Headers
}

// NewRequest creates an HTTP/1.1 request without headers.
func NewRequest(method, target string) *Request {
	return &Request{
		RequestLine: RequestLine{Method: method, Target: target, Version: Version11},
	}
}

// Text serializes the start line and header block.
func (r *Request) Text() []byte {
	b := make([]byte, 0, 128)
	b = append(b, r.Method...)
	b = append(b, rule.SP)
	b = append(b, r.Target...)
	b = append(b, rule.SP)
	b = append(b, r.Version.Text()...)
	b = append(b, rule.CRLF...)
	return r.Headers.appendText(b)
}

func (r *Request) Clone() *Request {
	return &Request{RequestLine: r.RequestLine, Headers: r.Headers.Clone()}
}

type StatusLine struct {
	Version Version
	Code    int
	Status  string
}

type Response struct {
	StatusLine
	Headers Headers
}

// NewResponse creates an HTTP/1.1 response with the default reason phrase.
// code MUST be one of the known status codes.
func NewResponse(code int) *Response {
	return NewResponseWithStatus(code, ReasonPhrase(code))
}

func NewResponseWithStatus(code int, status string) *Response {
	return &Response{
		StatusLine: StatusLine{Version: Version11, Code: code, Status: status},
	}
}

func (r *Response) Text() []byte {
	b := make([]byte, 0, 128)
	b = append(b, r.Version.Text()...)
	b = append(b, rule.SP)
	b = strconv.AppendInt(b, int64(r.Code), 10)
	b = append(b, rule.SP)
	b = append(b, r.Status...)
	b = append(b, rule.CRLF...)
	return r.Headers.appendText(b)
}

func (r *Response) Clone() *Response {
	return &Response{StatusLine: r.StatusLine, Headers: r.Headers.Clone()}
}
