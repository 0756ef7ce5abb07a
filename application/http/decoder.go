package http

import (
	"bytes"
	"log/slog"
	"strconv"
	"strings"

	"httpws/application/util/rule"

	"github.com/pkg/errors"
)

type DecodeOptions struct {
	// Logger receives warnings about skipped header lines.
	// Nil discards them.
	Logger *slog.Logger
}

func (o DecodeOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

// DecodeRequest parses a start line and header block such as one captured by
// [BodyParser.Header]. The block may or may not end with the blank line.
func DecodeRequest(b []byte, opts DecodeOptions) (*Request, error) {
	line, rest, err := splitStartLine(b)
	if err != nil {
		return nil, err
	}

	parts := strings.FieldsFunc(line, rule.IsWhitespace)
	if len(parts) != 3 {
		return nil, errors.Wrapf(ErrFormat, "request line has %d fields: %q", len(parts), line)
	}
	if !rule.IsValidToken(parts[0]) {
		return nil, errors.Wrapf(ErrFormat, "invalid method %q", parts[0])
	}

	ver, err := ParseVersion([]byte(parts[2]))
	if err != nil {
		return nil, errors.Wrap(ErrFormat, err.Error())
	}

	return &Request{
		RequestLine: RequestLine{Method: parts[0], Target: parts[1], Version: ver},
		Headers:     decodeHeaders(rest, opts.logger()),
	}, nil
}

// DecodeResponse parses a status line and header block.
// Status text may contain spaces.
func DecodeResponse(b []byte, opts DecodeOptions) (*Response, error) {
	line, rest, err := splitStartLine(b)
	if err != nil {
		return nil, err
	}

	parts := strings.FieldsFunc(line, rule.IsWhitespace)
	if len(parts) < 3 {
		return nil, errors.Wrapf(ErrFormat, "status line has %d fields: %q", len(parts), line)
	}

	ver, err := ParseVersion([]byte(parts[0]))
	if err != nil {
		return nil, errors.Wrap(ErrFormat, err.Error())
	}

	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, errors.Wrapf(ErrFormat, "status code is not a number: %q", parts[1])
	}

	return &Response{
		StatusLine: StatusLine{
			Version: ver,
			Code:    code,
			Status:  strings.Join(parts[2:], " "),
		},
		Headers: decodeHeaders(rest, opts.logger()),
	}, nil
}

func splitStartLine(b []byte) (string, []byte, error) {
	line, rest, found := bytes.Cut(b, rule.CRLF)
	if !found {
		return "", nil, errors.Wrap(ErrFormat, "start line is not terminated")
	}
	return string(line), rest, nil
}

func decodeHeaders(b []byte, logger *slog.Logger) Headers {
	var h Headers
	for _, line := range bytes.Split(b, rule.CRLF) {
		if len(line) == 0 {
			continue
		}

		name, value, found := bytes.Cut(line, []byte{':'})
		if !found {
			logger.Warn("skipping header line without colon", "line", string(line))
			continue
		}

		name = bytes.Trim(name, string(rule.OWS))
		if !rule.IsValidToken(string(name)) {
			logger.Warn("skipping header line with invalid name", "line", string(line))
			continue
		}

		h.Add(string(name), string(bytes.Trim(value, string(rule.OWS))))
	}
	return h
}
