package http

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"httpws/application/util/rule"
	"httpws/lib/bytequeue"

	"github.com/pkg/errors"
)

// Mode is how the body of the current message is delimited.
type Mode int

const (
	// ModeInvalid means no header has been parsed for the current message.
	ModeInvalid Mode = iota
	ModeNormal
	ModeChunked
	ModeBoundary
	ModeWebSocket
)

func (m Mode) String() string {
	switch m {
	case ModeInvalid:
		return "invalid"
	case ModeNormal:
		return "normal"
	case ModeChunked:
		return "chunked"
	case ModeBoundary:
		return "boundary"
	case ModeWebSocket:
		return "websocket"
	}
	return "mode(" + strconv.Itoa(int(m)) + ")"
}

const (
	multipartPrefix = "multipart/form-data; boundary="

	chunkSizeUnset = -1
)

type ParserOptions struct {
	Logger *slog.Logger

	// MaxHeaderLength fails header parsing with ErrFormat once this many
	// bytes are queued without a complete header block. 0 means no limit.
	MaxHeaderLength int
}

// BodyParser incrementally parses HTTP/1.1 messages from pushed bytes.
//
// Every operation either completes or returns [ErrNeedMoreData], leaving
// the state intact so the same call can be retried after the next Push.
// A parser belongs to one connection and is not safe for concurrent use.
type BodyParser struct {
	q      *bytequeue.Queue
	logger *slog.Logger
	opts   ParserOptions

	mode          Mode
	header        []byte
	contentLength int
	chunkSize     int
	boundary      string

	// scanned is how far the header terminator search got.
	scanned int
}

func NewBodyParser(opts ParserOptions) *BodyParser {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &BodyParser{
		q:         bytequeue.New(1024),
		logger:    logger,
		opts:      opts,
		chunkSize: chunkSizeUnset,
	}
}

// Push queues received bytes. b is copied.
func (p *BodyParser) Push(b []byte) { p.q.Push(b) }

// Buffered returns the number of queued bytes not consumed yet.
func (p *BodyParser) Buffered() int { return p.q.Len() }

// TakeBuffered removes and returns every queued byte.
// It is used to hand leftover bytes to another protocol after an upgrade.
func (p *BodyParser) TakeBuffered() []byte {
	b, _ := p.q.Read(p.q.Len())
	return b
}

func (p *BodyParser) Mode() Mode { return p.mode }

// Header returns the captured start line and header lines of the current
// message, each terminated by CRLF. It is nil before ParseHeader succeeds.
func (p *BodyParser) Header() []byte { return p.header }

func (p *BodyParser) ContentLength() int {
	p.mustBeIn(ModeNormal, "ContentLength")
	return p.contentLength
}

func (p *BodyParser) Boundary() string {
	p.mustBeIn(ModeBoundary, "Boundary")
	return p.boundary
}

func (p *BodyParser) mustBeIn(m Mode, op string) {
	if p.mode != m {
		panic(fmt.Sprintf("http: %s called in %s mode, want %s", op, p.mode, m))
	}
}

// Reset clears the per-message state. Queued bytes are kept so that a
// pipelined message can be parsed next.
func (p *BodyParser) Reset() {
	p.mode = ModeInvalid
	p.header = nil
	p.contentLength = 0
	p.chunkSize = chunkSizeUnset
	p.boundary = ""
	p.scanned = 0
}

// ParseHeader looks for a complete header block and classifies how the body
// is delimited. Headers are checked in this order, first match wins:
// Upgrade containing websocket, Transfer-Encoding containing chunked,
// a multipart Content-Type, Content-Length. Without any of them the message
// has no body.
func (p *BodyParser) ParseHeader() error {
	p.mustBeIn(ModeInvalid, "ParseHeader")

	pos := p.q.Index(rule.HeaderEnd, p.scanned)
	if pos < 0 {
		if limit := p.opts.MaxHeaderLength; limit > 0 && p.q.Len() > limit {
			p.q.Consume(p.q.Len())
			p.Reset()
			return errors.Wrapf(ErrFormat, "header exceeds %d bytes", limit)
		}
		// The terminator may straddle the next push.
		p.scanned = max(0, p.q.Len()-len(rule.HeaderEnd)+1)
		return ErrNeedMoreData
	}
	p.scanned = 0

	// Keep the CRLF of the last header line so the block splits into lines.
	block, _ := p.q.Peek(pos + len(rule.CRLF))
	block = bytes.Clone(block)

	mode, err := p.classify(block)
	p.q.Consume(pos + len(rule.HeaderEnd))
	if err != nil {
		p.Reset()
		return err
	}

	p.mode = mode
	p.header = block
	p.logger.Debug("parsed header", "mode", mode, "length", len(block))

	return nil
}

func (p *BodyParser) classify(block []byte) (Mode, error) {
	if v, ok := lookupField(block, "Upgrade"); ok && rule.ContainsFold(v, "websocket") {
		return ModeWebSocket, nil
	}

	if v, ok := lookupField(block, "Transfer-Encoding"); ok && rule.ContainsFold(v, "chunked") {
		p.chunkSize = chunkSizeUnset
		return ModeChunked, nil
	}

	if v, ok := lookupField(block, "Content-Type"); ok {
		if i := rule.IndexFold([]byte(v), []byte(multipartPrefix)); i >= 0 {
			token := strings.TrimSpace(v[i+len(multipartPrefix):])
			token = string(rule.Unquote([]byte(token)))
			if token == "" {
				return ModeInvalid, errors.Wrap(ErrFormat, "empty multipart boundary")
			}
			p.boundary = token
			return ModeBoundary, nil
		}
	}

	if v, ok := lookupField(block, "Content-Length"); ok {
		if !rule.IsNumber(v) {
			return ModeInvalid, errors.Wrapf(ErrFormat, "invalid content length %q", v)
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return ModeInvalid, errors.Wrapf(ErrFormat, "invalid content length %q", v)
		}
		p.contentLength = n
		return ModeNormal, nil
	}

	p.contentLength = 0
	return ModeNormal, nil
}

// Content returns the whole fixed-length body and completes the message.
// A message without body returns io.EOF right away.
func (p *BodyParser) Content() ([]byte, error) {
	p.mustBeIn(ModeNormal, "Content")

	if p.contentLength == 0 {
		p.Reset()
		return nil, io.EOF
	}

	b, ok := p.q.Read(p.contentLength)
	if !ok {
		return nil, ErrNeedMoreData
	}

	p.Reset()
	return b, nil
}

// Chunk returns the data of the next chunk.
// After the last chunk it returns io.EOF and completes the message.
func (p *BodyParser) Chunk() ([]byte, error) {
	p.mustBeIn(ModeChunked, "Chunk")

	if p.chunkSize == chunkSizeUnset {
		size, err := p.readChunkSize()
		if err != nil {
			return nil, err
		}
		p.chunkSize = size
	}

	if p.chunkSize == 0 {
		if err := p.skipTrailers(); err != nil {
			return nil, err
		}
		p.Reset()
		return nil, io.EOF
	}

	b, ok := p.q.Peek(p.chunkSize + len(rule.CRLF))
	if !ok {
		return nil, ErrNeedMoreData
	}
	if !bytes.HasSuffix(b, rule.CRLF) {
		p.Reset()
		return nil, errors.Wrap(ErrFormat, "chunk data is not followed by CRLF")
	}

	data, _ := p.q.Read(p.chunkSize)
	p.q.Consume(len(rule.CRLF))
	p.chunkSize = chunkSizeUnset

	return data, nil
}

func (p *BodyParser) readChunkSize() (int, error) {
	idx := p.q.Index(rule.CRLF, 0)
	if idx < 0 {
		return 0, ErrNeedMoreData
	}

	line, _ := p.q.Peek(idx)
	// Chunk extensions are ignored.
	sizeText, _, _ := strings.Cut(string(line), ";")
	sizeText = strings.Trim(sizeText, string(rule.OWS))

	if sizeText == "" {
		p.Reset()
		return 0, errors.Wrap(ErrFormat, "empty chunk size")
	}
	if !rule.IsHexNumber(sizeText) {
		p.Reset()
		return 0, errors.Wrapf(ErrFormat, "invalid chunk size %q", sizeText)
	}

	size, err := strconv.ParseInt(sizeText, 16, 32)
	if err != nil {
		p.Reset()
		return 0, errors.Wrapf(ErrFormat, "invalid chunk size %q", sizeText)
	}

	p.q.Consume(idx + len(rule.CRLF))
	return int(size), nil
}

// skipTrailers consumes the blank line after the last chunk,
// dropping any trailer fields before it.
func (p *BodyParser) skipTrailers() error {
	b, ok := p.q.Peek(len(rule.CRLF))
	if !ok {
		return ErrNeedMoreData
	}
	if bytes.Equal(b, rule.CRLF) {
		p.q.Consume(len(rule.CRLF))
		return nil
	}

	idx := p.q.Index(rule.HeaderEnd, 0)
	if idx < 0 {
		return ErrNeedMoreData
	}
	p.logger.Debug("dropping chunked trailers", "length", idx)
	p.q.Consume(idx + len(rule.HeaderEnd))
	return nil
}

// Part returns the payload of the next multipart part.
// After the close delimiter it returns io.EOF and completes the message.
func (p *BodyParser) Part() ([]byte, error) {
	p.mustBeIn(ModeBoundary, "Part")

	delim := []byte("--" + p.boundary)

	first := p.q.Index(delim, 0)
	if first < 0 {
		return nil, ErrNeedMoreData
	}

	// What follows the delimiter tells a part from the close delimiter.
	after := first + len(delim)
	suffix, ok := p.q.Peek(after + 2)
	if !ok {
		return nil, ErrNeedMoreData
	}
	suffix = suffix[after:]

	switch {
	case bytes.Equal(suffix, []byte("--")):
		if _, ok := p.q.Peek(after + 2 + len(rule.CRLF)); !ok {
			return nil, ErrNeedMoreData
		}
		p.q.Consume(after + 2 + len(rule.CRLF))
		p.Reset()
		return nil, io.EOF
	case !bytes.Equal(suffix, rule.CRLF):
		p.Reset()
		return nil, errors.Wrap(ErrFormat, "boundary delimiter is not followed by CRLF")
	}

	next := p.q.Index(delim, after)
	if next < 0 {
		return nil, ErrNeedMoreData
	}

	begin := after + len(rule.CRLF)
	end := next - len(rule.CRLF)
	if end < begin {
		p.Reset()
		return nil, errors.Wrap(ErrFormat, "boundary delimiters overlap")
	}
	if b, _ := p.q.Peek(next); !bytes.HasSuffix(b, rule.CRLF) {
		p.Reset()
		return nil, errors.Wrap(ErrFormat, "boundary delimiter is not preceded by CRLF")
	}

	// Bytes before the first delimiter are a preamble and dropped.
	p.q.Consume(begin)
	data, _ := p.q.Read(end - begin)
	p.q.Consume(len(rule.CRLF))

	return data, nil
}

// Next returns the next body record of the current message, whatever its
// mode. last reports that the message is complete and the parser has been
// reset for the next one.
func (p *BodyParser) Next() (data []byte, last bool, err error) {
	switch p.mode {
	case ModeNormal:
		data, err = p.Content()
		if errors.Is(err, io.EOF) {
			return nil, true, nil
		}
		return data, err == nil, err
	case ModeChunked:
		data, err = p.Chunk()
	case ModeBoundary:
		data, err = p.Part()
	default:
		panic(fmt.Sprintf("http: Next called in %s mode", p.mode))
	}

	if errors.Is(err, io.EOF) {
		return nil, true, nil
	}
	return data, false, err
}
