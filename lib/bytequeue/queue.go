// Package bytequeue holds received bytes until a parser consumes them.
package bytequeue

import (
	"bytes"
)

// Queue is an ordered, growable sequence of bytes.
// Consumed bytes are skipped by offset and dropped on the next Push.
// The zero value is an empty queue ready to use.
type Queue struct {
	buf []byte
	off int
}

func New(capacity int) *Queue {
	return &Queue{buf: make([]byte, 0, capacity)}
}

// Push appends a copy of b.
func (q *Queue) Push(b []byte) {
	if len(b) == 0 {
		return
	}
	if q.off > 0 && q.off == len(q.buf) {
		q.buf, q.off = q.buf[:0], 0
	} else if q.off > 0 && len(q.buf)+len(b) > cap(q.buf) {
		// Compact before growing.
		n := copy(q.buf, q.buf[q.off:])
		q.buf, q.off = q.buf[:n], 0
	}
	q.buf = append(q.buf, b...)
}

func (q *Queue) Len() int { return len(q.buf) - q.off }

// Bytes returns the unconsumed bytes.
// The slice is only valid until the next Push or Consume.
func (q *Queue) Bytes() []byte { return q.buf[q.off:] }

// Peek returns the first n bytes without consuming them.
// It returns false if fewer than n bytes are queued.
func (q *Queue) Peek(n int) ([]byte, bool) {
	if n < 0 || n > q.Len() {
		return nil, false
	}
	return q.buf[q.off : q.off+n], true
}

// Index returns the position of sep in the unconsumed bytes at or after from,
// or -1 if it is absent.
func (q *Queue) Index(sep []byte, from int) int {
	if from < 0 || from > q.Len() {
		return -1
	}
	i := bytes.Index(q.Bytes()[from:], sep)
	if i < 0 {
		return -1
	}
	return from + i
}

// Read copies and consumes the first n bytes.
func (q *Queue) Read(n int) ([]byte, bool) {
	b, ok := q.Peek(n)
	if !ok {
		return nil, false
	}
	out := bytes.Clone(b)
	q.off += n
	return out, true
}

// Consume drops up to n bytes and reports how many were dropped.
func (q *Queue) Consume(n int) int {
	n = max(0, min(n, q.Len()))
	q.off += n
	return n
}

func (q *Queue) Reset() {
	q.buf, q.off = q.buf[:0], 0
}
