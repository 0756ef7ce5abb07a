package http

import (
	"strings"
	"time"

	"httpws/application/util/rule"
)

// TimeFormat is the layout of the Date header.
const TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

type Field struct{ Name, Value string }

func (f Field) Text() string { return f.Name + ": " + f.Value }

// Headers is an ordered list of fields.
// Names are matched case-insensitively and keep the case they were set with.
type Headers struct {
	fields []Field
}

func NewHeaders(fields ...Field) Headers {
	h := Headers{fields: make([]Field, 0, len(fields))}
	for _, f := range fields {
		h.Add(f.Name, f.Value)
	}
	return h
}

func (h *Headers) index(name string) int {
	for i, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return i
		}
	}
	return -1
}

// Get returns the value of the first field matching name.
func (h *Headers) Get(name string) (string, bool) {
	if i := h.index(name); i >= 0 {
		return h.fields[i].Value, true
	}
	return "", false
}

func (h *Headers) Has(name string) bool { return h.index(name) >= 0 }

// Set replaces the value of the first field matching name, or appends one.
func (h *Headers) Set(name, value string) {
	if i := h.index(name); i >= 0 {
		h.fields[i].Value = value
		return
	}
	h.fields = append(h.fields, Field{Name: name, Value: value})
}

// Add appends a field even if one with the same name exists.
func (h *Headers) Add(name, value string) {
	h.fields = append(h.fields, Field{Name: name, Value: value})
}

// Del removes every field matching name.
func (h *Headers) Del(name string) {
	kept := h.fields[:0]
	for _, f := range h.fields {
		if !strings.EqualFold(f.Name, name) {
			kept = append(kept, f)
		}
	}
	h.fields = kept
}

// Contains reports whether the first field matching name contains substr,
// ignoring ASCII case.
func (h *Headers) Contains(name, substr string) bool {
	v, ok := h.Get(name)
	return ok && rule.ContainsFold(v, substr)
}

func (h *Headers) Fields() []Field {
	fields := make([]Field, len(h.fields))
	copy(fields, h.fields)
	return fields
}

func (h *Headers) Len() int { return len(h.fields) }

func (h *Headers) Clone() Headers {
	return Headers{fields: h.Fields()}
}

func (h *Headers) SetDate(t time.Time) {
	h.Set("Date", t.UTC().Format(TimeFormat))
}

func (h *Headers) SetClose() {
	h.Set("Connection", "Close")
}

func (h *Headers) SetBoundary(token string) {
	h.Set("Content-Type", multipartPrefix+token)
}

func (h *Headers) appendText(b []byte) []byte {
	for _, f := range h.fields {
		b = append(b, f.Name...)
		b = append(b, ": "...)
		b = append(b, f.Value...)
		b = append(b, rule.CRLF...)
	}
	return append(b, rule.CRLF...)
}

// lookupField scans a raw header block for the first line named name.
func lookupField(block []byte, name string) (string, bool) {
	for _, line := range strings.Split(string(block), "\r\n") {
		n, v, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(n), name) {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}
