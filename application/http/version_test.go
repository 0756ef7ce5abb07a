package http

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseVersion(t *testing.T) {
	testcases := []struct {
		desc     string
		input    string
		expected Version
		wantErr  bool
	}{
		{desc: "1.1", input: "HTTP/1.1", expected: Version{1, 1}},
		{desc: "1.0", input: "HTTP/1.0", expected: Version{1, 0}},
		{desc: "no prefix", input: "HTTX/1.1", wantErr: true},
		{desc: "no dot", input: "HTTP/11", wantErr: true},
		{desc: "not a number", input: "HTTP/a.1", wantErr: true},
	}
	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			v, err := ParseVersion([]byte(tc.input))
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, v)
			assert.Equal(t, tc.input, v.String())
		})
	}
}
