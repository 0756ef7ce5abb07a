package http

import (
	"strings"

	"github.com/google/uuid"
)

// NewBoundary returns a random multipart boundary token.
func NewBoundary() string {
	return "httpws" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
