package http

import "fmt"

const (
	StatusSwitchingProtocols  = 101
	StatusOK                  = 200
	StatusMovedTemporarily    = 302
	StatusBadRequest          = 400
	StatusUnauthorized        = 401
	StatusForbidden           = 403
	StatusNotFound            = 404
	StatusInternalServerError = 500
	StatusServerUnavailable   = 503
)

var reasonPhrases = map[int]string{
	StatusSwitchingProtocols:  "Switching Protocols",
	StatusOK:                  "OK",
	StatusMovedTemporarily:    "Moved Temporarily",
	StatusBadRequest:          "Bad Request",
	StatusUnauthorized:        "Unauthorized",
	StatusForbidden:           "Forbidden",
	StatusNotFound:            "Not Found",
	StatusInternalServerError: "Internal Server Error",
	StatusServerUnavailable:   "Server Unavailable",
}

// LookupReasonPhrase returns the default reason phrase of code.
func LookupReasonPhrase(code int) (string, bool) {
	phrase, ok := reasonPhrases[code]
	return phrase, ok
}

// ReasonPhrase is LookupReasonPhrase for codes known to be in the table.
// It panics on any other code.
func ReasonPhrase(code int) string {
	phrase, ok := reasonPhrases[code]
	if !ok {
		panic(fmt.Sprintf("http: no reason phrase for status code %d", code))
	}
	return phrase
}
