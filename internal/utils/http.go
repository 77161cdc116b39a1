package utils

import (
	"mime"
)

// HasContentType reports whether the Content-Type header value matches
// the provided media type (e.g. "application/json", "application/xml").
//
// It parses the value using mime.ParseMediaType so it correctly handles
// parameters like boundary and charset and is RFC-compliant.
func HasContentType(contentType, expected string) bool {
	if contentType == "" {
		return false
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	return mediaType == expected
}
