package utils

import (
	"encoding/base64"
	"errors"
	"net/url"
	"strings"
)

// ErrMalformedDataURI is returned for strings that start with "data:" but do
// not follow the RFC 2397 layout.
var ErrMalformedDataURI = errors.New("malformed data URI")

// IsDataURI reports whether s carries an inline payload.
func IsDataURI(s string) bool {
	return len(s) >= 5 && strings.EqualFold(s[:5], "data:")
}

// ParseDataURI decodes an RFC 2397 data URI and returns its media type and payload.
// A missing media type defaults to text/plain as the RFC requires.
func ParseDataURI(s string) (mediaType string, payload []byte, err error) {
	if !IsDataURI(s) {
		return "", nil, ErrMalformedDataURI
	}
	header, data, ok := strings.Cut(s[5:], ",")
	if !ok {
		return "", nil, ErrMalformedDataURI
	}
	isBase64 := false
	if h, found := strings.CutSuffix(header, ";base64"); found {
		header, isBase64 = h, true
	}
	mediaType = header
	if mediaType == "" || strings.HasPrefix(mediaType, ";") {
		mediaType = "text/plain" + mediaType
	}
	if isBase64 {
		payload, err = base64.StdEncoding.DecodeString(data)
		if err != nil {
			// Some producers strip padding.
			payload, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(data, "="))
		}
		if err != nil {
			return "", nil, ErrMalformedDataURI
		}
		return mediaType, payload, nil
	}
	unescaped, err := url.PathUnescape(data)
	if err != nil {
		return "", nil, ErrMalformedDataURI
	}
	return mediaType, []byte(unescaped), nil
}

// EncodeDataURI returns payload as a base64 data URI.
func EncodeDataURI(mediaType string, payload []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(payload)
}
