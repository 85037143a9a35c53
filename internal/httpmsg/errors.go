package httpmsg

import "errors"

var (
	errNoHostHeader     = errors.New("httpmsg: no Host header found")
	errInvalidPort      = errors.New("httpmsg: invalid port number in Host header")
	errMissingMethod    = errors.New("httpmsg: missing HTTP method")
	errMalformedRequest = errors.New("httpmsg: malformed request line")
)
