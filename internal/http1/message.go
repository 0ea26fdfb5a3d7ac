package http1

import (
	"net/http"
	"net/url"
)

// Route describes how a request reaches its destination: direct to the
// origin, or through an HTTP proxy. The codec only consults it to decide
// between origin-form and absolute-form request lines (spec.md §4.4); all
// other proxy behavior (CONNECT tunneling, proxy auth) is out of scope.
type Route struct {
	URL        *url.URL
	ViaProxy   bool
	ProxyIsTLS bool
}

// Request is the codec's view of an outbound HTTP/1.1 request: just enough
// to write a request line and headers and decide how to frame the body.
// Higher-level concerns (redirects, retries, cookies) live in package
// client, not here.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header

	// Duplex marks a request body that streams written bytes and consumed
	// response bytes concurrently. HTTP/1.1 cannot support this; codec
	// construction of such a body always fails (spec.md §4.4).
	Duplex bool
}

// Trailers is the outcome of reading a response body to completion: either
// a (possibly empty) trailer header set, or a marker that the body was
// truncated before trailers could be read, per spec.md §4.5.
type Trailers struct {
	Header    http.Header
	Truncated bool
}

// Response is the codec's view of a parsed HTTP/1.1 response, covering
// both interim (1xx) and final responses.
type Response struct {
	ProtoMajor int
	ProtoMinor int
	StatusCode int
	Status     string // reason phrase, may be empty
	Header     http.Header

	Request *Request

	trailers *Trailers
}

// IsInformational reports whether the response is a 1xx interim response.
func (r *Response) IsInformational() bool {
	return r.StatusCode >= 100 && r.StatusCode < 200
}

// CookieJar receives header values to extract cookies from, parallel to how
// spec.md's cookie integration hands both normal headers and trailers to
// the configured jar. The zero value (nil) is never passed directly;
// NoCookieJar{} is used instead so codec callers never need a nil check.
type CookieJar interface {
	SetCookies(u *url.URL, header http.Header)
}

// NoCookieJar is a CookieJar that discards everything handed to it. It is
// the default used when no jar is configured.
type NoCookieJar struct{}

func (NoCookieJar) SetCookies(*url.URL, http.Header) {}
