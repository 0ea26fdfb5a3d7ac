// Package headerutil centralizes the handful of raw-header-grammar
// decisions the http1 codec and the wirehttp CLI need, delegating the
// actual token/structured-field parsing to vfaronov/httpheader rather than
// hand-rolling comma-splitting and case folding.
package headerutil

import (
	"net/http"
	"strings"

	"github.com/vfaronov/httpheader"
)

// ConnectionTokens returns the case-folded tokens named by every
// Connection header present, resolving spec.md §4.5's open question about
// the exact Connection grammar: RFC 7230 §6.1 defines it as a
// comma-separated #token list, which is exactly what httpheader.Connection
// parses.
func ConnectionTokens(header http.Header) []string {
	return httpheader.Connection(header)
}

// IsHopByHop reports whether name is either one of the always-hop-by-hop
// header fields or named by a Connection header token, per RFC 7230 §6.1.
func IsHopByHop(name string, header http.Header) bool {
	switch http.CanonicalHeaderKey(name) {
	case "Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
		"Te", "Trailer", "Transfer-Encoding", "Upgrade":
		return true
	}
	for _, tok := range ConnectionTokens(header) {
		if strings.EqualFold(tok, name) {
			return true
		}
	}
	return false
}

// IsChunked reports whether header declares Transfer-Encoding: chunked as
// (per RFC 7230 §3.3.1) the final, and therefore operative, coding.
func IsChunked(header http.Header) bool {
	te := header.Get("Transfer-Encoding")
	if te == "" {
		return false
	}
	parts := strings.Split(te, ",")
	last := strings.TrimSpace(parts[len(parts)-1])
	return strings.EqualFold(last, "chunked")
}

// KeepAlive decides, given the declared protocol minor version and any
// Connection tokens on request and response, whether the connection may be
// reused for another exchange. HTTP/1.1 defaults to persistent unless
// "close" is named; HTTP/1.0 defaults to non-persistent unless
// "keep-alive" is named.
func KeepAlive(minorVersion int, reqHeader, respHeader http.Header) bool {
	closed := func(h http.Header) bool {
		for _, tok := range ConnectionTokens(h) {
			if strings.EqualFold(tok, "close") {
				return true
			}
		}
		return false
	}
	if closed(reqHeader) || closed(respHeader) {
		return false
	}
	if minorVersion >= 1 {
		return true
	}
	keepAlive := func(h http.Header) bool {
		for _, tok := range ConnectionTokens(h) {
			if strings.EqualFold(tok, "keep-alive") {
				return true
			}
		}
		return false
	}
	return keepAlive(reqHeader) || keepAlive(respHeader)
}

// BuildRange formats a single-range byte Range header value via
// httpheader.SetRange, leaving End unset (an open-ended range through the
// end of the representation) when end < 0.
func BuildRange(start, end int64) string {
	header := make(http.Header)
	httpheader.SetRange(header, []httpheader.ByteRange{{Start: start, End: end}})
	return header.Get("Range")
}

// ParseContentRange parses a "bytes <start>-<end>/<size>" Content-Range
// value as sent back by a server honoring a range request, via
// httpheader.ParseContentRange; size is -1 if the server reported it as
// "*" (unknown).
func ParseContentRange(value string) (start, end, size int64, ok bool) {
	header := http.Header{"Content-Range": {value}}
	cr := httpheader.ParseContentRange(header)
	if cr.Unit != "bytes" {
		return 0, 0, 0, false
	}
	return cr.Start, cr.End, cr.Length, true
}
