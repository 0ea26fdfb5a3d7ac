package http1

import (
	"bufio"
	"fmt"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
)

// maxHeaderBytes bounds the accumulated byte count a single header-block
// read may consume, guarding against an unbounded or malicious peer that
// never sends the terminating blank line.
const maxHeaderBytes = 256 * 1024

// headersReader accumulates status/header line bytes under maxHeaderBytes
// and hands back an http.Header via readHeaderBlock, matching spec.md §4.5's
// "header reader that enforces a bounded accumulated header byte count".
type headersReader struct {
	br    *bufio.Reader
	total int
}

func newHeadersReader(br *bufio.Reader) *headersReader {
	return &headersReader{br: br}
}

// readLine reads one CRLF- or LF-terminated line, stripped of its
// terminator, tracking it against the accumulated byte budget.
func (h *headersReader) readLine() (string, error) {
	line, err := h.br.ReadString('\n')
	if err != nil {
		return "", err
	}
	h.total += len(line)
	if h.total > maxHeaderBytes {
		return "", newProtocolError("header block exceeds maximum size")
	}
	line = strings.TrimRight(line, "\r\n")
	return line, nil
}

// readHeaderBlock reads header lines until a blank line, folding
// continuation lines per RFC 7230's obsolete line-folding allowance is
// deliberately NOT supported (folding was removed in RFC 7230 and no
// teacher/pack dependency requires it).
func (h *headersReader) readHeaderBlock() (http.Header, error) {
	header := make(http.Header)
	for {
		line, err := h.readLine()
		if err != nil {
			return nil, err
		}
		if line == "" {
			return header, nil
		}
		name, value, ok := splitHeaderLine(line)
		if !ok {
			return nil, newProtocolError("malformed header line: " + line)
		}
		header.Add(name, value)
	}
}

func splitHeaderLine(line string) (name, value string, ok bool) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return "", "", false
	}
	name = strings.TrimSpace(line[:idx])
	if name == "" {
		return "", "", false
	}
	value = strings.TrimSpace(line[idx+1:])
	return name, value, true
}

// statusLine is the parsed form of an HTTP/1.x status line.
type statusLine struct {
	Major, Minor int
	Code         int
	Reason       string
}

// parseStatusLine parses "HTTP/<major>.<minor> <code> <reason>". The
// reason phrase may be empty; a malformed line is a protocol error.
func parseStatusLine(line string) (statusLine, error) {
	var sl statusLine
	const prefix = "HTTP/"
	if !strings.HasPrefix(line, prefix) {
		return sl, newProtocolError("expected status line, got: " + line)
	}
	rest := line[len(prefix):]
	dot := strings.IndexByte(rest, '.')
	sp1 := strings.IndexByte(rest, ' ')
	if dot < 0 || sp1 < 0 || dot >= sp1 {
		return sl, newProtocolError("malformed status line: " + line)
	}
	major, err := strconv.Atoi(rest[:dot])
	if err != nil {
		return sl, newProtocolErrorf("malformed HTTP major version", err)
	}
	minor, err := strconv.Atoi(rest[dot+1 : sp1])
	if err != nil {
		return sl, newProtocolErrorf("malformed HTTP minor version", err)
	}
	remainder := rest[sp1+1:]
	code := remainder
	reason := ""
	if sp2 := strings.IndexByte(remainder, ' '); sp2 >= 0 {
		code = remainder[:sp2]
		reason = remainder[sp2+1:]
	}
	codeNum, err := strconv.Atoi(code)
	if err != nil || codeNum < 100 || codeNum > 999 {
		return sl, newProtocolError("malformed status code: " + code)
	}
	sl.Major, sl.Minor, sl.Code, sl.Reason = major, minor, codeNum, reason
	return sl, nil
}

// writeRequestLine writes "<method> <target> HTTP/1.1\r\n" to w, choosing
// origin-form or absolute-form per route.
func writeRequestLine(w *bufio.Writer, req *Request, route Route) error {
	target := req.URL.RequestURI()
	if route.ViaProxy {
		target = req.URL.String()
	}
	_, err := fmt.Fprintf(w, "%s %s HTTP/1.1\r\n", req.Method, target)
	return err
}

// writeHeaderBlock writes each header as "Name: Value\r\n" verbatim,
// followed by the terminating blank line. Header name/value bytes are not
// validated (spec.md §4.4): that is the caller's concern.
func writeHeaderBlock(w *bufio.Writer, header http.Header) error {
	for name, values := range header {
		canon := textproto.CanonicalMIMEHeaderKey(name)
		for _, v := range values {
			if _, err := fmt.Fprintf(w, "%s: %s\r\n", canon, v); err != nil {
				return err
			}
		}
	}
	_, err := w.WriteString("\r\n")
	return err
}
