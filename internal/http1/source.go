package http1

import (
	"bufio"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// discardStreamTimeout bounds how long closing a response body early will
// wait to drain the remainder before giving up on connection reuse
// (spec.md §4.5, §6: DISCARD_STREAM_TIMEOUT_MILLIS).
const discardStreamTimeout = 100 * time.Millisecond

// responseBodySource is what openResponseBodySource returns.
type responseBodySource interface {
	Read(p []byte) (int, error)
	Close() error
}

func (c *Http1ExchangeCodec) finishResponseBody(truncated bool) {
	if truncated {
		c.trailers = &Trailers{Truncated: true}
		c.carrier.NoNewExchanges()
	} else if c.trailers == nil {
		c.trailers = &Trailers{Header: make(http.Header)}
	}
	c.setState(stateClosed)
}

// closeEarly implements spec.md §4.5's "closing a response body early":
// drain the remainder within discardStreamTimeout if it's small enough to
// finish in time, otherwise retire the carrier from reuse. It relies on
// the underlying connection's own read deadline rather than a sidecar
// goroutine, the same way the socket's per-operation timeouts are used
// everywhere else in the codec.
func (c *Http1ExchangeCodec) closeEarly(r io.Reader) error {
	_ = c.conn.SetReadDeadline(time.Now().Add(discardStreamTimeout))
	_, err := io.Copy(io.Discard, r)
	_ = c.conn.SetReadDeadline(time.Time{})

	if err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
		c.finishResponseBody(true)
		return newIoError(c.redactedURL(), err)
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		c.finishResponseBody(true)
		return nil
	}
	return nil
}

// fixedLengthSource reads exactly bytesRemaining bytes, then closes.
type fixedLengthSource struct {
	codec     *Http1ExchangeCodec
	br        *bufio.Reader
	remaining int64
	closed    bool
}

func newFixedLengthSource(codec *Http1ExchangeCodec, br *bufio.Reader, length int64) *fixedLengthSource {
	s := &fixedLengthSource{codec: codec, br: br, remaining: length}
	if length == 0 {
		codec.finishResponseBody(false)
	}
	return s
}

func (s *fixedLengthSource) Read(p []byte) (int, error) {
	if s.remaining == 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > s.remaining {
		p = p[:s.remaining]
	}
	n, err := s.br.Read(p)
	s.remaining -= int64(n)
	if err != nil {
		if err == io.EOF && s.remaining > 0 {
			s.codec.finishResponseBody(true)
			return n, newProtocolError("unexpected end of stream reading response body")
		}
		if err != io.EOF {
			return n, newIoError(s.codec.redactedURL(), err)
		}
	}
	if s.remaining == 0 {
		s.codec.finishResponseBody(false)
		return n, io.EOF
	}
	return n, nil
}

func (s *fixedLengthSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.remaining == 0 {
		return nil
	}
	return s.codec.closeEarly(s)
}

// chunkedSource reads "<hex>[;ext]\r\n<bytes>\r\n" chunks, ending with a
// zero-sized chunk followed by trailer headers (spec.md §4.5).
type chunkedSource struct {
	codec     *Http1ExchangeCodec
	hr        *headersReader
	remaining int64
	sawFirst  bool
	finished  bool
	closed    bool
}

func newChunkedSource(codec *Http1ExchangeCodec, hr *headersReader) *chunkedSource {
	return &chunkedSource{codec: codec, hr: hr}
}

func (s *chunkedSource) readChunkSize() error {
	line, err := s.hr.readLine()
	if err != nil {
		return newProtocolErrorf("reading chunk size", err)
	}
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	size, err := strconv.ParseInt(line, 16, 64)
	if err != nil || size < 0 {
		return newProtocolError("malformed chunk size: " + line)
	}
	s.remaining = size
	return nil
}

func (s *chunkedSource) Read(p []byte) (int, error) {
	if s.finished {
		return 0, io.EOF
	}
	if s.remaining == 0 {
		if s.sawFirst {
			// consume the CRLF that followed the previous chunk's bytes
			if _, err := s.hr.readLine(); err != nil {
				s.codec.finishResponseBody(true)
				return 0, newProtocolErrorf("reading chunk terminator", err)
			}
		}
		s.sawFirst = true
		if err := s.readChunkSize(); err != nil {
			s.codec.finishResponseBody(true)
			return 0, err
		}
		if s.remaining == 0 {
			trailer, err := s.hr.readHeaderBlock()
			if err != nil {
				s.codec.finishResponseBody(true)
				return 0, err
			}
			s.finished = true
			s.codec.trailers = &Trailers{Header: trailer}
			s.codec.setState(stateClosed)
			if len(trailer) > 0 {
				s.codec.jar.SetCookies(s.codec.requestURL(), trailer)
			}
			return 0, io.EOF
		}
	}
	if int64(len(p)) > s.remaining {
		p = p[:s.remaining]
	}
	n, err := s.hr.br.Read(p)
	s.remaining -= int64(n)
	if err != nil {
		if err == io.EOF {
			s.codec.finishResponseBody(true)
			return n, newProtocolError("unexpected end of stream reading chunked body")
		}
		return n, newIoError(s.codec.redactedURL(), err)
	}
	return n, nil
}

func (s *chunkedSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.finished {
		return nil
	}
	return s.codec.closeEarly(s)
}

// unknownLengthSource reads until the underlying stream's EOF, has no
// trailers, and always retires the carrier since framing was ambiguous
// (spec.md §4.5).
type unknownLengthSource struct {
	codec  *Http1ExchangeCodec
	br     *bufio.Reader
	closed bool
	done   bool
}

func newUnknownLengthSource(codec *Http1ExchangeCodec, br *bufio.Reader) *unknownLengthSource {
	codec.carrier.NoNewExchanges()
	return &unknownLengthSource{codec: codec, br: br}
}

func (s *unknownLengthSource) Read(p []byte) (int, error) {
	if s.done {
		return 0, io.EOF
	}
	n, err := s.br.Read(p)
	if err == io.EOF {
		s.done = true
		s.codec.finishResponseBody(false)
		return n, io.EOF
	}
	if err != nil {
		return n, newIoError(s.codec.redactedURL(), err)
	}
	return n, nil
}

func (s *unknownLengthSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.done {
		return nil
	}
	return s.codec.closeEarly(s)
}
