package http1

import (
	"bufio"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wirehttp/wirehttp/internal/headerutil"
	"github.com/wirehttp/wirehttp/internal/utils"
)

// state is one state of the Http1ExchangeCodec lifecycle (spec.md §4.3).
type state int

const (
	stateIdle state = iota
	stateOpenRequestBody
	stateWritingRequestBody
	stateReadResponseHeaders
	stateOpenResponseBody
	stateReadingResponseBody
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "IDLE"
	case stateOpenRequestBody:
		return "OPEN_REQUEST_BODY"
	case stateWritingRequestBody:
		return "WRITING_REQUEST_BODY"
	case stateReadResponseHeaders:
		return "READ_RESPONSE_HEADERS"
	case stateOpenResponseBody:
		return "OPEN_RESPONSE_BODY"
	case stateReadingResponseBody:
		return "READING_RESPONSE_BODY"
	case stateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Conn is the minimal surface the codec needs from its transport: buffered
// reads/writes plus a read-deadline knob for the early-close drain. package
// socket's Conn and package carrierimpl wire this against a real net.Conn.
type Conn interface {
	io.Reader
	io.Writer
	SetReadDeadline(time.Time) error
}

// Http1ExchangeCodec drives exactly one HTTP/1.1 request/response exchange
// over a Carrier, enforcing spec.md §4.3's state machine. It is not safe
// for concurrent use: exactly one goroutine drives one codec at a time
// (spec.md §5), though Cancel may be called from any goroutine since it
// only delegates to the carrier.
type Http1ExchangeCodec struct {
	conn    Conn
	br      *bufio.Reader
	bw      *bufio.Writer
	carrier Carrier
	jar     CookieJar

	state   state
	request *Request

	trailers *Trailers
}

// NewCodec constructs a codec over conn, driven through carrier. jar may be
// nil, in which case cookie pushes are discarded.
func NewCodec(conn Conn, carrier Carrier, jar CookieJar) *Http1ExchangeCodec {
	if jar == nil {
		jar = NoCookieJar{}
	}
	return &Http1ExchangeCodec{
		conn:    conn,
		br:      bufio.NewReader(conn),
		bw:      bufio.NewWriter(conn),
		carrier: carrier,
		jar:     jar,
		state:   stateIdle,
	}
}

func (c *Http1ExchangeCodec) setState(s state) { c.state = s }

func (c *Http1ExchangeCodec) requireState(allowed ...state) error {
	for _, s := range allowed {
		if c.state == s {
			return nil
		}
	}
	return newStateError("state: " + c.state.String())
}

func (c *Http1ExchangeCodec) redactedURL() string {
	if c.request == nil || c.request.URL == nil {
		return ""
	}
	return utils.SanitizeURL(c.request.URL.String())
}

func (c *Http1ExchangeCodec) requestURL() *url.URL {
	if c.request == nil {
		return nil
	}
	return c.request.URL
}

// IsResponseComplete reports whether the exchange has reached CLOSED.
func (c *Http1ExchangeCodec) IsResponseComplete() bool {
	return c.state == stateClosed
}

// Cancel aborts the underlying carrier. Safe to call from any goroutine.
func (c *Http1ExchangeCodec) Cancel() {
	c.carrier.Cancel()
}

// WriteRequestHeaders writes the request line and headers and advances the
// codec from IDLE to OPEN_REQUEST_BODY.
func (c *Http1ExchangeCodec) WriteRequestHeaders(req *Request) error {
	if err := c.requireState(stateIdle); err != nil {
		return err
	}
	c.request = req
	if err := writeRequestLine(c.bw, req, c.carrier.Route()); err != nil {
		return newIoError(c.redactedURL(), err)
	}
	if err := writeHeaderBlock(c.bw, req.Header); err != nil {
		return newIoError(c.redactedURL(), err)
	}
	c.setState(stateOpenRequestBody)
	return nil
}

// CreateRequestBody returns a sink for the request body per spec.md §4.4:
// chunked if the request declares Transfer-Encoding: chunked, known-length
// if contentLength >= 0, a programmer error otherwise. Duplex bodies are
// always rejected since HTTP/1 cannot support them.
func (c *Http1ExchangeCodec) CreateRequestBody(req *Request, contentLength int64) (requestBodySink, error) {
	if err := c.requireState(stateOpenRequestBody); err != nil {
		return nil, err
	}
	if req.Duplex {
		return nil, newProtocolError("duplex request bodies are not supported over HTTP/1")
	}

	chunked := false
	if te := req.Header.Get("Transfer-Encoding"); strings.Contains(strings.ToLower(te), "chunked") {
		chunked = true
	}

	c.setState(stateWritingRequestBody)
	switch {
	case chunked:
		return &chunkedSink{codec: c, w: c.bw}, nil
	case contentLength >= 0:
		return &knownLengthSink{codec: c, w: c.bw, remaining: contentLength}, nil
	default:
		return nil, newStateError("createRequestBody: no Content-Length and not chunked")
	}
}

// finishRequestBody is called by a sink's Close() once its framing is
// emitted; it advances the codec to READ_RESPONSE_HEADERS.
func (c *Http1ExchangeCodec) finishRequestBody() error {
	if err := c.requireState(stateWritingRequestBody); err != nil {
		return err
	}
	c.setState(stateReadResponseHeaders)
	return nil
}

// FlushRequest flushes buffered request bytes to the socket without
// half-closing the outbound direction.
func (c *Http1ExchangeCodec) FlushRequest() error {
	if err := c.bw.Flush(); err != nil {
		return newIoError(c.redactedURL(), err)
	}
	return nil
}

// FinishRequest is an alias for FlushRequest: spec.md §4.4 describes both
// as flushing the underlying socket with no half-close.
func (c *Http1ExchangeCodec) FinishRequest() error {
	return c.FlushRequest()
}

// ReadResponseHeaders implements spec.md §4.5's readResponseHeaders: a nil
// *Response with a nil error means "100 Continue, caller decides when to
// resume" (expectContinue was true); any other return is either a final
// response (state becomes OPEN_RESPONSE_BODY) or another interim response
// (state stays/returns to READ_RESPONSE_HEADERS, caller must call again).
func (c *Http1ExchangeCodec) ReadResponseHeaders(expectContinue bool) (*Response, error) {
	if err := c.requireState(stateIdle, stateOpenRequestBody, stateWritingRequestBody, stateReadResponseHeaders); err != nil {
		return nil, err
	}

	hr := newHeadersReader(c.br)
	line, err := hr.readLine()
	if err != nil {
		if err == io.EOF {
			return nil, newIoError(c.redactedURL(), io.ErrUnexpectedEOF)
		}
		return nil, newIoError(c.redactedURL(), err)
	}
	sl, err := parseStatusLine(line)
	if err != nil {
		return nil, err
	}
	header, err := hr.readHeaderBlock()
	if err != nil {
		if err == io.EOF {
			return nil, newIoError(c.redactedURL(), io.ErrUnexpectedEOF)
		}
		return nil, err
	}

	resp := &Response{
		ProtoMajor: sl.Major,
		ProtoMinor: sl.Minor,
		StatusCode: sl.Code,
		Status:     sl.Reason,
		Header:     header,
		Request:    c.request,
	}
	c.jar.SetCookies(c.requestURL(), header)

	if sl.Code == 100 && expectContinue {
		c.setState(stateReadResponseHeaders)
		return nil, nil
	}
	if (sl.Code == 100 && !expectContinue) || (sl.Code >= 102 && sl.Code < 200) {
		c.setState(stateReadResponseHeaders)
		return resp, nil
	}
	c.setState(stateOpenResponseBody)
	return resp, nil
}

// ReportedContentLength implements spec.md §4.5: 0 if the response cannot
// have a body by HTTP semantics, -1 if the body length is unknown in
// advance (chunked), else the declared Content-Length.
func (c *Http1ExchangeCodec) ReportedContentLength(resp *Response) int64 {
	if resp.IsInformational() || resp.StatusCode == 204 || resp.StatusCode == 304 {
		return 0
	}
	if c.request != nil && c.request.Method == http.MethodHead {
		return 0
	}
	if headerutil.IsChunked(resp.Header) {
		return -1
	}
	if v := resp.Header.Get("Content-Length"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			return n
		}
	}
	return -1
}

// OpenResponseBodySource implements spec.md §4.5's openResponseBodySource:
// chooses a fixed-length, chunked, or unknown-length source based on
// ReportedContentLength, and advances to READING_RESPONSE_BODY.
func (c *Http1ExchangeCodec) OpenResponseBodySource(resp *Response) (responseBodySource, error) {
	if err := c.requireState(stateOpenResponseBody); err != nil {
		return nil, err
	}
	c.setState(stateReadingResponseBody)

	length := c.ReportedContentLength(resp)
	switch {
	case length == -1 && headerutil.IsChunked(resp.Header):
		return newChunkedSource(c, newHeadersReader(c.br)), nil
	case length >= 0:
		return newFixedLengthSource(c, c.br, length), nil
	default:
		return newUnknownLengthSource(c, c.br), nil
	}
}

// PeekTrailers implements spec.md §4.5: fails with an I/O error if the
// trailers were truncated, fails with a state error outside
// READING_RESPONSE_BODY/CLOSED, otherwise returns the current trailers
// (nil if the body has not yet completed).
func (c *Http1ExchangeCodec) PeekTrailers() (*Trailers, error) {
	if err := c.requireState(stateReadingResponseBody, stateClosed); err != nil {
		return nil, err
	}
	if c.trailers != nil && c.trailers.Truncated {
		return nil, newIoError(c.redactedURL(), io.ErrUnexpectedEOF)
	}
	return c.trailers, nil
}

// SkipConnectBody drains a CONNECT response's body (which should be empty,
// but defensively handles a non-zero Content-Length) before the tunnel is
// handed off, per spec.md §4.5.
func (c *Http1ExchangeCodec) SkipConnectBody(resp *Response) error {
	length := c.ReportedContentLength(resp)
	if length <= 0 {
		return nil
	}
	src, err := c.OpenResponseBodySource(resp)
	if err != nil {
		return err
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(discardStreamTimeout))
	_, copyErr := io.CopyN(io.Discard, src.(io.Reader), length)
	_ = c.conn.SetReadDeadline(time.Time{})
	closeErr := src.Close()
	if copyErr != nil && copyErr != io.EOF {
		return newIoError(c.redactedURL(), copyErr)
	}
	return closeErr
}
