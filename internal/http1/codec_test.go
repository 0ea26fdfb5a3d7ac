package http1

import (
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"
)

// pipeConn adapts a net.Pipe() half to the http1.Conn interface used by the
// codec (Read/Write/SetReadDeadline).
type pipeConn struct {
	net.Conn
}

func (p pipeConn) SetReadDeadline(t time.Time) error { return p.Conn.SetReadDeadline(t) }

type fakeCarrier struct {
	route          Route
	noNewExchanges bool
	failures       []error
	cancelled      bool
}

func (f *fakeCarrier) Route() Route           { return f.route }
func (f *fakeCarrier) TrackFailure(err error) { f.failures = append(f.failures, err) }
func (f *fakeCarrier) NoNewExchanges()        { f.noNewExchanges = true }
func (f *fakeCarrier) Cancel()                { f.cancelled = true }

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q): %v", raw, err)
	}
	return u
}

// TestCodec_KnownLengthRoundTrip writes a request with a known-length body
// over a pipe, has a goroutine play the server side by hand, and checks
// the client-side codec reads back a final response and its fixed-length
// body correctly.
func TestCodec_KnownLengthRoundTrip(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	serverDone := make(chan error, 1)
	go func() {
		buf := make([]byte, 4096)
		n, err := serverSide.Read(buf)
		if err != nil {
			serverDone <- err
			return
		}
		got := string(buf[:n])
		if !strings.Contains(got, "POST /widgets HTTP/1.1") {
			serverDone <- errExpectation("missing request line: " + got)
			return
		}
		if !strings.Contains(got, "hello") {
			serverDone <- errExpectation("missing body: " + got)
			return
		}
		_, err = serverSide.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nworld"))
		serverDone <- err
	}()

	carrier := &fakeCarrier{route: Route{URL: mustURL(t, "http://example.test/widgets")}}
	codec := NewCodec(pipeConn{clientSide}, carrier, nil)

	req := &Request{
		Method: "POST",
		URL:    mustURL(t, "http://example.test/widgets"),
		Header: http.Header{"Host": []string{"example.test"}},
	}
	if err := codec.WriteRequestHeaders(req); err != nil {
		t.Fatalf("WriteRequestHeaders: %v", err)
	}
	sink, err := codec.CreateRequestBody(req, 5)
	if err != nil {
		t.Fatalf("CreateRequestBody: %v", err)
	}
	if _, err := sink.Write([]byte("hello")); err != nil {
		t.Fatalf("sink.Write: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("sink.Close: %v", err)
	}
	if err := codec.FinishRequest(); err != nil {
		t.Fatalf("FinishRequest: %v", err)
	}

	resp, err := codec.ReadResponseHeaders(false)
	if err != nil {
		t.Fatalf("ReadResponseHeaders: %v", err)
	}
	// net.Pipe is unbuffered: the server's response Write only completes
	// once the client has read it, so the server result is checked here.
	if err := <-serverDone; err != nil {
		t.Fatalf("server side: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if got := codec.ReportedContentLength(resp); got != 5 {
		t.Fatalf("ReportedContentLength = %d, want 5", got)
	}

	src, err := codec.OpenResponseBodySource(resp)
	if err != nil {
		t.Fatalf("OpenResponseBodySource: %v", err)
	}
	body, err := io.ReadAll(src.(io.Reader))
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if string(body) != "world" {
		t.Fatalf("body = %q, want %q", body, "world")
	}
	if err := src.Close(); err != nil {
		t.Fatalf("src.Close: %v", err)
	}
	if !codec.IsResponseComplete() {
		t.Fatalf("expected codec to report response complete")
	}
}

// TestCodec_ChunkedResponseWithTrailers exercises the chunked-source path,
// including trailer propagation.
func TestCodec_ChunkedResponseWithTrailers(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	go func() {
		buf := make([]byte, 4096)
		serverSide.Read(buf)
		serverSide.Write([]byte(
			"HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
				"5\r\nhello\r\n0\r\nX-Checksum: abc\r\n\r\n"))
	}()

	carrier := &fakeCarrier{route: Route{URL: mustURL(t, "http://example.test/")}}
	codec := NewCodec(pipeConn{clientSide}, carrier, nil)

	req := &Request{Method: "GET", URL: mustURL(t, "http://example.test/"), Header: make(http.Header)}
	if err := codec.WriteRequestHeaders(req); err != nil {
		t.Fatalf("WriteRequestHeaders: %v", err)
	}
	if _, err := codec.CreateRequestBody(req, 0); err != nil {
		t.Fatalf("CreateRequestBody: %v", err)
	}
	if err := codec.FinishRequest(); err != nil {
		t.Fatalf("FinishRequest: %v", err)
	}

	resp, err := codec.ReadResponseHeaders(false)
	if err != nil {
		t.Fatalf("ReadResponseHeaders: %v", err)
	}
	if got := codec.ReportedContentLength(resp); got != -1 {
		t.Fatalf("ReportedContentLength = %d, want -1 for chunked", got)
	}

	src, err := codec.OpenResponseBodySource(resp)
	if err != nil {
		t.Fatalf("OpenResponseBodySource: %v", err)
	}
	body, err := io.ReadAll(src.(io.Reader))
	if err != nil {
		t.Fatalf("reading chunked body: %v", err)
	}
	if string(body) != "hello" {
		t.Fatalf("body = %q, want %q", body, "hello")
	}

	trailers, err := codec.PeekTrailers()
	if err != nil {
		t.Fatalf("PeekTrailers: %v", err)
	}
	if trailers == nil || trailers.Truncated {
		t.Fatalf("expected non-truncated trailers, got %+v", trailers)
	}
	if got := trailers.Header.Get("X-Checksum"); got != "abc" {
		t.Fatalf("trailer X-Checksum = %q, want %q", got, "abc")
	}
}

// TestCodec_MalformedStatusLineIsProtocolError ensures a garbage status
// line fails with ProtocolError rather than a generic error.
func TestCodec_MalformedStatusLineIsProtocolError(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	go func() {
		buf := make([]byte, 4096)
		serverSide.Read(buf)
		serverSide.Write([]byte("NOT A STATUS LINE\r\n\r\n"))
	}()

	carrier := &fakeCarrier{route: Route{URL: mustURL(t, "http://example.test/")}}
	codec := NewCodec(pipeConn{clientSide}, carrier, nil)

	req := &Request{Method: "GET", URL: mustURL(t, "http://example.test/"), Header: make(http.Header)}
	_ = codec.WriteRequestHeaders(req)
	_, _ = codec.CreateRequestBody(req, 0)
	_ = codec.FinishRequest()

	_, err := codec.ReadResponseHeaders(false)
	if err == nil {
		t.Fatal("expected an error for malformed status line")
	}
	if !IsProtocolError(err) {
		t.Fatalf("expected ProtocolError, got %v (%T)", err, err)
	}
}

// TestCodec_OperationInWrongStateIsStateError checks the lifecycle guard.
func TestCodec_OperationInWrongStateIsStateError(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()
	go io.Copy(io.Discard, serverSide)

	carrier := &fakeCarrier{route: Route{URL: mustURL(t, "http://example.test/")}}
	codec := NewCodec(pipeConn{clientSide}, carrier, nil)

	req := &Request{Method: "GET", URL: mustURL(t, "http://example.test/"), Header: make(http.Header)}
	// CreateRequestBody before WriteRequestHeaders: wrong state.
	_, err := codec.CreateRequestBody(req, 0)
	if err == nil {
		t.Fatal("expected a state error")
	}
	if !IsStateError(err) {
		t.Fatalf("expected StateError, got %v (%T)", err, err)
	}
}

// TestCodec_ExpectContinueInterimIsNil drives the Expect: 100-continue
// contract: with expectContinue true, a 100 Continue response hands back a
// nil *Response and nil error so the caller knows to resume sending the
// body, rather than surfacing 100 as an ordinary response.
func TestCodec_ExpectContinueInterimIsNil(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	go func() {
		buf := make([]byte, 4096)
		serverSide.Read(buf)
		serverSide.Write([]byte("HTTP/1.1 100 Continue\r\n\r\n"))
		serverSide.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"))
	}()

	carrier := &fakeCarrier{route: Route{URL: mustURL(t, "http://example.test/")}}
	codec := NewCodec(pipeConn{clientSide}, carrier, nil)

	req := &Request{
		Method: "PUT",
		URL:    mustURL(t, "http://example.test/"),
		Header: http.Header{"Expect": []string{"100-continue"}},
	}
	if err := codec.WriteRequestHeaders(req); err != nil {
		t.Fatalf("WriteRequestHeaders: %v", err)
	}
	if _, err := codec.CreateRequestBody(req, 0); err != nil {
		t.Fatalf("CreateRequestBody: %v", err)
	}
	if err := codec.FinishRequest(); err != nil {
		t.Fatalf("FinishRequest: %v", err)
	}

	resp, err := codec.ReadResponseHeaders(true)
	if err != nil {
		t.Fatalf("ReadResponseHeaders(expectContinue): %v", err)
	}
	if resp != nil {
		t.Fatalf("expected a nil *Response for 100 Continue with expectContinue=true, got %+v", resp)
	}

	resp, err = codec.ReadResponseHeaders(false)
	if err != nil {
		t.Fatalf("ReadResponseHeaders final: %v", err)
	}
	if resp == nil || resp.StatusCode != 200 {
		t.Fatalf("expected the final 200 response, got %+v", resp)
	}
}

// TestCodec_EarlyHintsThenFinalResponse exercises 103 Early Hints sequencing:
// an informational response must be returned (not swallowed) and the codec
// must stay in a state where a further ReadResponseHeaders call reaches the
// final response.
func TestCodec_EarlyHintsThenFinalResponse(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	go func() {
		buf := make([]byte, 4096)
		serverSide.Read(buf)
		serverSide.Write([]byte("HTTP/1.1 103 Early Hints\r\nLink: </style.css>; rel=preload\r\n\r\n"))
		serverSide.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"))
	}()

	carrier := &fakeCarrier{route: Route{URL: mustURL(t, "http://example.test/")}}
	codec := NewCodec(pipeConn{clientSide}, carrier, nil)

	req := &Request{Method: "GET", URL: mustURL(t, "http://example.test/"), Header: make(http.Header)}
	if err := codec.WriteRequestHeaders(req); err != nil {
		t.Fatalf("WriteRequestHeaders: %v", err)
	}
	if _, err := codec.CreateRequestBody(req, 0); err != nil {
		t.Fatalf("CreateRequestBody: %v", err)
	}
	if err := codec.FinishRequest(); err != nil {
		t.Fatalf("FinishRequest: %v", err)
	}

	hints, err := codec.ReadResponseHeaders(false)
	if err != nil {
		t.Fatalf("ReadResponseHeaders (103): %v", err)
	}
	if hints == nil || !hints.IsInformational() || hints.StatusCode != 103 {
		t.Fatalf("expected a 103 informational response, got %+v", hints)
	}
	if got := hints.Header.Get("Link"); got == "" {
		t.Fatalf("expected the 103 response's Link header to survive, got %q", got)
	}

	final, err := codec.ReadResponseHeaders(false)
	if err != nil {
		t.Fatalf("ReadResponseHeaders (final): %v", err)
	}
	if final == nil || final.IsInformational() || final.StatusCode != 200 {
		t.Fatalf("expected the final 200 response, got %+v", final)
	}
}

// TestCodec_TruncatedFixedLengthBodyIsProtocolError exercises spec.md
// §4.5's truncation contract: a server that declares Content-Length but
// closes before delivering that many bytes must surface a ProtocolError,
// retire the carrier from reuse, and leave TRUNCATED trailers behind.
func TestCodec_TruncatedFixedLengthBodyIsProtocolError(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()

	go func() {
		buf := make([]byte, 4096)
		serverSide.Read(buf)
		serverSide.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\nshort"))
		serverSide.Close() // closes with only 5 of the declared 10 bytes sent
	}()

	carrier := &fakeCarrier{route: Route{URL: mustURL(t, "http://example.test/")}}
	codec := NewCodec(pipeConn{clientSide}, carrier, nil)

	req := &Request{Method: "GET", URL: mustURL(t, "http://example.test/"), Header: make(http.Header)}
	if err := codec.WriteRequestHeaders(req); err != nil {
		t.Fatalf("WriteRequestHeaders: %v", err)
	}
	if _, err := codec.CreateRequestBody(req, 0); err != nil {
		t.Fatalf("CreateRequestBody: %v", err)
	}
	if err := codec.FinishRequest(); err != nil {
		t.Fatalf("FinishRequest: %v", err)
	}

	resp, err := codec.ReadResponseHeaders(false)
	if err != nil {
		t.Fatalf("ReadResponseHeaders: %v", err)
	}

	src, err := codec.OpenResponseBodySource(resp)
	if err != nil {
		t.Fatalf("OpenResponseBodySource: %v", err)
	}
	_, err = io.ReadAll(src.(io.Reader))
	if err == nil {
		t.Fatal("expected an error reading a truncated fixed-length body")
	}
	if !IsProtocolError(err) {
		t.Fatalf("expected ProtocolError, got %v (%T)", err, err)
	}
	if carrier.noNewExchanges != true {
		t.Fatalf("expected the carrier to be retired from reuse after a truncated body")
	}

	// PeekTrailers surfaces truncation as an I/O error (unexpected EOF)
	// rather than handing back Truncated trailers silently.
	if _, err := codec.PeekTrailers(); err == nil {
		t.Fatal("expected PeekTrailers to report the truncation")
	} else if !IsIoError(err) {
		t.Fatalf("expected IoError from PeekTrailers after truncation, got %v (%T)", err, err)
	}
}

type errExpectation string

func (e errExpectation) Error() string { return string(e) }
