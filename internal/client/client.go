// Package client ties socket, carrierimpl, http1, and taskrunner together
// into the one entry point an exchange needs: Do dials a connection, drives
// an Http1ExchangeCodec over it as a scheduled Task, and returns once
// headers are available, leaving the body to be streamed by the caller
// (spec.md §4.8 / SPEC_FULL.md §4.8).
package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/wirehttp/wirehttp/internal/carrierimpl"
	"github.com/wirehttp/wirehttp/internal/headerutil"
	"github.com/wirehttp/wirehttp/internal/http1"
	"github.com/wirehttp/wirehttp/internal/singleton"
	"github.com/wirehttp/wirehttp/internal/socket"
	"github.com/wirehttp/wirehttp/internal/taskrunner"
	"github.com/wirehttp/wirehttp/internal/utils"
)

// Request is the caller-facing request shape; it translates to an
// http1.Request once a carrier is established.
type Request struct {
	Method  string
	URL     *url.URL
	Header  http.Header
	Body    io.Reader
	// ContentLength, if >= 0, frames the body as known-length; if < 0 and
	// Chunked is true, the body is framed as chunked; if < 0 and Chunked
	// is false and Body is non-nil, Do buffers Body to compute a length
	// (spec.md's "caller must pre-buffer or choose chunked" programmer
	// contract, applied here so callers never hit that programmer error).
	ContentLength int64
	Chunked       bool

	// UserAgent, if set and Header carries no User-Agent of its own, is
	// sent as the request's User-Agent header.
	UserAgent string

	Jar     http1.CookieJar
	Runner  *taskrunner.Runner
	Timeout time.Duration
}

// Response is returned once headers (and any preceding 1xx responses) have
// been read; Body streams lazily and must be closed by the caller.
type Response struct {
	StatusCode    int
	Status        string
	ProtoMinor    int
	Header        http.Header
	Body          io.ReadCloser
	Informational []*Response
	// Reused reports whether this exchange ran over a connection carried
	// over from a previous exchange to the same address, rather than one
	// freshly dialed for it.
	Reused bool
}

type exchangeResult struct {
	resp *Response
	err  error
}

// pooledConn is one idle, still-reusable connection kept for a later
// exchange to the same address, grounded on the teacher's connection-pool
// bookkeeping referenced in http1.Carrier's doc comment: a carrier that
// TrackFailure/NoNewExchanges hasn't retired, and whose most recent
// exchange ended keep-alive, can carry another exchange without redialing.
type pooledConn struct {
	conn    *socket.Conn
	carrier *carrierimpl.Carrier
}

var (
	poolMu sync.Mutex
	pool   = map[string][]*pooledConn{}
)

// takePooled pops the most recently returned still-reusable connection for
// addr, discarding any that NoNewExchanges/Cancel have retired in the
// meantime.
func takePooled(addr string) *pooledConn {
	poolMu.Lock()
	defer poolMu.Unlock()
	conns := pool[addr]
	for len(conns) > 0 {
		pc := conns[len(conns)-1]
		conns = conns[:len(conns)-1]
		pool[addr] = conns
		if pc.carrier.Reusable() {
			return pc
		}
		pc.conn.Close()
	}
	return nil
}

func putPooled(addr string, pc *pooledConn) {
	poolMu.Lock()
	defer poolMu.Unlock()
	pool[addr] = append(pool[addr], pc)
}

// pooledBody wraps a response body source so that closing it, once the
// underlying codec has finished draining/verifying the body, returns the
// connection to the pool instead of closing it outright when the exchange
// qualifies for reuse.
type pooledBody struct {
	src       responseBodySource
	addr      string
	pc        *pooledConn
	keepAlive bool
	returned  bool
}

type responseBodySource interface {
	Read(p []byte) (int, error)
	Close() error
}

func (b *pooledBody) Read(p []byte) (int, error) { return b.src.Read(p) }

func (b *pooledBody) Close() error {
	err := b.src.Close()
	if b.returned {
		return err
	}
	b.returned = true
	if err == nil && b.keepAlive && b.pc.carrier.Reusable() {
		putPooled(b.addr, b.pc)
	} else {
		b.pc.conn.Close()
	}
	return err
}

// Do performs one HTTP/1.1 exchange and returns once its response headers
// are available.
func Do(ctx context.Context, req *Request) (*Response, error) {
	if req.URL == nil {
		return nil, fmt.Errorf("client: request URL is required")
	}
	runner := req.Runner
	if runner == nil {
		runner = singleton.Runner()
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	host := req.URL.Hostname()
	port := req.URL.Port()
	scheme := req.URL.Scheme
	if port == "" {
		if scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	addr := host + ":" + port

	reused := false
	var conn *socket.Conn
	var carrier *carrierimpl.Carrier
	if pc := takePooled(addr); pc != nil {
		conn, carrier = pc.conn, pc.carrier
		reused = true
	} else {
		var dialOpts []socket.DialOption
		dialOpts = append(dialOpts, socket.WithTimeout(timeout))
		if scheme == "https" {
			dialOpts = append(dialOpts, socket.WithTLS(&tls.Config{}))
		}
		c, err := socket.Dial(ctx, "tcp", addr, dialOpts...)
		if err != nil {
			return nil, fmt.Errorf("client: dial %s: %w", utils.SanitizeURL(req.URL.String()), err)
		}
		conn = c
		carrier = carrierimpl.New(conn, http1.Route{URL: req.URL})
	}

	codec := http1.NewCodec(conn, carrier, req.Jar)

	queue := runner.NewQueue("exchange:" + addr)
	resultCh := make(chan exchangeResult, 1)

	schedErr := queue.Execute("exchange", 0, func() {
		resp, err := runExchange(codec, req)
		resultCh <- exchangeResult{resp: resp, err: err}
	})
	if schedErr != nil {
		conn.Close()
		return nil, schedErr
	}

	select {
	case res := <-resultCh:
		if res.err != nil {
			carrier.TrackFailure(res.err)
			conn.Close()
			return nil, res.err
		}
		resp := res.resp
		resp.Reused = reused
		if bs, ok := resp.Body.(responseBodySource); ok {
			resp.Body = &pooledBody{
				src:       bs,
				addr:      addr,
				pc:        &pooledConn{conn: conn, carrier: carrier},
				keepAlive: headerutil.KeepAlive(resp.ProtoMinor, req.Header, resp.Header),
			}
		} else {
			conn.Close()
		}
		return resp, nil
	case <-ctx.Done():
		codec.Cancel()
		return nil, ctx.Err()
	}
}

func runExchange(codec *http1.Http1ExchangeCodec, req *Request) (*Response, error) {
	hreq := &http1.Request{
		Method: req.Method,
		URL:    req.URL,
		Header: req.Header,
	}
	if hreq.Header == nil {
		hreq.Header = make(http.Header)
	}
	if req.UserAgent != "" && hreq.Header.Get("User-Agent") == "" {
		hreq.Header.Set("User-Agent", req.UserAgent)
	}
	if hreq.Method == "" {
		hreq.Method = http.MethodGet
	}
	if hreq.Header.Get("Host") == "" {
		hreq.Header.Set("Host", req.URL.Host)
	}
	if req.Body != nil && req.ContentLength < 0 && req.Chunked {
		hreq.Header.Set("Transfer-Encoding", "chunked")
	} else if req.Body != nil && req.ContentLength >= 0 {
		hreq.Header.Set("Content-Length", strconv.FormatInt(req.ContentLength, 10))
	}

	if err := codec.WriteRequestHeaders(hreq); err != nil {
		return nil, err
	}

	if req.Body != nil {
		length := req.ContentLength
		if length < 0 && !req.Chunked {
			buf, err := io.ReadAll(req.Body)
			if err != nil {
				return nil, fmt.Errorf("client: buffering request body: %w", err)
			}
			req.Body = nil
			length = int64(len(buf))
			req.Body = newBytesReader(buf)
		}
		sink, err := codec.CreateRequestBody(hreq, length)
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(sink, req.Body); err != nil {
			return nil, err
		}
		if err := sink.Close(); err != nil {
			return nil, err
		}
	} else {
		sink, err := codec.CreateRequestBody(hreq, 0)
		if err != nil {
			return nil, err
		}
		if err := sink.Close(); err != nil {
			return nil, err
		}
	}

	if err := codec.FinishRequest(); err != nil {
		return nil, err
	}

	var informational []*Response
	for {
		hresp, err := codec.ReadResponseHeaders(false)
		if err != nil {
			return nil, err
		}
		if hresp == nil {
			continue
		}
		if hresp.IsInformational() {
			informational = append(informational, toResponse(hresp, nil))
			continue
		}
		src, err := codec.OpenResponseBodySource(hresp)
		if err != nil {
			return nil, err
		}
		resp := toResponse(hresp, bodyCloser{reader: src})
		resp.Informational = informational
		return resp, nil
	}
}

func toResponse(hresp *http1.Response, body io.ReadCloser) *Response {
	return &Response{
		StatusCode: hresp.StatusCode,
		Status:     hresp.Status,
		ProtoMinor: hresp.ProtoMinor,
		Header:     hresp.Header,
		Body:       body,
	}
}

// bodyCloser adapts an http1 response body source (Read+Close) to
// io.ReadCloser without assuming its Close signature matches exactly.
type bodyCloser struct {
	reader interface {
		Read(p []byte) (int, error)
		Close() error
	}
}

func (b bodyCloser) Read(p []byte) (int, error) { return b.reader.Read(p) }
func (b bodyCloser) Close() error               { return b.reader.Close() }

type bytesReader struct {
	b []byte
	i int
}

func newBytesReader(b []byte) *bytesReader { return &bytesReader{b: b} }

func (r *bytesReader) Read(p []byte) (int, error) {
	if r.i >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.i:])
	r.i += n
	return n, nil
}
