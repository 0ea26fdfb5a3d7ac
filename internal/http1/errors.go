package http1

import "errors"

// ErrProtocol, ErrIO, and ErrState are the sentinels behind ProtocolError,
// IoError, and StateError, so callers can test the error kind with
// errors.Is without depending on the concrete wrapper types, following the
// teacher's FatalError/IsFatal pattern.
var (
	ErrProtocol = errors.New("http1: protocol error")
	ErrIO       = errors.New("http1: i/o error")
	ErrState    = errors.New("http1: invalid state")
)

// ProtocolError reports malformed HTTP/1.1 framing: a bad status line, a
// bad chunk size, unexpected end-of-stream mid-body, or a request body that
// requires duplex support HTTP/1 cannot offer.
type ProtocolError struct {
	Msg string
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return "http1: protocol error: " + e.Msg + ": " + e.Err.Error()
	}
	return "http1: protocol error: " + e.Msg
}

func (e *ProtocolError) Unwrap() error { return ErrProtocol }

func newProtocolError(msg string) error {
	return &ProtocolError{Msg: msg}
}

func newProtocolErrorf(msg string, err error) error {
	return &ProtocolError{Msg: msg, Err: err}
}

// IsProtocolError reports whether err is (or wraps) a ProtocolError.
func IsProtocolError(err error) bool { return errors.Is(err, ErrProtocol) }

// IoError wraps a transport failure encountered while reading or writing
// the underlying socket. The request's redacted URL is carried for
// diagnostics, matching spec.md §4.5's "carries the redacted request URL
// for context" requirement on end-of-stream during header reads.
type IoError struct {
	URL string
	Err error
}

func (e *IoError) Error() string {
	if e.URL != "" {
		return "http1: i/o error for " + e.URL + ": " + e.Err.Error()
	}
	return "http1: i/o error: " + e.Err.Error()
}

func (e *IoError) Unwrap() error { return e.Err }

func newIoError(url string, err error) error {
	return &IoError{URL: url, Err: err}
}

// IsIoError reports whether err is (or wraps) an IoError.
func IsIoError(err error) bool {
	var e *IoError
	return errors.As(err, &e)
}

// StateError signals programmer misuse: an operation invoked while the
// codec is in a state that does not support it. (A trailer read after
// truncation is reported as an IoError by PeekTrailers, not as a
// StateError.) It is never expected to occur outside a bug and is not
// meant to be recovered from.
type StateError struct {
	Msg string
}

func (e *StateError) Error() string { return "http1: state: " + e.Msg }

func (e *StateError) Unwrap() error { return ErrState }

func newStateError(msg string) error {
	return &StateError{Msg: msg}
}

// IsStateError reports whether err is (or wraps) a StateError.
func IsStateError(err error) bool { return errors.Is(err, ErrState) }
