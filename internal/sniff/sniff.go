// Package sniff detects a response body's actual content type from its
// leading bytes, used by `wirehttp exchange` to decide whether to print a
// body to the terminal or warn that it looks binary, the same content-type
// guessing concern the teacher applied to downloaded files before saving
// them.
package sniff

import (
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
)

// Result is what callers need to decide how to present a body.
type Result struct {
	MIME      string
	Extension string
	Matched   bool
}

// HeadSize is how many of the body's leading bytes are read for Detect: filetype
// only needs the first 261 bytes to disambiguate any supported format.
const HeadSize = 261

// Detect inspects the first bytes of a body and reports its guessed type.
// An empty/too-short head is not an error: Matched is simply false.
func Detect(head []byte) Result {
	kind, err := filetype.Match(head)
	if err != nil || kind == types.Unknown {
		return Result{}
	}
	return Result{MIME: kind.MIME.Value, Extension: kind.Extension, Matched: true}
}

// LooksBinary is a coarse heuristic for "don't dump this to a terminal":
// true whenever filetype positively identifies a non-text kind, or the
// head contains a NUL byte (filetype has no text/plain matcher of its
// own, since arbitrary text has no magic bytes to match on).
func LooksBinary(head []byte) bool {
	if r := Detect(head); r.Matched {
		return true
	}
	for _, b := range head {
		if b == 0 {
			return true
		}
	}
	return false
}
