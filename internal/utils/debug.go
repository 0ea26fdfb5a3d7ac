package utils

import (
	"log"
	"os"
)

var debugEnabled = os.Getenv("WIREHTTP_DEBUG") != ""

// Debug logs a formatted message to stderr when WIREHTTP_DEBUG is set.
// It is a no-op otherwise, so call sites can log liberally without
// paying for formatting on the hot path.
func Debug(format string, args ...interface{}) {
	if !debugEnabled {
		return
	}
	log.Printf("[debug] "+format, args...)
}
