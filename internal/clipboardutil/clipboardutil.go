// Package clipboardutil copies a reproducible curl command line for the
// CLI's --curl flag onto the system clipboard via atotto/clipboard.
package clipboardutil

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/atotto/clipboard"
)

// BuildCurl renders method, url, header, and body into a single-line curl
// invocation, quoting each argument for a POSIX shell.
func BuildCurl(method string, u *url.URL, header http.Header, body string) string {
	var b strings.Builder
	b.WriteString("curl")
	if method != "" && method != http.MethodGet {
		fmt.Fprintf(&b, " -X %s", shellQuote(method))
	}
	names := make([]string, 0, len(header))
	for name := range header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, v := range header[name] {
			fmt.Fprintf(&b, " -H %s", shellQuote(name+": "+v))
		}
	}
	if body != "" {
		fmt.Fprintf(&b, " --data %s", shellQuote(body))
	}
	fmt.Fprintf(&b, " %s", shellQuote(u.String()))
	return b.String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Copy writes s to the system clipboard.
func Copy(s string) error {
	return clipboard.WriteAll(s)
}
