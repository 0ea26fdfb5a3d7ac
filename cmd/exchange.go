package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wirehttp/wirehttp/internal/clipboardutil"
	"github.com/wirehttp/wirehttp/internal/client"
	"github.com/wirehttp/wirehttp/internal/config"
	"github.com/wirehttp/wirehttp/internal/headerutil"
	"github.com/wirehttp/wirehttp/internal/http1"
	"github.com/wirehttp/wirehttp/internal/sniff"
	"github.com/wirehttp/wirehttp/internal/store"
	"github.com/wirehttp/wirehttp/internal/utils"
)

var (
	exchangeMethod  string
	exchangeHeaders []string
	exchangeData    string
	exchangeChunked bool
	exchangeRange   string
	exchangeOutput  string
	exchangeCurl    bool
)

var exchangeCmd = &cobra.Command{
	Use:   "exchange <url>",
	Short: "perform one HTTP/1.1 exchange",
	Args:  cobra.ExactArgs(1),
	RunE:  runExchange,
}

func init() {
	rootCmd.AddCommand(exchangeCmd)
	exchangeCmd.Flags().StringVarP(&exchangeMethod, "method", "X", http.MethodGet, "HTTP method")
	exchangeCmd.Flags().StringArrayVarP(&exchangeHeaders, "header", "H", nil, "request header, repeatable (\"Name: value\")")
	exchangeCmd.Flags().StringVar(&exchangeData, "data", "", "request body")
	exchangeCmd.Flags().BoolVar(&exchangeChunked, "chunked", false, "force Transfer-Encoding: chunked for the request body")
	exchangeCmd.Flags().StringVar(&exchangeRange, "range", "", "byte range, e.g. 0-1023")
	exchangeCmd.Flags().StringVarP(&exchangeOutput, "output", "o", "", "write body to a file instead of stdout")
	exchangeCmd.Flags().BoolVar(&exchangeCurl, "curl", false, "copy an equivalent curl command to the clipboard")
}

func runExchange(cmd *cobra.Command, args []string) error {
	u, err := url.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	header := make(http.Header)
	for _, h := range exchangeHeaders {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("malformed header %q, want \"Name: value\"", h)
		}
		header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	if exchangeRange != "" {
		start, end, err := parseRangeFlag(exchangeRange)
		if err != nil {
			return err
		}
		header.Set("Range", headerutil.BuildRange(start, end))
	}

	settings, _ := config.Load()

	req := &client.Request{
		Method:    strings.ToUpper(exchangeMethod),
		URL:       u,
		Header:    header,
		Chunked:   exchangeChunked,
		Timeout:   settings.DefaultTimeout,
		UserAgent: settings.UserAgent,
	}
	if exchangeData != "" {
		req.Body = strings.NewReader(exchangeData)
		req.ContentLength = int64(len(exchangeData))
		if exchangeChunked {
			req.ContentLength = -1
		}
	}

	if exchangeCurl {
		line := clipboardutil.BuildCurl(req.Method, u, header, exchangeData)
		if err := clipboardutil.Copy(line); err != nil {
			utils.Debug("failed to copy curl command to clipboard: %v", err)
		} else {
			fmt.Fprintln(os.Stderr, "curl command copied to clipboard")
		}
	}

	start := time.Now()
	resp, err := doWithRetries(cmd.Context(), req, settings.MaxRetries)
	rec := store.ExchangeRecord{
		ID:        uuid.New().String(),
		Method:    req.Method,
		URL:       utils.SanitizeURL(u.String()),
		RequestAt: start,
	}
	if err != nil {
		rec.Err = err.Error()
		recordExchange(rec)
		return err
	}
	defer resp.Body.Close()

	fmt.Printf("HTTP/1.%d %d %s\n", resp.ProtoMinor, resp.StatusCode, resp.Status)
	for name, values := range resp.Header {
		for _, v := range values {
			fmt.Printf("%s: %s\n", name, v)
		}
	}
	fmt.Println()

	bytesIn, err := writeBody(resp, exchangeOutput)
	rec.StatusCode = resp.StatusCode
	rec.DurationMS = time.Since(start).Milliseconds()
	rec.BytesOut = req.ContentLength
	rec.BytesIn = bytesIn
	rec.Reused = resp.Reused
	if err != nil {
		rec.Err = err.Error()
	}
	recordExchange(rec)
	return err
}

// doWithRetries wraps client.Do in a bounded exponential-backoff retry loop
// around transient I/O errors, grounded on the teacher's worker retry loop
// (internal/engine/concurrent/worker.go) — the one piece of higher-level
// retry logic the core client deliberately omits.
func doWithRetries(ctx context.Context, req *client.Request, maxRetries int) (*client.Response, error) {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	var lastErr error
	backoff := 200 * time.Millisecond
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
			if req.Body != nil {
				return nil, lastErr // a consumed request body cannot be safely retried
			}
		}
		resp, err := client.Do(ctx, req)
		if err == nil {
			return resp, nil
		}
		if http1.IsProtocolError(err) || http1.IsStateError(err) {
			return nil, err // malformed framing or codec misuse: a retry cannot help
		}
		lastErr = err
	}
	return nil, lastErr
}

func writeBody(resp *client.Response, outPath string) (int64, error) {
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		return io.Copy(f, resp.Body)
	}

	head := make([]byte, sniff.HeadSize)
	n, _ := io.ReadFull(resp.Body, head)
	head = head[:n]
	if sniff.LooksBinary(head) {
		fmt.Fprintln(os.Stderr, "(binary response body omitted; use -o to save it)")
		n2, _ := io.Copy(io.Discard, resp.Body)
		return int64(n) + n2, nil
	}
	written, err := os.Stdout.Write(head)
	n2, copyErr := io.Copy(os.Stdout, resp.Body)
	total := int64(written) + n2
	if err != nil {
		return total, err
	}
	return total, copyErr
}

func recordExchange(rec store.ExchangeRecord) {
	dir, err := config.Dir()
	if err != nil {
		utils.Debug("failed to resolve config dir for history: %v", err)
		return
	}
	s, err := store.Open(dir + "/history.db")
	if err != nil {
		utils.Debug("failed to open history store: %v", err)
		return
	}
	defer s.Close()
	if err := s.Save(rec); err != nil {
		utils.Debug("failed to save exchange record: %v", err)
	}
}

func parseRangeFlag(raw string) (start, end int64, err error) {
	parts := strings.SplitN(raw, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed --range %q, want start-end", raw)
	}
	start, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed --range start: %w", err)
	}
	if parts[1] == "" {
		return start, -1, nil
	}
	end, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed --range end: %w", err)
	}
	return start, end, nil
}
