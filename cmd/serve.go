package cmd

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wirehttp/wirehttp/internal/client"
	"github.com/wirehttp/wirehttp/internal/config"
	"github.com/wirehttp/wirehttp/internal/events"
	"github.com/wirehttp/wirehttp/internal/singleton"
	"github.com/wirehttp/wirehttp/internal/store"
	"github.com/wirehttp/wirehttp/internal/utils"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run wirehttp as a daemon with a control API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 0, "control API port (0: use settings.json's daemon_port, default "+fmt.Sprint(config.DefaultDaemonPort)+")")
}

type daemonRequest struct {
	Method string              `json:"method"`
	URL    string              `json:"url"`
	Header map[string][]string `json:"header,omitempty"`
	Data   string              `json:"data,omitempty"`
}

func runServe(cmd *cobra.Command, args []string) error {
	dir, err := config.Dir()
	if err != nil {
		return err
	}
	release, err := singleton.Lock(dir)
	if err != nil {
		return err
	}
	defer release()

	settings, _ := config.Load()

	st, err := store.Open(filepath.Join(dir, "history.db"))
	if err != nil {
		return err
	}
	defer st.Close()

	bus := events.NewBus()
	token := ensureAuthToken(dir)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/exchange", handleDaemonExchange(st, bus, settings))
	mux.HandleFunc("/exchanges", handleDaemonList(st))
	mux.HandleFunc("/events", handleDaemonEvents(bus))

	handler := corsMiddleware(authMiddleware(token, mux))

	port := servePort
	if port == 0 {
		port = settings.DaemonPort
	}
	if port == 0 {
		port = config.DefaultDaemonPort
	}
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	fmt.Fprintf(os.Stderr, "wirehttp serve listening on %s\n", addr)
	return http.ListenAndServe(addr, handler)
}

func handleDaemonExchange(st *store.Store, bus *events.Bus, settings config.Settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var dreq daemonRequest
		if err := json.NewDecoder(r.Body).Decode(&dreq); err != nil {
			http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		u, err := url.Parse(dreq.URL)
		if err != nil {
			http.Error(w, "invalid url: "+err.Error(), http.StatusBadRequest)
			return
		}

		header := make(http.Header)
		for name, values := range dreq.Header {
			for _, v := range values {
				header.Add(name, v)
			}
		}

		id := uuid.New().String()
		bus.Publish(events.Event{Kind: events.KindStarted, ExchangeID: id, Method: dreq.Method, URL: dreq.URL})

		creq := &client.Request{Method: dreq.Method, URL: u, Header: header, UserAgent: settings.UserAgent}
		if dreq.Data != "" {
			creq.Body = strings.NewReader(dreq.Data)
			creq.ContentLength = int64(len(dreq.Data))
		}

		start := time.Now()
		resp, err := client.Do(r.Context(), creq)
		rec := store.ExchangeRecord{ID: id, Method: dreq.Method, URL: utils.SanitizeURL(dreq.URL), RequestAt: start}
		if err != nil {
			rec.Err = err.Error()
			st.Save(rec)
			bus.Publish(events.Event{Kind: events.KindFailed, ExchangeID: id, Detail: err.Error()})
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		rec.StatusCode = resp.StatusCode
		rec.DurationMS = time.Since(start).Milliseconds()
		rec.Reused = resp.Reused
		bus.Publish(events.Event{Kind: events.KindHeaders, ExchangeID: id, StatusCode: resp.StatusCode})

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Exchange-Id", id)
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":          id,
			"status_code": resp.StatusCode,
			"header":      resp.Header,
		})

		if err := st.Save(rec); err != nil {
			utils.Debug("serve: failed to save exchange record: %v", err)
		}
		bus.Publish(events.Event{Kind: events.KindCompleted, ExchangeID: id, StatusCode: resp.StatusCode})
	}
}

func handleDaemonList(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := st.List(0)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(records)
	}
}

// handleDaemonEvents streams the event bus as SSE, grounded on the
// teacher's EventsHandler (cmd/http_handlers.go).
func handleDaemonEvents(bus *events.Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		ch, unsubscribe := bus.Subscribe()
		defer unsubscribe()
		flusher.Flush()

		done := r.Context().Done()
		for {
			select {
			case <-done:
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				data, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: %s\n", ev.Kind)
				fmt.Fprintf(w, "data: %s\n\n", data)
				flusher.Flush()
			}
		}
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "http://127.0.0.1")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func authMiddleware(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			provided := strings.TrimPrefix(authHeader, "Bearer ")
			if len(provided) == len(token) && subtle.ConstantTimeCompare([]byte(provided), []byte(token)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
		}
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}

func ensureAuthToken(dir string) string {
	tokenFile := filepath.Join(dir, "token")
	if data, err := os.ReadFile(tokenFile); err == nil {
		return strings.TrimSpace(string(data))
	}
	token := uuid.New().String()
	if err := os.WriteFile(tokenFile, []byte(token), 0o600); err != nil {
		utils.Debug("serve: failed to write token file: %v", err)
	}
	return token
}
