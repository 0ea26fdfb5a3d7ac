package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/wirehttp/wirehttp/internal/config"
	"github.com/wirehttp/wirehttp/internal/events"
	"github.com/wirehttp/wirehttp/internal/tui"
)

var monitorAddr string

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "attach a live TUI to a running `wirehttp serve` daemon",
	RunE:  runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&monitorAddr, "addr", fmt.Sprintf("127.0.0.1:%d", config.DefaultDaemonPort), "daemon control API address")
}

// runMonitor attaches to the daemon's SSE event stream (cmd/serve.go's
// GET /events) and feeds it into a local events.Bus the TUI model
// subscribes to, decoupling the monitor process from the daemon process.
func runMonitor(cmd *cobra.Command, args []string) error {
	dir, err := config.Dir()
	if err != nil {
		return err
	}
	token := ensureAuthToken(dir)

	bus := events.NewBus()
	stream, err := dialEventStream(monitorAddr, token)
	if err != nil {
		return fmt.Errorf("monitor: connecting to %s: %w", monitorAddr, err)
	}
	go pumpEventStream(stream, bus)
	defer stream.Close()

	model, unsubscribe := tui.NewRootModel(bus, nil)
	defer unsubscribe()

	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err = program.Run()
	return err
}

// dialEventStream opens the daemon's SSE endpoint and returns the raw HTTP
// response body for pumpEventStream to read from.
func dialEventStream(addr, token string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, "http://"+addr+"/events", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return resp, nil
}

// pumpEventStream parses the SSE "event: <kind>\ndata: <json>\n\n" framing
// emitted by cmd/serve.go's handleDaemonEvents and republishes each decoded
// event onto the local bus.
func pumpEventStream(resp *http.Response, bus *events.Bus) {
	defer resp.Body.Close()
	scanner := bufio.NewScanner(resp.Body)
	var dataLine string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data: "):
			dataLine = strings.TrimPrefix(line, "data: ")
		case line == "":
			if dataLine == "" {
				continue
			}
			var ev events.Event
			if err := json.Unmarshal([]byte(dataLine), &ev); err == nil {
				bus.Publish(ev)
			}
			dataLine = ""
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "monitor: event stream ended: %v\n", err)
	}
}
