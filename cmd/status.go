package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/livedash/host/internal/config"
	"github.com/livedash/host/internal/service"
)

func runStatus(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "Path to config file (default: ~/.livedash/config.toml)")
	addr := fs.String("addr", "", "Viewer address of the service (default: viewer_addr from config)")
	jsonOutput := fs.Bool("json", false, "Output in JSON format")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: livedash status [options]\n\nShow the status of a running service.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	target, err := resolveViewerAddr(*configPath, *addr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	status, err := queryStatus(target)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		enc.Encode(status)
		return 0
	}
	writeStatusOutput(stdout, status)
	return 0
}

// resolveViewerAddr picks the address to query: the flag, then the config
// file, then the default.
func resolveViewerAddr(configPath, addr string) (string, error) {
	if addr != "" {
		return addr, nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", err
	}
	switch cfg.ViewerAddr {
	case "":
		return config.DefaultViewerAddr, nil
	case config.Disabled:
		return "", errors.New("viewer is disabled in the config file; pass --addr")
	}
	return cfg.ViewerAddr, nil
}

// queryStatus fetches /status from the viewer.
func queryStatus(addr string) (*service.StatusResponse, error) {
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(fmt.Sprintf("http://%s/status", addr))
	if err != nil {
		return nil, fmt.Errorf("service is not running at %s (or not reachable)", addr)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var status service.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &status, nil
}

// writeStatusOutput renders human-readable service status.
func writeStatusOutput(w io.Writer, status *service.StatusResponse) {
	heading(w, "Service Status", '=')
	fmt.Fprintf(w, "Instance:     %s\n", status.Instance)
	fmt.Fprintf(w, "Socket:       %s\n", status.SocketPath)
	if status.ViewerAddress != "" {
		fmt.Fprintf(w, "Viewer:       http://%s/ (%d watching)\n", status.ViewerAddress, status.ViewerClients)
	}
	if status.FrameDir != "" {
		fmt.Fprintf(w, "Frames:       %s\n", status.FrameDir)
	}
	fmt.Fprintf(w, "Uptime:       %s\n", formatUptime(status.UptimeSeconds))

	l := status.Listener
	fmt.Fprintf(w, "\n")
	heading(w, "Producers", '-')
	fmt.Fprintf(w, "Connected:    %d\n", l.Active)
	fmt.Fprintf(w, "Accepted:     %d (%d authenticated, ", l.Accepted, l.Authenticated)
	if l.Rejected > 0 {
		yellow.Fprintf(w, "%d rejected", l.Rejected)
	} else {
		fmt.Fprintf(w, "0 rejected")
	}
	fmt.Fprintf(w, ")\n")

	q := status.Queue
	fmt.Fprintf(w, "Queue:        depth=%d high=%d pushed=%d", q.Depth, q.HighWater, q.Pushed)
	if q.Dropped > 0 {
		red.Fprintf(w, " dropped=%d", q.Dropped)
	}
	fmt.Fprintf(w, "\n")

	lp := status.Loop
	fmt.Fprintf(w, "\n")
	heading(w, "Render Loop", '-')
	fmt.Fprintf(w, "Windows:      %d\n", lp.Windows)
	fmt.Fprintf(w, "Frames:       %d drawn, %d unchanged, %d empty\n", lp.Frames, lp.Unchanged, lp.Empty)
	fmt.Fprintf(w, "Commands:     %d applied, %d ignored, %d shape changes\n", lp.Applied, lp.Ignored, lp.ShapeChanges)
	if lp.RenderErrors > 0 {
		red.Fprintf(w, "Errors:       %d render errors\n", lp.RenderErrors)
	}
	if len(lp.Rejected) > 0 {
		fmt.Fprintf(w, "Rejected:\n")
		for _, code := range sortedKeys(lp.Rejected) {
			fmt.Fprintf(w, "  %-28s %d\n", code, lp.Rejected[code])
		}
	}

	if a := status.Audit; a != nil {
		fmt.Fprintf(w, "\n")
		heading(w, "Audit", '-')
		fmt.Fprintf(w, "Connections:  %d (%d open)\n", a.Connections, a.OpenConnections)
		fmt.Fprintf(w, "Messages:     %d\n", a.Messages)
		for _, code := range sortedKeys(a.RejectionsByCode) {
			fmt.Fprintf(w, "  %-28s %d\n", code, a.RejectionsByCode[code])
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatUptime formats an uptime in seconds as a human-readable string.
// Examples: "45s", "5m 23s", "2h 15m", "3d 4h"
func formatUptime(seconds int64) string {
	d := time.Duration(seconds) * time.Second
	if d < time.Minute {
		return fmt.Sprintf("%ds", seconds)
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}
