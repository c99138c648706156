package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/livedash/host/internal/config"
	"github.com/livedash/host/internal/service"
)

// serveFlags holds the command-line values of `livedash serve`.
type serveFlags struct {
	Config          string
	SocketPath      string
	OutputDir       string
	ViewerAddr      string
	AuditDB         string
	FrameIntervalMs int
	QueueCapacity   int
	QueueOverflow   string
	PanelWidth      int
	PanelHeight     int
	LogLevel        string
	LogFile         string
}

func runServe(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)

	f := &serveFlags{}
	fs.StringVar(&f.Config, "config", "", "Path to config file (default: ~/.livedash/config.toml)")
	fs.StringVar(&f.SocketPath, "socket", "", "Producer socket path (default: ~/.livedash/livedash.sock)")
	fs.StringVar(&f.OutputDir, "output-dir", "", "Directory for per-client PNG frames, or - to disable (default: ~/.livedash/frames)")
	fs.StringVar(&f.ViewerAddr, "viewer-addr", "", "Live viewer listen address, or - to disable (default: 127.0.0.1:7071)")
	fs.StringVar(&f.AuditDB, "audit-db", "", "SQLite connection audit database (default: in memory)")
	fs.IntVar(&f.FrameIntervalMs, "frame-interval-ms", 0, "Redraw period in ms (default: 100)")
	fs.IntVar(&f.QueueCapacity, "queue-capacity", 0, "Maximum queued commands, 0 for unbounded")
	fs.StringVar(&f.QueueOverflow, "queue-overflow", "", "Overflow policy: drop-oldest or drop-newest (default: drop-oldest)")
	fs.IntVar(&f.PanelWidth, "panel-width", 0, "Width of one plot panel in pixels (default: 480)")
	fs.IntVar(&f.PanelHeight, "panel-height", 0, "Height of one plot panel in pixels (default: 360)")
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level: info or debug (default: info)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path (default: stderr)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: livedash serve [options]\n\nRun the dashboard service until interrupted.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	explicitFlags := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) {
		explicitFlags[fl.Name] = true
	})

	cfg, err := loadServeConfig(f, explicitFlags)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	logOut := stderr
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
			fmt.Fprintf(stderr, "Error: failed to create log directory: %v\n", err)
			return 1
		}
		logFile, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(stderr, "Error: failed to open log file: %v\n", err)
			return 1
		}
		defer logFile.Close()
		logOut = logFile
	}
	// Packages that log through the standard logger follow the same output.
	log.SetOutput(logOut)
	logger := log.New(logOut, "", log.LstdFlags)

	svc, err := service.New(*cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := svc.Start(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Instance:     %s\n", svc.Instance())
	fmt.Fprintf(stdout, "Socket:       %s\n", svc.SocketPath())
	if addr := svc.ViewerAddr(); addr != "" {
		fmt.Fprintf(stdout, "Viewer:       http://%s/\n", addr)
	} else {
		fmt.Fprintf(stdout, "Viewer:       disabled\n")
	}
	if cfg.OutputDir != config.Disabled {
		fmt.Fprintf(stdout, "Frames:       %s\n", cfg.OutputDir)
	} else {
		fmt.Fprintf(stdout, "Frames:       disabled\n")
	}
	fmt.Fprintf(stdout, "Audit:        %s\n", cfg.AuditDB)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := svc.Run(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: shutdown: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "Stopped")
	return 0
}

// loadServeConfig loads the config file and overlays the flags that were
// set on the command line.
func loadServeConfig(f *serveFlags, explicit map[string]bool) (*config.Config, error) {
	cfg, err := config.Load(f.Config)
	if err != nil {
		return nil, err
	}

	if explicit["socket"] {
		cfg.SocketPath = f.SocketPath
	}
	if explicit["output-dir"] {
		cfg.OutputDir = f.OutputDir
	}
	if explicit["viewer-addr"] {
		cfg.ViewerAddr = f.ViewerAddr
	}
	if explicit["audit-db"] {
		cfg.AuditDB = f.AuditDB
	}
	if explicit["frame-interval-ms"] {
		cfg.FrameIntervalMs = f.FrameIntervalMs
	}
	if explicit["queue-capacity"] {
		cfg.QueueCapacity = f.QueueCapacity
	}
	if explicit["queue-overflow"] {
		cfg.QueueOverflow = f.QueueOverflow
	}
	if explicit["panel-width"] {
		cfg.PanelWidth = f.PanelWidth
	}
	if explicit["panel-height"] {
		cfg.PanelHeight = f.PanelHeight
	}
	if explicit["log-level"] {
		cfg.LogLevel = f.LogLevel
	}
	if explicit["log-file"] {
		cfg.LogFile = f.LogFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}
