package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/livedash/host/internal/auth"
	"github.com/livedash/host/internal/client"
	"github.com/livedash/host/internal/config"
	apperrors "github.com/livedash/host/internal/errors"
	"github.com/livedash/host/internal/service"
)

// DoctorResult is the top-level JSON output for `livedash doctor --json`.
type DoctorResult struct {
	// Version is the doctor output schema version. Always "1".
	Version string        `json:"version"`
	Checks  []DoctorCheck `json:"checks"`
	Summary DoctorSummary `json:"summary"`
}

// DoctorCheck is one diagnostic check in the doctor output.
type DoctorCheck struct {
	// ID is a stable identifier for the check (e.g., "socket.handshake").
	ID string `json:"id"`

	// Status is "pass", "warn", or "fail".
	Status string `json:"status"`

	Message    string `json:"message"`
	NextAction string `json:"next_action"`
}

// DoctorSummary holds aggregate counts of check outcomes.
type DoctorSummary struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
}

// Stable check IDs.
const (
	checkIDConfigFile      = "config.file"
	checkIDAuthSecret      = "auth.secret"
	checkIDSocketHandshake = "socket.handshake"
	checkIDViewerStatus    = "viewer.status"
	checkIDOutputDir       = "output.dir"
)

const (
	statusPass = "pass"
	statusWarn = "warn"
	statusFail = "fail"
)

// Seams for tests.
var (
	doctorQueryStatus = queryStatus
	doctorHandshake   = defaultHandshake
)

func defaultHandshake(path, secret string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := client.DialConfig(ctx, client.Config{Path: path, Secret: secret, Name: "livedash-doctor"})
	if err != nil {
		return err
	}
	return c.Close()
}

func runDoctor(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var jsonMode bool
	var configPath string
	fs.BoolVar(&jsonMode, "json", false, "Emit machine-readable JSON to stdout")
	fs.StringVar(&configPath, "config", "", "Path to config file (default: ~/.livedash/config.toml)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: livedash doctor [options]\n\nDiagnose configuration and connectivity.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	cfgCheck, cfg := evalConfigFile(configPath)
	checks := []DoctorCheck{cfgCheck}
	if cfg != nil {
		var status *service.StatusResponse
		if cfg.ViewerAddr != config.Disabled {
			status, _ = doctorQueryStatus(cfg.ViewerAddr)
		}
		checks = append(checks,
			evalAuthSecret(cfg),
			evalSocketHandshake(cfg),
			evalViewerStatus(cfg, status),
			evalOutputDir(cfg),
		)
	}

	result := DoctorResult{Version: "1", Checks: checks}
	for _, c := range checks {
		switch c.Status {
		case statusPass:
			result.Summary.Pass++
		case statusWarn:
			result.Summary.Warn++
		case statusFail:
			result.Summary.Fail++
		}
	}

	if jsonMode {
		if err := renderDoctorJSON(stdout, result); err != nil {
			fmt.Fprintf(stderr, "Error: failed to encode JSON: %v\n", err)
			return 1
		}
	} else {
		renderDoctorHuman(stdout, result)
	}

	if result.Summary.Fail > 0 {
		return 1
	}
	return 0
}

// evalConfigFile loads the config. A nil config means the remaining checks
// cannot run.
func evalConfigFile(path string) (DoctorCheck, *config.Config) {
	check := DoctorCheck{ID: checkIDConfigFile}

	shown := path
	if shown == "" {
		shown, _ = config.DefaultConfigPath()
	}
	_, statErr := os.Stat(shown)

	cfg, err := config.Load(path)
	if err == nil {
		err = cfg.Validate()
	}
	if err == nil {
		err = cfg.ApplyDefaults()
	}
	if err != nil {
		check.Status = statusFail
		check.Message = fmt.Sprintf("Config error: %v", err)
		check.NextAction = "Fix the config file or regenerate it with `livedash init`."
		return check, nil
	}

	if statErr != nil {
		check.Status = statusWarn
		check.Message = fmt.Sprintf("No config file at %s; using defaults.", shown)
		check.NextAction = "Run `livedash init` to write a config file."
		return check, cfg
	}

	check.Status = statusPass
	check.Message = fmt.Sprintf("Config loaded from %s.", shown)
	check.NextAction = "No action required."
	return check, cfg
}

func evalAuthSecret(cfg *config.Config) DoctorCheck {
	check := DoctorCheck{ID: checkIDAuthSecret}

	if cfg.SecretHash != "" {
		if _, err := auth.NewSecretVerifier(auth.VerifierConfig{Hash: cfg.SecretHash}); err != nil {
			check.Status = statusFail
			check.Message = "secret_hash is not a valid bcrypt hash."
			check.NextAction = "Regenerate it with `livedash hash-secret`."
			return check
		}
		check.Status = statusPass
		check.Message = "Shared secret is configured as a bcrypt hash."
		check.NextAction = "No action required."
		return check
	}

	if cfg.UsesDefaultSecret() {
		check.Status = statusWarn
		check.Message = "The default shared secret is in use."
		check.NextAction = "Set secret_hash in the config file (see `livedash hash-secret`)."
		return check
	}

	check.Status = statusPass
	check.Message = "Shared secret is configured in plain text."
	check.NextAction = "Consider replacing secret with secret_hash."
	return check
}

func evalSocketHandshake(cfg *config.Config) DoctorCheck {
	check := DoctorCheck{ID: checkIDSocketHandshake}

	if _, err := os.Stat(cfg.SocketPath); os.IsNotExist(err) {
		check.Status = statusFail
		check.Message = fmt.Sprintf("No socket at %s.", cfg.SocketPath)
		check.NextAction = "Start the service with `livedash serve`."
		return check
	}

	if cfg.Secret == "" {
		check.Status = statusWarn
		check.Message = fmt.Sprintf("Socket exists at %s; handshake not tested without a plain-text secret.", cfg.SocketPath)
		check.NextAction = "Run `livedash demo --secret ...` to test a full connection."
		return check
	}

	err := doctorHandshake(cfg.SocketPath, cfg.Secret)
	switch {
	case err == nil:
		check.Status = statusPass
		check.Message = fmt.Sprintf("Handshake succeeded on %s.", cfg.SocketPath)
		check.NextAction = "No action required."
	case apperrors.IsCode(err, apperrors.CodeAuthInvalid):
		check.Status = statusFail
		check.Message = "The service rejected the configured secret."
		check.NextAction = "Make sure the service and this config use the same secret."
	case apperrors.IsCode(err, apperrors.CodeAuthRateLimited):
		check.Status = statusWarn
		check.Message = "The service is refusing handshakes after repeated failures."
		check.NextAction = "Wait a minute and rerun doctor."
	default:
		check.Status = statusFail
		check.Message = fmt.Sprintf("Handshake failed on %s: %v", cfg.SocketPath, err)
		check.NextAction = "Remove the stale socket or restart `livedash serve`."
	}
	return check
}

func evalViewerStatus(cfg *config.Config, status *service.StatusResponse) DoctorCheck {
	check := DoctorCheck{ID: checkIDViewerStatus}

	if cfg.ViewerAddr == config.Disabled {
		check.Status = statusWarn
		check.Message = "The live viewer is disabled."
		check.NextAction = "Set viewer_addr to watch dashboards in a browser."
		return check
	}

	if status == nil {
		check.Status = statusFail
		check.Message = fmt.Sprintf("No service answered at http://%s/status.", cfg.ViewerAddr)
		check.NextAction = "Start the service with `livedash serve` and verify viewer_addr."
		return check
	}

	check.Status = statusPass
	check.Message = fmt.Sprintf("Service %s is up with %d producer(s) connected.", status.Instance, status.Listener.Active)
	check.NextAction = "No action required."
	return check
}

func evalOutputDir(cfg *config.Config) DoctorCheck {
	check := DoctorCheck{ID: checkIDOutputDir}

	if cfg.OutputDir == config.Disabled {
		check.Status = statusPass
		check.Message = "PNG frame output is disabled."
		check.NextAction = "No action required."
		return check
	}

	info, err := os.Stat(cfg.OutputDir)
	if os.IsNotExist(err) {
		check.Status = statusWarn
		check.Message = fmt.Sprintf("Frame directory %s does not exist yet.", cfg.OutputDir)
		check.NextAction = "It is created when the service starts."
		return check
	}
	if err != nil || !info.IsDir() {
		check.Status = statusFail
		check.Message = fmt.Sprintf("Frame directory %s is not usable.", cfg.OutputDir)
		check.NextAction = "Point output_dir at a writable directory."
		return check
	}

	probe, err := os.CreateTemp(cfg.OutputDir, ".doctor-*")
	if err != nil {
		check.Status = statusFail
		check.Message = fmt.Sprintf("Frame directory %s is not writable.", cfg.OutputDir)
		check.NextAction = "Fix permissions or point output_dir elsewhere."
		return check
	}
	probe.Close()
	os.Remove(probe.Name())

	check.Status = statusPass
	check.Message = fmt.Sprintf("Frames are written to %s.", filepath.Clean(cfg.OutputDir))
	check.NextAction = "No action required."
	return check
}

func renderDoctorJSON(w io.Writer, result DoctorResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func renderDoctorHuman(w io.Writer, result DoctorResult) {
	fmt.Fprintln(w, "")
	heading(w, "Livedash Doctor", '=')
	fmt.Fprintln(w, "")

	for _, c := range result.Checks {
		fmt.Fprintf(w, "  [%s] %s: %s\n", statusLabel(c.Status), c.ID, c.Message)
		if c.Status != statusPass {
			fmt.Fprintf(w, "    -> %s\n", c.NextAction)
		}
	}

	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Summary: %d passed, %d warnings, %d failures\n",
		result.Summary.Pass, result.Summary.Warn, result.Summary.Fail)
	fmt.Fprintln(w, "")
}
