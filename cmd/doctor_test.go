package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/livedash/host/internal/errors"
	"github.com/livedash/host/internal/service"
)

// stubDoctor replaces the network seams for one test.
func stubDoctor(t *testing.T, status *service.StatusResponse, handshakeErr error) {
	t.Helper()
	origQuery, origHandshake := doctorQueryStatus, doctorHandshake
	t.Cleanup(func() {
		doctorQueryStatus, doctorHandshake = origQuery, origHandshake
	})
	doctorQueryStatus = func(addr string) (*service.StatusResponse, error) {
		if status == nil {
			return nil, errors.New("not running")
		}
		return status, nil
	}
	doctorHandshake = func(path, secret string) error { return handshakeErr }
}

// doctorEnv writes a config whose socket file exists.
func doctorEnv(t *testing.T, extra string) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	socket := filepath.Join(dir, "dash.sock")
	if err := os.WriteFile(socket, nil, 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return writeConfig(t, fmt.Sprintf("socket_path = %q\noutput_dir = %q\n%s", socket, dir, extra))
}

func runDoctorJSON(t *testing.T, args ...string) (int, DoctorResult) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := runDoctor(append(args, "--json"), &stdout, &stderr)
	var result DoctorResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		t.Fatalf("doctor output is not JSON: %v\n%s", err, stdout.String())
	}
	return code, result
}

func checkStatuses(result DoctorResult) map[string]string {
	m := make(map[string]string)
	for _, c := range result.Checks {
		m[c.ID] = c.Status
	}
	return m
}

func TestDoctor_AllPass(t *testing.T) {
	path := doctorEnv(t, `secret = "abc"`)
	st := sampleStatus()
	stubDoctor(t, &st, nil)

	code, result := runDoctorJSON(t, "--config", path)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d: %+v", code, result)
	}
	want := map[string]string{
		checkIDConfigFile:      statusPass,
		checkIDAuthSecret:      statusPass,
		checkIDSocketHandshake: statusPass,
		checkIDViewerStatus:    statusPass,
		checkIDOutputDir:       statusPass,
	}
	got := checkStatuses(result)
	for id, status := range want {
		if got[id] != status {
			t.Errorf("%s = %q, want %q", id, got[id], status)
		}
	}
	if result.Version != "1" || result.Summary.Pass != 5 {
		t.Errorf("result = %+v", result)
	}
}

func TestDoctor_ServiceDown(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := writeConfig(t, `socket_path = "/nonexistent/dash.sock"`)
	stubDoctor(t, nil, nil)

	code, result := runDoctorJSON(t, "--config", path)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	got := checkStatuses(result)
	if got[checkIDSocketHandshake] != statusFail || got[checkIDViewerStatus] != statusFail {
		t.Errorf("statuses = %v", got)
	}
	if got[checkIDAuthSecret] != statusWarn {
		t.Errorf("default secret = %q, want warn", got[checkIDAuthSecret])
	}
}

func TestDoctor_HandshakeOutcomes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"rejected", apperrors.InvalidSecret(), statusFail},
		{"rate limited", apperrors.RateLimited(), statusWarn},
		{"stale socket", errors.New("connection refused"), statusFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := doctorEnv(t, `secret = "abc"`)
			st := sampleStatus()
			stubDoctor(t, &st, tt.err)

			_, result := runDoctorJSON(t, "--config", path)
			if got := checkStatuses(result)[checkIDSocketHandshake]; got != tt.want {
				t.Errorf("handshake = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDoctor_SecretHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("abc"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword failed: %v", err)
	}
	path := doctorEnv(t, fmt.Sprintf("secret_hash = %q", hash))
	st := sampleStatus()
	stubDoctor(t, &st, nil)

	_, result := runDoctorJSON(t, "--config", path)
	got := checkStatuses(result)
	if got[checkIDAuthSecret] != statusPass {
		t.Errorf("auth.secret = %q, want pass", got[checkIDAuthSecret])
	}
	if got[checkIDSocketHandshake] != statusWarn {
		t.Errorf("socket.handshake = %q, want warn without a plain secret", got[checkIDSocketHandshake])
	}

	path = doctorEnv(t, `secret_hash = "not-bcrypt"`)
	_, result = runDoctorJSON(t, "--config", path)
	if got := checkStatuses(result)[checkIDAuthSecret]; got != statusFail {
		t.Errorf("invalid hash = %q, want fail", got)
	}
}

func TestDoctor_BadConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	stubDoctor(t, nil, nil)

	code, result := runDoctorJSON(t, "--config", writeConfig(t, "not toml ==="))
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if len(result.Checks) != 1 || result.Checks[0].ID != checkIDConfigFile || result.Checks[0].Status != statusFail {
		t.Errorf("checks = %+v", result.Checks)
	}
}

func TestDoctor_HumanOutput(t *testing.T) {
	path := doctorEnv(t, `viewer_addr = "-"`)
	stubDoctor(t, nil, nil)

	var stdout, stderr bytes.Buffer
	runDoctor([]string{"--config", path}, &stdout, &stderr)

	out := stdout.String()
	for _, want := range []string{"Livedash Doctor", "[WARN] viewer.status", "-> ", "Summary:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
