//go:build integration
// +build integration

package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const integrationSecret = "integration secret"

var (
	binaryPath string
	moduleDir  string
)

func TestMain(m *testing.M) {
	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get working dir: %v\n", err)
		os.Exit(1)
	}
	moduleDir = wd

	tmpDir, err := os.MkdirTemp("", "livedash-integration-")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create temp dir: %v\n", err)
		os.Exit(1)
	}

	binaryPath = filepath.Join(tmpDir, "livedash")
	build := exec.Command("go", "build", "-o", binaryPath, "./cmd")
	build.Dir = moduleDir
	out, err := build.CombinedOutput()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build livedash: %v\n%s", err, out)
		_ = os.RemoveAll(tmpDir)
		os.Exit(1)
	}

	code := m.Run()
	_ = os.RemoveAll(tmpDir)
	os.Exit(code)
}

type serviceProcess struct {
	cmd        *exec.Cmd
	stdout     bytes.Buffer
	stderr     bytes.Buffer
	configPath string
	socketPath string
	frameDir   string
	viewerAddr string
	waited     bool
}

func startService(t *testing.T) *serviceProcess {
	t.Helper()

	dir, err := os.MkdirTemp("/tmp", "livedash-it-")
	if err != nil {
		t.Fatalf("MkdirTemp failed: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	sp := &serviceProcess{
		configPath: filepath.Join(dir, "config.toml"),
		socketPath: filepath.Join(dir, "dash.sock"),
		frameDir:   filepath.Join(dir, "frames"),
		viewerAddr: getFreeAddr(t),
	}
	config := fmt.Sprintf(`socket_path = %q
secret = %q
output_dir = %q
viewer_addr = %q
frame_interval_ms = 20
panel_width = 240
panel_height = 180
`, sp.socketPath, integrationSecret, sp.frameDir, sp.viewerAddr)
	if err := os.WriteFile(sp.configPath, []byte(config), 0600); err != nil {
		t.Fatalf("write config failed: %v", err)
	}

	sp.cmd = exec.Command(binaryPath, "serve", "--config", sp.configPath, "--log-level", "debug")
	sp.cmd.Dir = moduleDir
	sp.cmd.Env = append(os.Environ(), "HOME="+dir)
	sp.cmd.Stdout = &sp.stdout
	sp.cmd.Stderr = &sp.stderr

	if err := sp.cmd.Start(); err != nil {
		t.Fatalf("start service failed: %v", err)
	}
	waitForHealth(t, sp.viewerAddr, 5*time.Second)

	t.Cleanup(func() {
		sp.stop(t)
	})
	return sp
}

func (s *serviceProcess) stop(t *testing.T) {
	t.Helper()
	if s.waited {
		return
	}
	_ = s.cmd.Process.Signal(syscall.SIGTERM)
	_ = s.wait(t, 5*time.Second)
}

func (s *serviceProcess) wait(t *testing.T, timeout time.Duration) error {
	t.Helper()
	if s.waited {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- s.cmd.Wait()
	}()

	select {
	case err := <-done:
		s.waited = true
		return err
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for service exit")
	}
}

// runCLI runs a livedash subcommand against the service's config.
func (s *serviceProcess) runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(binaryPath, args...)
	cmd.Dir = moduleDir
	cmd.Env = append(os.Environ(), "HOME="+filepath.Dir(s.configPath))
	cmd.Stdin = strings.NewReader(stdin)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func getFreeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()
	return ln.Addr().String()
}

func waitForHealth(t *testing.T, addr string, timeout time.Duration) {
	t.Helper()
	url := fmt.Sprintf("http://%s/health", addr)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK && string(body) == "ok" {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("health endpoint not ready: %s", url)
}

type messageEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type framePayload struct {
	ClientID uint64 `json:"client_id"`
	Version  uint64 `json:"version"`
	URL      string `json:"url"`
}

func readEnvelope(conn *websocket.Conn, timeout time.Duration) (messageEnvelope, error) {
	conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return messageEnvelope{}, err
	}
	var env messageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return messageEnvelope{}, err
	}
	return env, nil
}

func TestIntegrationSendRendersFrame(t *testing.T) {
	sp := startService(t)

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/ws", sp.viewerAddr), nil)
	if err != nil {
		t.Fatalf("dial viewer failed: %v", err)
	}
	defer conn.Close()

	input := strings.Join([]string{
		`{"action":"create","plot_id":"loss","options":{"title":"Loss","ylabel":"value"}}`,
		`{"action":"update","plot_id":"loss","data":[3,2,1.5,1.2,1.1]}`,
		`{"action":"update_line","plot_id":"xy","line_id":"a","data":{"x":[0,1,2],"y":[4,1,3]}}`,
	}, "\n")
	out, err := sp.runCLI(t, input, "send", "--config", sp.configPath)
	if err != nil {
		t.Fatalf("send failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Sent 3 messages") {
		t.Fatalf("unexpected send output %q", out)
	}

	var frame framePayload
	deadline := time.Now().Add(5 * time.Second)
	for frame.URL == "" && time.Now().Before(deadline) {
		env, err := readEnvelope(conn, 5*time.Second)
		if err != nil {
			t.Fatalf("read viewer message failed: %v", err)
		}
		if env.Type == "frame.updated" {
			if err := json.Unmarshal(env.Payload, &frame); err != nil {
				t.Fatalf("decode frame payload: %v", err)
			}
		}
	}
	if frame.URL == "" {
		t.Fatal("no frame.updated notification")
	}

	resp, err := http.Get("http://" + sp.viewerAddr + frame.URL)
	if err != nil {
		t.Fatalf("GET frame failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		t.Fatalf("frame status = %d", resp.StatusCode)
	}
	// The sender disconnects right after sending; its frame may already be
	// released.
	if resp.StatusCode == http.StatusOK {
		if _, err := png.Decode(resp.Body); err != nil {
			t.Errorf("frame is not a PNG: %v", err)
		}
	}
}

func TestIntegrationStatusAndShutdown(t *testing.T) {
	sp := startService(t)

	out, err := sp.runCLI(t, "", "send", "--config", sp.configPath)
	if err != nil {
		t.Fatalf("send failed: %v\n%s", err, out)
	}

	out, err = sp.runCLI(t, "", "status", "--config", sp.configPath, "--json")
	if err != nil {
		t.Fatalf("status failed: %v\n%s", err, out)
	}
	var status struct {
		Instance string `json:"instance"`
		Audit    struct {
			Connections int64 `json:"connections"`
		} `json:"audit"`
	}
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("status output is not JSON: %v\n%s", err, out)
	}
	if status.Instance == "" || status.Audit.Connections < 1 {
		t.Errorf("status = %+v", status)
	}

	out, err = sp.runCLI(t, "", "send", "--config", sp.configPath, "--secret", "wrong")
	if err == nil || !strings.Contains(out, "auth.invalid") {
		t.Errorf("wrong secret: err=%v out=%q", err, out)
	}

	sp.stop(t)
	if !sp.waited {
		t.Fatal("service did not exit on SIGTERM")
	}
	if !strings.Contains(sp.stdout.String(), "Stopped") {
		t.Errorf("stdout = %q, want Stopped", sp.stdout.String())
	}
	if _, err := os.Stat(sp.socketPath); !os.IsNotExist(err) {
		t.Errorf("socket %s still present after shutdown", sp.socketPath)
	}
}
