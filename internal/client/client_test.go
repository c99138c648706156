package client

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/livedash/host/internal/auth"
	apperrors "github.com/livedash/host/internal/errors"
	"github.com/livedash/host/internal/ipc"
	"github.com/livedash/host/internal/protocol"
	"github.com/livedash/host/internal/queue"
)

const testSecret = "correct horse"

func startService(t *testing.T) (string, *queue.Queue) {
	t.Helper()

	dir, err := os.MkdirTemp("/tmp", "livedash-client-")
	if err != nil {
		dir = t.TempDir()
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "dash.sock")

	verifier, err := auth.NewSecretVerifier(auth.VerifierConfig{Secret: testSecret, Cost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("NewSecretVerifier failed: %v", err)
	}

	q := queue.New()
	l := ipc.NewListener(ipc.Config{Path: path, Sink: q, Auth: verifier, Instance: "inst"})
	if err := l.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { l.Stop() })
	return path, q
}

// collect drains q until the condition holds.
func collect(t *testing.T, q *queue.Queue, until func([]queue.Item) bool) []queue.Item {
	t.Helper()
	deadline := time.After(3 * time.Second)
	var items []queue.Item
	for {
		items = append(items, q.Drain()...)
		if until(items) {
			return items
		}
		select {
		case <-q.Ready():
		case <-deadline:
			t.Fatalf("timed out waiting for queue items; have %d", len(items))
		}
	}
}

func commands(items []queue.Item) []queue.Item {
	var out []queue.Item
	for _, it := range items {
		if it.Kind == queue.Command {
			out = append(out, it)
		}
	}
	return out
}

func TestDial_Welcome(t *testing.T) {
	path, q := startService(t)

	c, err := DialConfig(context.Background(), Config{Path: path, Secret: testSecret, Name: "tracker"})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	if c.ID() != 1 {
		t.Errorf("ID = %d, want 1", c.ID())
	}
	if c.Instance() != "inst" {
		t.Errorf("Instance = %q, want inst", c.Instance())
	}

	items := collect(t, q, func(items []queue.Item) bool { return len(items) >= 1 })
	if items[0].Kind != queue.Register || items[0].ClientID != 1 {
		t.Errorf("first item = %+v, want register of client 1", items[0])
	}
}

func TestDial_WrongSecret(t *testing.T) {
	path, q := startService(t)

	_, err := Dial(context.Background(), path, "wrong")
	if err == nil {
		t.Fatal("Dial with wrong secret succeeded")
	}
	if !apperrors.IsCode(err, apperrors.CodeAuthInvalid) {
		t.Errorf("error = %v, want code %s", err, apperrors.CodeAuthInvalid)
	}
	if q.Len() != 0 {
		t.Errorf("queue has %d items after rejected handshake", q.Len())
	}
}

func TestDial_NoService(t *testing.T) {
	_, err := Dial(context.Background(), filepath.Join(t.TempDir(), "missing.sock"), testSecret)
	if err == nil {
		t.Fatal("Dial to missing socket succeeded")
	}
}

func TestClient_CommandsInOrder(t *testing.T) {
	path, q := startService(t)

	c, err := Dial(context.Background(), path, testSecret)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	steps := []struct {
		name string
		send func() error
		want protocol.Action
	}{
		{"create", func() error { return c.CreatePlot("1", map[string]any{"title": "T"}) }, protocol.ActionCreatePlot},
		{"update", func() error { return c.UpdatePlot("1", protocol.Scalar(3), protocol.ModeAppend) }, protocol.ActionUpdatePlot},
		{"config", func() error { return c.ConfigPlot("1", map[string]any{"xlabel": "t"}) }, protocol.ActionConfigPlot},
		{"create_line", func() error { return c.CreateLine("1", "a", map[string]any{"color": "r"}) }, protocol.ActionCreateLine},
		{"update_line", func() error {
			return c.UpdateLine("1", "a", protocol.Series([]float64{0, 1}, []float64{2, 3}), protocol.ModeReplace)
		}, protocol.ActionUpdateLine},
		{"config_line", func() error { return c.ConfigLine("1", "a", map[string]any{"label": "A"}) }, protocol.ActionConfigLine},
		{"remove_line", func() error { return c.RemoveLine("1", "a") }, protocol.ActionRemoveLine},
		{"remove", func() error { return c.RemovePlot("1") }, protocol.ActionRemovePlot},
	}
	for _, s := range steps {
		if err := s.send(); err != nil {
			t.Fatalf("%s: send failed: %v", s.name, err)
		}
	}
	c.Close()

	items := collect(t, q, func(items []queue.Item) bool {
		for _, it := range items {
			if it.Kind == queue.Remove {
				return true
			}
		}
		return false
	})

	cmds := commands(items)
	if len(cmds) != len(steps) {
		t.Fatalf("got %d commands, want %d", len(cmds), len(steps))
	}
	for i, s := range steps {
		it := cmds[i]
		if it.Err != nil {
			t.Errorf("%s: rejected: %v", s.name, it.Err)
			continue
		}
		if it.Command.Action != s.want {
			t.Errorf("%s: action = %s, want %s", s.name, it.Command.Action, s.want)
		}
		if it.Command.PlotID != "1" {
			t.Errorf("%s: plot = %q", s.name, it.Command.PlotID)
		}
	}

	upd := cmds[4].Command
	if upd.LineID != "a" || upd.Mode != protocol.ModeReplace || upd.Payload.Kind != protocol.PayloadSeries {
		t.Errorf("update_line = %+v", upd)
	}
	if cmds[1].Command.LineID != protocol.DefaultLineID {
		t.Errorf("update plot line = %q, want default", cmds[1].Command.LineID)
	}
}

func TestClient_SendRaw(t *testing.T) {
	path, q := startService(t)

	c, err := Dial(context.Background(), path, testSecret)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	if err := c.Send(protocol.Message{Action: "explode", PlotID: id("1")}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	c.Close()

	items := collect(t, q, func(items []queue.Item) bool { return len(commands(items)) >= 1 })
	got := commands(items)[0]
	if !apperrors.IsCode(got.Err, apperrors.CodeProtocolUnknownAction) {
		t.Errorf("item error = %v, want %s", got.Err, apperrors.CodeProtocolUnknownAction)
	}
}
