package ipc

import (
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	apperrors "github.com/livedash/host/internal/errors"
	"github.com/livedash/host/internal/protocol"
	"github.com/livedash/host/internal/queue"
)

const testSecret = "open sesame"

type staticAuth string

func (a staticAuth) Verify(secret string) error {
	if secret != string(a) {
		return apperrors.InvalidSecret()
	}
	return nil
}

type recordingObserver struct {
	mu           sync.Mutex
	connected    []ConnInfo
	disconnected []uint64
	rejected     []string
}

func (o *recordingObserver) Connected(info ConnInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.connected = append(o.connected, info)
}

func (o *recordingObserver) Disconnected(info ConnInfo, messages uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.disconnected = append(o.disconnected, messages)
}

func (o *recordingObserver) Rejected(info ConnInfo, code, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rejected = append(o.rejected, code)
}

func tempSocketPath(t *testing.T) string {
	baseDir, err := os.MkdirTemp("/tmp", "livedash-ipc-")
	if err != nil {
		baseDir = t.TempDir()
	}
	t.Cleanup(func() {
		_ = os.RemoveAll(baseDir)
	})
	return filepath.Join(baseDir, "dash.sock")
}

func startListener(t *testing.T, mutate func(*Config)) (*Listener, *queue.Queue) {
	t.Helper()
	q := queue.New()
	cfg := Config{
		Path:     tempSocketPath(t),
		Sink:     q,
		Auth:     staticAuth(testSecret),
		Instance: "test-instance",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	l := NewListener(cfg)
	if err := l.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() { _ = l.Stop() })
	return l, q
}

// dial connects and performs the handshake, returning the reply.
func dial(t *testing.T, path string, hello protocol.Hello) (net.Conn, *protocol.Codec, protocol.HandshakeReply) {
	t.Helper()
	conn, err := net.DialTimeout("unix", path, time.Second)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	codec := protocol.NewCodec(conn)
	if err := codec.Write(hello); err != nil {
		t.Fatalf("Write(hello) error: %v", err)
	}
	var reply protocol.HandshakeReply
	if err := codec.Read(&reply); err != nil {
		t.Fatalf("Read(reply) error: %v", err)
	}
	return conn, codec, reply
}

func hello(secret string) protocol.Hello {
	return protocol.Hello{Type: protocol.FrameHello, Secret: secret, Name: "test"}
}

// collect drains q until done reports true or the deadline passes.
func collect(t *testing.T, q *queue.Queue, done func([]queue.Item) bool) []queue.Item {
	t.Helper()
	deadline := time.After(3 * time.Second)
	var items []queue.Item
	for {
		items = append(items, q.Drain()...)
		if done(items) {
			return items
		}
		select {
		case <-q.Ready():
		case <-deadline:
			t.Fatalf("timed out waiting for queue items; have %+v", items)
		}
	}
}

func hasRemove(id uint64) func([]queue.Item) bool {
	return func(items []queue.Item) bool {
		for _, it := range items {
			if it.Kind == queue.Remove && it.ClientID == id {
				return true
			}
		}
		return false
	}
}

func TestListener_StartStop(t *testing.T) {
	l, _ := startListener(t, nil)

	info, err := os.Stat(l.Path())
	if err != nil {
		t.Fatalf("Stat() error: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("socket permissions = %o, want 0600", info.Mode().Perm())
	}
	dirInfo, err := os.Stat(filepath.Dir(l.Path()))
	if err != nil {
		t.Fatalf("Stat(dir) error: %v", err)
	}
	if dirInfo.Mode().Perm() != 0700 {
		t.Errorf("socket dir permissions = %o, want 0700", dirInfo.Mode().Perm())
	}

	if err := l.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if _, err := os.Stat(l.Path()); !os.IsNotExist(err) {
		t.Fatalf("socket path should be removed, stat error: %v", err)
	}
}

func TestListener_StaleSocketCleanup(t *testing.T) {
	path := tempSocketPath(t)

	stale, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("Listen() error: %v", err)
	}
	// Keep the socket file on close so it looks stale.
	stale.(*net.UnixListener).SetUnlinkOnClose(false)
	if err := stale.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected stale socket file, got stat error: %v", err)
	}

	l := NewListener(Config{Path: path, Sink: queue.New(), Auth: staticAuth(testSecret)})
	if err := l.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer l.Stop()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error: %v", err)
	}
	if info.Mode()&os.ModeSocket == 0 {
		t.Fatalf("socket path is not a socket")
	}
}

func TestListener_AlreadyRunning(t *testing.T) {
	path := tempSocketPath(t)

	live, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("Listen() error: %v", err)
	}
	defer live.Close()

	l := NewListener(Config{Path: path, Sink: queue.New(), Auth: staticAuth(testSecret)})
	err = l.Start()
	if err == nil {
		_ = l.Stop()
		t.Fatal("Start() expected error for already running socket")
	}
	if !apperrors.IsCode(err, apperrors.CodeIPCSocketInUse) {
		t.Fatalf("Start() error = %v, want %s", err, apperrors.CodeIPCSocketInUse)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("socket should remain, stat error: %v", err)
	}
}

func TestListener_NotASocket(t *testing.T) {
	path := tempSocketPath(t)
	if err := os.WriteFile(path, []byte("x"), 0600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	l := NewListener(Config{Path: path, Sink: queue.New(), Auth: staticAuth(testSecret)})
	if err := l.Start(); !apperrors.IsCode(err, apperrors.CodeIPCSocketInvalid) {
		_ = l.Stop()
		t.Fatalf("Start() error = %v, want %s", err, apperrors.CodeIPCSocketInvalid)
	}
}

func TestListener_HandshakeAndCommands(t *testing.T) {
	obs := &recordingObserver{}
	l, q := startListener(t, func(c *Config) { c.Observer = obs })

	conn, codec, reply := dial(t, l.Path(), hello(testSecret))
	if reply.Type != protocol.FrameWelcome {
		t.Fatalf("reply type = %q, want welcome", reply.Type)
	}
	if reply.ClientID != 1 || reply.Instance != "test-instance" {
		t.Errorf("welcome = %+v, want client 1 of test-instance", reply)
	}

	plot := protocol.ID("p1")
	data := protocol.Samples(1, 2, 3)
	msgs := []protocol.Message{
		{Action: protocol.WireCreate, PlotID: &plot, Options: map[string]any{"title": "T"}},
		{Action: protocol.WireUpdate, PlotID: &plot, Data: &data},
	}
	for _, m := range msgs {
		if err := codec.Write(m); err != nil {
			t.Fatalf("Write() error: %v", err)
		}
	}
	conn.Close()

	items := collect(t, q, hasRemove(1))
	if len(items) != 4 {
		t.Fatalf("got %d items, want 4: %+v", len(items), items)
	}
	if items[0].Kind != queue.Register || items[0].ClientID != 1 {
		t.Errorf("items[0] = %+v, want register 1", items[0])
	}
	if items[1].Command.Action != protocol.ActionCreatePlot || items[2].Command.Action != protocol.ActionUpdatePlot {
		t.Errorf("commands = %v, %v", items[1].Command.Action, items[2].Command.Action)
	}
	if items[2].Command.Payload.Len() != 3 {
		t.Errorf("update payload len = %d, want 3", items[2].Command.Payload.Len())
	}

	st := l.Stats()
	if st.Accepted != 1 || st.Authenticated != 1 || st.Rejected != 0 {
		t.Errorf("Stats() = %+v", st)
	}

	// Stop waits for connection goroutines, so observer calls are complete.
	if err := l.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.connected) != 1 || obs.connected[0].Name != "test" {
		t.Errorf("observer connected = %+v", obs.connected)
	}
	if len(obs.disconnected) != 1 || obs.disconnected[0] != 2 {
		t.Errorf("observer disconnected = %v, want [2]", obs.disconnected)
	}
}

func TestListener_SequentialClientIDs(t *testing.T) {
	l, _ := startListener(t, nil)

	for want := uint64(1); want <= 3; want++ {
		_, _, reply := dial(t, l.Path(), hello(testSecret))
		if reply.ClientID != want {
			t.Errorf("client id = %d, want %d", reply.ClientID, want)
		}
	}
}

func TestListener_RejectsWrongSecret(t *testing.T) {
	obs := &recordingObserver{}
	l, q := startListener(t, func(c *Config) { c.Observer = obs })

	conn, codec, reply := dial(t, l.Path(), hello("wrong"))
	if reply.Type != protocol.FrameRejected || reply.Code != apperrors.CodeAuthInvalid {
		t.Fatalf("reply = %+v, want rejected %s", reply, apperrors.CodeAuthInvalid)
	}
	if reply.ClientID != 0 {
		t.Errorf("rejected reply carries client id %d", reply.ClientID)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := codec.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Errorf("ReadFrame() after rejection = %v, want EOF", err)
	}

	// A good client afterwards still gets id 1: rejected attempts consume none.
	_, _, ok := dial(t, l.Path(), hello(testSecret))
	if ok.ClientID != 1 {
		t.Errorf("next client id = %d, want 1", ok.ClientID)
	}

	items := collect(t, q, func(items []queue.Item) bool { return len(items) >= 1 })
	for _, it := range items {
		if it.ClientID != 1 {
			t.Errorf("unexpected item for client %d: %+v", it.ClientID, it)
		}
	}

	if st := l.Stats(); st.Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", st.Rejected)
	}
	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.rejected) != 1 || obs.rejected[0] != apperrors.CodeAuthInvalid {
		t.Errorf("observer rejected = %v", obs.rejected)
	}
}

func TestListener_RejectsWrongFrameType(t *testing.T) {
	l, _ := startListener(t, nil)

	_, _, reply := dial(t, l.Path(), protocol.Hello{Type: "update", Secret: testSecret})
	if reply.Type != protocol.FrameRejected || reply.Code != apperrors.CodeAuthHandshakeFailed {
		t.Fatalf("reply = %+v, want rejected %s", reply, apperrors.CodeAuthHandshakeFailed)
	}
}

func TestListener_HandshakeTimeout(t *testing.T) {
	l, q := startListener(t, func(c *Config) { c.HandshakeTimeout = 50 * time.Millisecond })

	conn, err := net.Dial("unix", l.Path())
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	// The server gives up on the silent client and closes the connection.
	if _, err := io.ReadAll(conn); err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if items := q.Drain(); len(items) != 0 {
		t.Errorf("silent client produced queue items: %+v", items)
	}
	if st := l.Stats(); st.Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", st.Rejected)
	}
}

func TestListener_RejectedMessagesAreQueued(t *testing.T) {
	l, q := startListener(t, nil)
	conn, _, _ := dial(t, l.Path(), hello(testSecret))

	frames := "not json\n" +
		`{"action":"explode","plot_id":"p"}` + "\n" +
		`{"action":"update","plot_id":"p","data":1,"mode":"sideways"}` + "\n" +
		`{"action":"remove","plot_id":"p"}` + "\n"
	if _, err := conn.Write([]byte(frames)); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	conn.Close()

	items := collect(t, q, hasRemove(1))
	var codes []string
	for _, it := range items {
		if it.Kind == queue.Command {
			codes = append(codes, apperrors.GetCode(it.Err))
		}
	}
	want := []string{
		apperrors.CodeProtocolInvalidMessage,
		apperrors.CodeProtocolUnknownAction,
		apperrors.CodeProtocolInvalidMode,
		"",
	}
	if len(codes) != len(want) {
		t.Fatalf("codes = %v, want %v", codes, want)
	}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("codes[%d] = %q, want %q", i, codes[i], want[i])
		}
	}
}

func TestListener_StopClosesConnections(t *testing.T) {
	l, q := startListener(t, nil)
	_, codec, _ := dial(t, l.Path(), hello(testSecret))

	collect(t, q, func(items []queue.Item) bool { return len(items) > 0 })

	if err := l.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if _, err := codec.ReadFrame(); err == nil {
		t.Error("ReadFrame() after Stop() succeeded, want error")
	}
	collect(t, q, hasRemove(1))
	if st := l.Stats(); st.Active != 0 {
		t.Errorf("Active = %d after Stop(), want 0", st.Active)
	}
}
