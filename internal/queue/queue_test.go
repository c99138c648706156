package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/livedash/host/internal/protocol"
)

func cmd(plot string) protocol.Command {
	return protocol.Command{Action: protocol.ActionCreatePlot, PlotID: plot, LineID: protocol.DefaultLineID}
}

func TestQueue_FIFO(t *testing.T) {
	q := New()
	q.PushRegister(1)
	q.PushCommand(1, cmd("a"), nil)
	q.PushCommand(1, cmd("b"), nil)
	q.PushRemove(1)

	items := q.Drain()
	if len(items) != 4 {
		t.Fatalf("Drain() returned %d items, want 4", len(items))
	}
	wantKinds := []Kind{Register, Command, Command, Remove}
	for i, it := range items {
		if it.Kind != wantKinds[i] {
			t.Errorf("items[%d].Kind = %v, want %v", i, it.Kind, wantKinds[i])
		}
	}
	if items[1].Command.PlotID != "a" || items[2].Command.PlotID != "b" {
		t.Errorf("commands out of order: %q, %q", items[1].Command.PlotID, items[2].Command.PlotID)
	}

	if again := q.Drain(); again != nil {
		t.Errorf("second Drain() = %v, want nil", again)
	}
}

func TestQueue_ReadySignal(t *testing.T) {
	q := New()

	select {
	case <-q.Ready():
		t.Fatal("Ready() fired before any push")
	default:
	}

	q.PushRegister(1)
	q.PushRegister(2)

	select {
	case <-q.Ready():
	case <-time.After(time.Second):
		t.Fatal("Ready() did not fire after push")
	}

	// Both pushes coalesce into a single notification.
	select {
	case <-q.Ready():
		t.Fatal("Ready() fired twice for coalesced pushes")
	default:
	}
	if n := len(q.Drain()); n != 2 {
		t.Errorf("Drain() returned %d items, want 2", n)
	}
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := New()
	const producers = 8
	const perProducer = 200

	var wg sync.WaitGroup
	for p := 1; p <= producers; p++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.PushCommand(id, protocol.Command{PlotID: string(rune('a' + i%26))}, nil)
			}
		}(uint64(p))
	}
	wg.Wait()

	items := q.Drain()
	if len(items) != producers*perProducer {
		t.Fatalf("Drain() returned %d items, want %d", len(items), producers*perProducer)
	}

	// Per-producer order is preserved.
	next := make(map[uint64]int)
	for _, it := range items {
		want := string(rune('a' + next[it.ClientID]%26))
		if it.Command.PlotID != want {
			t.Fatalf("client %d item %d = %q, want %q", it.ClientID, next[it.ClientID], it.Command.PlotID, want)
		}
		next[it.ClientID]++
	}

	st := q.Stats()
	if st.Pushed != producers*perProducer || st.Depth != 0 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestQueue_BoundedDropOldest(t *testing.T) {
	q := NewBounded(2, DropOldest)
	q.PushRegister(1)
	q.PushCommand(1, cmd("a"), nil)
	q.PushCommand(1, cmd("b"), nil)
	if !q.PushCommand(1, cmd("c"), nil) {
		t.Fatal("PushCommand() rejected under drop-oldest")
	}
	q.PushRemove(1)

	items := q.Drain()
	var plots []string
	for _, it := range items {
		if it.Kind == Command {
			plots = append(plots, it.Command.PlotID)
		}
	}
	if len(plots) != 2 || plots[0] != "b" || plots[1] != "c" {
		t.Errorf("commands = %v, want [b c]", plots)
	}
	if items[0].Kind != Register || items[len(items)-1].Kind != Remove {
		t.Error("lifecycle events were dropped or reordered")
	}
	if st := q.Stats(); st.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", st.Dropped)
	}
}

func TestQueue_BoundedDropNewest(t *testing.T) {
	q := NewBounded(1, DropNewest)
	q.PushCommand(1, cmd("a"), nil)
	if q.PushCommand(1, cmd("b"), nil) {
		t.Fatal("PushCommand() accepted beyond capacity under drop-newest")
	}
	q.PushRemove(1)

	items := q.Drain()
	if len(items) != 2 || items[0].Command.PlotID != "a" || items[1].Kind != Remove {
		t.Errorf("items = %+v", items)
	}
	st := q.Stats()
	if st.Dropped != 1 || st.HighWater != 2 {
		t.Errorf("Stats() = %+v, want Dropped=1 HighWater=2", st)
	}
}

func TestNewBounded_InvalidPolicy(t *testing.T) {
	q := NewBounded(1, "drop-random")
	q.PushCommand(1, cmd("a"), nil)
	if !q.PushCommand(1, cmd("b"), nil) {
		t.Error("unknown policy should fall back to drop-oldest")
	}
}
