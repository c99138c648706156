// Package queue implements the hand-off between connection handlers and the
// render loop: a multi-producer, single-consumer FIFO of lifecycle events
// and client commands.
package queue

import (
	"fmt"
	"sync"

	"github.com/livedash/host/internal/protocol"
)

// Kind identifies a queue item.
type Kind uint8

const (
	// Register announces a newly authenticated client.
	Register Kind = iota + 1
	// Remove announces that a client's connection ended.
	Remove
	// Command carries one parsed (or rejected) producer message.
	Command
)

func (k Kind) String() string {
	switch k {
	case Register:
		return "register_client"
	case Remove:
		return "remove_client"
	case Command:
		return "command"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// Item is one entry of the queue. For Command items either Command is
// valid or Err describes why the message was rejected at ingestion.
type Item struct {
	Kind     Kind
	ClientID uint64
	Command  protocol.Command
	Err      error
}

// Overflow policies for a bounded queue.
const (
	DropOldest = "drop-oldest"
	DropNewest = "drop-newest"
)

// ValidOverflow reports whether policy names a known overflow policy.
func ValidOverflow(policy string) bool {
	return policy == DropOldest || policy == DropNewest
}

// Stats is a point-in-time snapshot of queue counters.
type Stats struct {
	Pushed    uint64 `json:"pushed"`
	Dropped   uint64 `json:"dropped"`
	Depth     int    `json:"depth"`
	HighWater int    `json:"high_water"`
}

// Queue is safe for concurrent Push from any number of goroutines. Drain
// is intended for a single consumer.
type Queue struct {
	mu        sync.Mutex
	items     []Item
	capacity  int
	overflow  string
	pushed    uint64
	dropped   uint64
	highWater int

	ready chan struct{}
}

// New creates an unbounded queue.
func New() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// NewBounded creates a queue that holds at most capacity command items.
// A capacity of zero or less means unbounded. Lifecycle events are always
// accepted and do not count against the capacity.
func NewBounded(capacity int, overflow string) *Queue {
	q := New()
	if capacity > 0 {
		q.capacity = capacity
	}
	if !ValidOverflow(overflow) {
		overflow = DropOldest
	}
	q.overflow = overflow
	return q
}

// Push appends an item. It never blocks. It returns false only when a
// bounded queue rejected the item under the drop-newest policy.
func (q *Queue) Push(item Item) bool {
	q.mu.Lock()
	accepted := true
	if q.capacity > 0 && item.Kind == Command && q.commandCountLocked() >= q.capacity {
		if q.overflow == DropNewest {
			accepted = false
		} else {
			q.dropOldestCommandLocked()
		}
		q.dropped++
	}
	if accepted {
		q.items = append(q.items, item)
		q.pushed++
		if len(q.items) > q.highWater {
			q.highWater = len(q.items)
		}
	}
	q.mu.Unlock()

	if accepted {
		q.signal()
	}
	return accepted
}

// PushRegister enqueues a register_client event.
func (q *Queue) PushRegister(clientID uint64) {
	q.Push(Item{Kind: Register, ClientID: clientID})
}

// PushRemove enqueues a remove_client event.
func (q *Queue) PushRemove(clientID uint64) {
	q.Push(Item{Kind: Remove, ClientID: clientID})
}

// PushCommand enqueues a command or, when err is non-nil, a rejected item.
func (q *Queue) PushCommand(clientID uint64, cmd protocol.Command, err error) bool {
	return q.Push(Item{Kind: Command, ClientID: clientID, Command: cmd, Err: err})
}

// Drain removes and returns every item currently queued, in push order.
// It returns nil when the queue is empty.
func (q *Queue) Drain() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	items := q.items
	q.items = nil
	return items
}

// Ready returns a channel that receives a value after a Push. Several
// pushes may coalesce into one notification, so a consumer should Drain
// everything on each wake-up.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Len returns the current depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Stats returns current counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Pushed:    q.pushed,
		Dropped:   q.dropped,
		Depth:     len(q.items),
		HighWater: q.highWater,
	}
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *Queue) commandCountLocked() int {
	n := 0
	for _, it := range q.items {
		if it.Kind == Command {
			n++
		}
	}
	return n
}

func (q *Queue) dropOldestCommandLocked() {
	for i, it := range q.items {
		if it.Kind == Command {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
}
