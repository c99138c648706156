package service

import (
	"context"
	"fmt"
	"image"
	"io"
	"log"
	"sync"
	"time"

	"github.com/livedash/host/internal/dashboard"
	apperrors "github.com/livedash/host/internal/errors"
	"github.com/livedash/host/internal/queue"
	"github.com/livedash/host/internal/render"
)

// DefaultFrameInterval is the redraw period used when none is configured.
const DefaultFrameInterval = 100 * time.Millisecond

// LoopConfig configures a Loop.
type LoopConfig struct {
	// Queue is drained every cycle. Required.
	Queue *queue.Queue

	// Registry holds the windows. Required; owned by the loop once Run
	// starts.
	Registry *dashboard.Registry

	// Renderer draws figures. Required.
	Renderer *render.Renderer

	// Surface receives frames. Required; use render.MultiSurface{} for none.
	Surface render.Surface

	// FrameInterval defaults to DefaultFrameInterval.
	FrameInterval time.Duration

	// Logger receives loop events. If nil, logs are discarded.
	Logger *log.Logger

	// Debug logs every applied command.
	Debug bool

	// TimeNow stamps frames. Default: time.Now.
	TimeNow func() time.Time
}

// LoopStats is a snapshot of loop counters.
type LoopStats struct {
	Cycles       uint64            `json:"cycles"`
	Items        uint64            `json:"items"`
	Registered   uint64            `json:"registered"`
	Removed      uint64            `json:"removed"`
	Applied      uint64            `json:"applied"`
	Ignored      uint64            `json:"ignored"`
	ShapeChanges uint64            `json:"shape_changes"`
	Rejected     map[string]uint64 `json:"rejected"`
	Frames       uint64            `json:"frames"`
	Unchanged    uint64            `json:"unchanged"`
	Empty        uint64            `json:"empty"`
	RenderErrors uint64            `json:"render_errors"`
	Windows      int               `json:"windows"`
}

// Loop is the single consumer of the command queue. It applies commands
// to the registry and redraws every changed window.
type Loop struct {
	config LoopConfig
	logger *log.Logger

	// flushed holds the window version last presented or skipped.
	flushed map[uint64]uint64

	mu    sync.Mutex
	stats LoopStats
}

// NewLoop creates a loop for the given config.
func NewLoop(config LoopConfig) *Loop {
	logger := config.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if config.FrameInterval <= 0 {
		config.FrameInterval = DefaultFrameInterval
	}
	if config.TimeNow == nil {
		config.TimeNow = time.Now
	}
	return &Loop{
		config:  config,
		logger:  logger,
		flushed: make(map[uint64]uint64),
		stats:   LoopStats{Rejected: make(map[string]uint64)},
	}
}

// Run applies queued items as soon as they arrive and redraws once per
// frame interval, until ctx is cancelled. It does not run a final cycle;
// the caller does that after stopping producers.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.config.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.config.Queue.Ready():
			l.applyPending()
		case <-ticker.C:
			l.Cycle()
		}
	}
}

// Cycle drains the queue, applies every item and redraws changed windows.
func (l *Loop) Cycle() {
	l.applyPending()
	l.redraw()

	l.mu.Lock()
	l.stats.Cycles++
	l.stats.Windows = l.config.Registry.Len()
	l.mu.Unlock()
}

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() LoopStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.stats
	s.Rejected = make(map[string]uint64, len(l.stats.Rejected))
	for k, v := range l.stats.Rejected {
		s.Rejected[k] = v
	}
	return s
}

func (l *Loop) applyPending() {
	for _, item := range l.config.Queue.Drain() {
		l.apply(item)
	}
}

func (l *Loop) apply(item queue.Item) {
	l.count(func(s *LoopStats) { s.Items++ })

	switch item.Kind {
	case queue.Register:
		if _, created := l.config.Registry.Ensure(item.ClientID); created {
			l.count(func(s *LoopStats) { s.Registered++ })
			l.debugf("client %d: window created", item.ClientID)
		}

	case queue.Remove:
		if !l.config.Registry.Remove(item.ClientID) {
			return
		}
		delete(l.flushed, item.ClientID)
		l.count(func(s *LoopStats) { s.Removed++ })
		if err := l.config.Surface.Release(item.ClientID); err != nil {
			l.logger.Printf("client %d: failed to release surface: %v", item.ClientID, err)
		}
		l.logger.Printf("client %d: window removed", item.ClientID)

	case queue.Command:
		if item.Err != nil {
			code := apperrors.GetCode(item.Err)
			l.count(func(s *LoopStats) { s.Rejected[code]++ })
			l.logger.Printf("client %d: rejected message: %v", item.ClientID, item.Err)
			return
		}

		w, created := l.config.Registry.Ensure(item.ClientID)
		if created {
			l.count(func(s *LoopStats) { s.Registered++ })
		}
		cmd := item.Command
		res := w.Apply(cmd)
		switch {
		case !res.Applied:
			l.count(func(s *LoopStats) { s.Ignored++ })
			l.debugf("client %d: %s plot=%s line=%s ignored (no such target)", item.ClientID, cmd.Action, cmd.PlotID, cmd.LineID)
		default:
			l.count(func(s *LoopStats) { s.Applied++ })
			l.debugf("client %d: %s plot=%s line=%s", item.ClientID, cmd.Action, cmd.PlotID, cmd.LineID)
		}
		if res.ShapeChanged {
			l.count(func(s *LoopStats) { s.ShapeChanges++ })
			l.debugf("client %d: plot=%s line=%s data shape changed", item.ClientID, cmd.PlotID, cmd.LineID)
		}

	default:
		l.logger.Printf("unknown queue item kind %s", item.Kind)
	}
}

// redraw draws every window whose version moved since its last flush, in
// ascending client order.
func (l *Loop) redraw() {
	for _, id := range l.config.Registry.IDs() {
		w, ok := l.config.Registry.Get(id)
		if !ok {
			continue
		}

		version := w.Version()
		if last, seen := l.flushed[id]; seen && last == version {
			l.count(func(s *LoopStats) { s.Unchanged++ })
			continue
		}

		if w.NumPlots() == 0 {
			l.flushed[id] = version
			l.count(func(s *LoopStats) { s.Empty++ })
			l.logger.Printf("client %d: no plots, skipping draw", id)
			continue
		}

		l.draw(w)
	}
}

func (l *Loop) draw(w *dashboard.Window) {
	snap := w.Snapshot()

	img, err := l.figure(snap)
	if img == nil && err != nil {
		l.flushed[snap.ClientID] = snap.Version
	}
	if err != nil {
		l.count(func(s *LoopStats) { s.RenderErrors++ })
		l.logger.Printf("client %d: %v", snap.ClientID, err)
	}
	if img == nil {
		return
	}

	data, err := render.EncodePNG(img)
	if err != nil {
		l.count(func(s *LoopStats) { s.RenderErrors++ })
		l.logger.Printf("client %d: %v", snap.ClientID, err)
		return
	}

	frame := render.Frame{
		ClientID: snap.ClientID,
		Version:  snap.Version,
		Image:    img,
		PNG:      data,
		DrawnAt:  l.config.TimeNow(),
	}
	if err := l.config.Surface.Present(frame); err != nil {
		l.logger.Printf("client %d: failed to present frame: %v", snap.ClientID, err)
	}

	l.flushed[snap.ClientID] = snap.Version
	l.count(func(s *LoopStats) { s.Frames++ })
}

// figure draws one window. A panic while drawing is returned as a render
// error so other windows still get drawn this cycle.
func (l *Loop) figure(snap dashboard.Snapshot) (img *image.RGBA, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			img = nil
			err = apperrors.New(apperrors.CodeRenderFailed, fmt.Sprintf("render panic: %v", rec))
		}
	}()
	return l.config.Renderer.Figure(snap)
}

func (l *Loop) count(fn func(s *LoopStats)) {
	l.mu.Lock()
	fn(&l.stats)
	l.mu.Unlock()
}

func (l *Loop) debugf(format string, args ...any) {
	if l.config.Debug {
		l.logger.Printf(format, args...)
	}
}
