// Package logbridge turns diagnostic output into a classified, bounded event
// stream that a single remote poller drains. Producers either emit events with
// an explicit category, log through a zap logger whose core is teed into the
// bridge, or write plain text through a pass-through Writer.
package logbridge

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const defaultCapacity = 10000

// Config controls the bridge buffer.
type Config struct {
	// Capacity bounds the number of undrained events. When full the oldest
	// event is discarded. Defaults to 10000.
	Capacity int
	// Now overrides the wall clock used to stamp events.
	Now func() time.Time
}

// Bridge is a bounded ring of classified events. It is safe for many
// concurrent producers and one or more drainers.
type Bridge struct {
	mu      sync.Mutex
	ring    []Event
	head    int
	count   int
	dropped int64
	now     func() time.Time
}

// New constructs a Bridge.
func New(cfg Config) *Bridge {
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultCapacity
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Bridge{
		ring: make([]Event, cfg.Capacity),
		now:  cfg.Now,
	}
}

// Emit records a message with a category chosen by the caller. Empty
// messages are ignored.
func (b *Bridge) Emit(category Category, message string) {
	b.emitAt(category, message, b.now())
}

// Emitf is Emit with formatting.
func (b *Bridge) Emitf(category Category, format string, args ...any) {
	b.Emit(category, fmt.Sprintf(format, args...))
}

// Capture classifies text and records it. This is the path for output whose
// category is not known at emission time.
func (b *Bridge) Capture(text string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}
	b.emitAt(Classify(trimmed), trimmed, b.now())
}

func (b *Bridge) emitAt(category Category, message string, at time.Time) {
	if b == nil {
		return
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return
	}
	if category == "" {
		category = Classify(message)
	}
	evt := newEvent(category, message, at)

	b.mu.Lock()
	defer b.mu.Unlock()
	capacity := len(b.ring)
	if b.count == capacity {
		b.ring[b.head] = evt
		b.head = (b.head + 1) % capacity
		b.dropped++
		return
	}
	b.ring[(b.head+b.count)%capacity] = evt
	b.count++
}

// Drain removes and returns every buffered event in arrival order. It never
// blocks on producers beyond the buffer lock and returns an empty slice when
// nothing is buffered.
func (b *Bridge) Drain() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, b.count)
	capacity := len(b.ring)
	for i := range b.count {
		idx := (b.head + i) % capacity
		out[i] = b.ring[idx]
		b.ring[idx] = Event{}
	}
	b.head = 0
	b.count = 0
	return out
}

// Len reports the number of undrained events.
func (b *Bridge) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Dropped reports how many events were discarded because the buffer was full.
func (b *Bridge) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Writer captures every non-empty line written to it and forwards the
// input bytes unchanged to dst. A single Write holding several lines yields
// one event per line, not one per call.
type Writer struct {
	bridge *Bridge
	dst    io.Writer
	mu     sync.Mutex
}

// Writer returns a pass-through io.Writer feeding the bridge. A nil dst
// discards the forwarded copy.
func (b *Bridge) Writer(dst io.Writer) *Writer {
	if dst == nil {
		dst = io.Discard
	}
	return &Writer{bridge: b, dst: dst}
}

// Write classifies each line of p and forwards p to the wrapped writer.
func (w *Writer) Write(p []byte) (int, error) {
	for line := range bytes.SplitSeq(p, []byte("\n")) {
		w.bridge.Capture(string(line))
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	n, err := w.dst.Write(p)
	if err != nil {
		return n, fmt.Errorf("forward diagnostic output: %w", err)
	}
	return n, nil
}
