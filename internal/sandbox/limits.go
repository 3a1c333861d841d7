package sandbox

import (
	"bytes"
	"errors"
	"sync"
)

// ErrOutputTooLarge is returned when captured output exceeds the configured cap.
var ErrOutputTooLarge = errors.New("output too large")

// ErrTimeout is returned when execution exceeds the wall-time budget.
var ErrTimeout = errors.New("timed out")

// budget is a byte allowance shared by several writers.
type budget struct {
	mu        sync.Mutex
	remaining int
	exceeded  bool
	onExceed  func()
}

// take reserves up to n bytes and reports how many were granted. The first
// time the allowance runs out onExceed is called.
func (b *budget) take(n int) int {
	b.mu.Lock()
	granted := n
	if granted > b.remaining {
		granted = b.remaining
	}
	b.remaining -= granted
	fire := false
	if granted < n && !b.exceeded {
		b.exceeded = true
		fire = b.onExceed != nil
	}
	b.mu.Unlock()

	if fire {
		b.onExceed()
	}
	return granted
}

func (b *budget) Exceeded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exceeded
}

// BoundedBuffer is an io.Writer that stores at most what its budget grants.
// Excess input is dropped, never buffered, and Write always reports success so
// the copying goroutine in os/exec keeps draining the pipe.
type BoundedBuffer struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	budget *budget
}

func newBoundedPair(maxBytes int, onExceed func()) (*BoundedBuffer, *BoundedBuffer, *budget) {
	b := &budget{remaining: maxBytes, onExceed: onExceed}
	return &BoundedBuffer{budget: b}, &BoundedBuffer{budget: b}, b
}

func (w *BoundedBuffer) Write(p []byte) (int, error) {
	granted := w.budget.take(len(p))
	if granted > 0 {
		w.mu.Lock()
		w.buf.Write(p[:granted])
		w.mu.Unlock()
	}
	return len(p), nil
}

func (w *BoundedBuffer) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}
