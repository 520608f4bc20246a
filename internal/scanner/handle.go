package scanner

import (
	"context"
	"sync"
)

// Handle tracks one RunSession call. It completes exactly once: with the
// decoded text, or with an error such as ErrCanceled or a *DeviceError.
type Handle struct {
	id     string
	cancel func()

	started     chan struct{}
	startedOnce sync.Once
	done        chan struct{}
	doneOnce    sync.Once

	mu     sync.Mutex
	result string
	err    error
}

func newHandle(id string) *Handle {
	return &Handle{
		id:      id,
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// ID is the scan session identifier.
func (h *Handle) ID() string { return h.id }

// Started is closed once capture is running and the overlay is shown. It
// stays open if the session ends before that.
func (h *Handle) Started() <-chan struct{} { return h.started }

// Done is closed when the session has completed.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Result returns the outcome. It is only meaningful after Done is closed.
func (h *Handle) Result() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.err
}

// Wait blocks until the session completes or ctx ends.
func (h *Handle) Wait(ctx context.Context) (string, error) {
	select {
	case <-h.done:
		return h.Result()
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Cancel stops the session if it is still the active one. Cancelling a
// start in flight prevents the overlay from ever being shown.
func (h *Handle) Cancel() {
	if h.cancel != nil {
		h.cancel()
	}
}

func (h *Handle) markStarted() {
	h.startedOnce.Do(func() { close(h.started) })
}

// complete records the outcome; later calls are ignored.
func (h *Handle) complete(result string, err error) bool {
	completed := false
	h.doneOnce.Do(func() {
		h.mu.Lock()
		h.result = result
		h.err = err
		h.mu.Unlock()
		close(h.done)
		completed = true
	})
	return completed
}
