package client

import (
	"context"
	"errors"
	"sync"

	"github.com/dom/car-marketplace/internal/domain"
)

type Status int

const (
	StatusLoading Status = iota
	StatusError
	StatusReady
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusError:
		return "error"
	case StatusReady:
		return "ready"
	}
	return "unknown"
}

// State is what a read model exposes: loading, an error message, or data.
type State[T any] struct {
	Status  Status
	Data    T
	Message string
	Err     error
}

func (s State[T]) Ready() bool { return s.Status == StatusReady }

const genericFailure = "Something went wrong. Please try again."

// ErrorMessage is the user-facing text for a failed remote call.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, domain.ErrTransient) {
		return genericFailure
	}
	var appErr *domain.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	if domain.IsAuthError(err) || errors.Is(err, domain.ErrForbidden) || errors.Is(err, domain.ErrValidation) {
		return err.Error()
	}
	return genericFailure
}

// loader holds one cache and the generation of the latest fetch. A result
// is applied only if no later fetch has been issued since.
type loader[T any] struct {
	mu      sync.RWMutex
	gen     uint64
	state   State[T]
	closed  bool
	changed func()
}

func newLoader[T any]() *loader[T] {
	return &loader[T]{state: State[T]{Status: StatusLoading}}
}

// begin starts a fetch and returns its generation.
func (l *loader[T]) begin() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gen++
	l.state.Status = StatusLoading
	l.state.Message = ""
	l.state.Err = nil
	return l.gen
}

// finish applies a fetch result. It reports false when the result was
// discarded because a newer fetch was issued or the model was closed.
func (l *loader[T]) finish(gen uint64, data T, err error) bool {
	l.mu.Lock()
	if l.closed || gen != l.gen {
		l.mu.Unlock()
		return false
	}
	if err != nil {
		l.state = State[T]{Status: StatusError, Data: l.state.Data, Message: ErrorMessage(err), Err: err}
	} else {
		l.state = State[T]{Status: StatusReady, Data: data}
	}
	changed := l.changed
	l.mu.Unlock()

	if changed != nil {
		changed()
	}
	return true
}

// fail moves the model to the error state outside a fetch, keeping the
// cached data.
func (l *loader[T]) fail(err error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.gen++
	l.state = State[T]{Status: StatusError, Data: l.state.Data, Message: ErrorMessage(err), Err: err}
	changed := l.changed
	l.mu.Unlock()

	if changed != nil {
		changed()
	}
}

// mutate edits the cached data in place without a fetch.
func (l *loader[T]) mutate(fn func(data *T)) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	fn(&l.state.Data)
	changed := l.changed
	l.mu.Unlock()

	if changed != nil {
		changed()
	}
}

func (l *loader[T]) snapshot() State[T] {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

func (l *loader[T]) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
}

// run performs one fetch under the generation guard and returns the state
// after it settled.
func (l *loader[T]) run(fetch func() (T, error)) State[T] {
	gen := l.begin()
	data, err := fetch()
	l.finish(gen, data, err)
	return l.snapshot()
}

// runLive is run for fetches triggered by a live feed. When ctx ends
// before the fetch settles, the previous state is put back instead of
// recording the cancellation as an error.
func (l *loader[T]) runLive(ctx context.Context, fetch func() (T, error)) {
	prev := l.snapshot()
	gen := l.begin()
	data, err := fetch()
	if ctx.Err() != nil {
		l.mu.Lock()
		if gen == l.gen && !l.closed {
			l.state = prev
		}
		l.mu.Unlock()
		return
	}
	l.finish(gen, data, err)
}
