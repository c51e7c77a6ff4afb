package console

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Loop serialises every access to the resource tree on one goroutine.
// Network work runs on separate goroutines started with Go and reports back
// with Post.
type Loop struct {
	tasks  chan func()
	quit   chan struct{}
	inline bool
	logger zerolog.Logger
}

// NewLoop creates a loop whose queue holds up to buffer pending tasks.
func NewLoop(buffer int, logger zerolog.Logger) *Loop {
	if buffer <= 0 {
		buffer = 256
	}
	return &Loop{
		tasks:  make(chan func(), buffer),
		quit:   make(chan struct{}),
		logger: logger,
	}
}

// newInlineLoop runs posted tasks and background work on the calling
// goroutine.
func newInlineLoop(logger zerolog.Logger) *Loop {
	return &Loop{inline: true, quit: make(chan struct{}), logger: logger}
}

// Post queues fn for execution on the loop. It returns false once the loop
// has been closed.
func (l *Loop) Post(fn func()) bool {
	if l.inline {
		l.run(fn)
		return true
	}
	select {
	case <-l.quit:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.quit:
		return false
	}
}

// Go runs fn off the loop.
func (l *Loop) Go(fn func()) {
	if l.inline {
		fn()
		return
	}
	go fn()
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	if l.inline {
		l.run(fn)
		return nil
	}
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return fmt.Errorf("event loop closed")
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Serve executes queued tasks until ctx is cancelled.
func (l *Loop) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.quit:
			return nil
		case fn := <-l.tasks:
			l.run(fn)
		}
	}
}

// Close stops accepting tasks.
func (l *Loop) Close() {
	select {
	case <-l.quit:
	default:
		close(l.quit)
	}
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Interface("panic", r).Msg("event loop task panicked")
		}
	}()
	fn()
}
