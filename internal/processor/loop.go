package processor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var ErrLoopStopped = errors.New("control loop stopped")

// Loop is the single goroutine that owns all orchestrator state. Other
// goroutines hand it work through Post.
type Loop struct {
	events chan func()
	done   chan struct{}
	log    *zap.Logger
}

func NewLoop(buffer int, log *zap.Logger) *Loop {
	if buffer < 1 {
		buffer = 64
	}
	return &Loop{
		events: make(chan func(), buffer),
		done:   make(chan struct{}),
		log:    log,
	}
}

// Post schedules fn on the loop. It is dropped once the loop has stopped.
func (l *Loop) Post(fn func()) {
	select {
	case l.events <- fn:
	case <-l.done:
	}
}

// Call runs fn on the loop and waits for it to finish
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}

	select {
	case l.events <- wrapped:
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes posted work until ctx is cancelled
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-l.events:
			l.execute(fn)
		}
	}
}

func (l *Loop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("recovered panic in control loop", zap.Error(fmt.Errorf("%v", r)))
		}
	}()
	fn()
}
