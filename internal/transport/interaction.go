package transport

import (
	"fmt"
	"time"

	"chessbot/internal/clock"
	"chessbot/internal/core"

	"go.uber.org/zap"
)

// Handle identifies a resolved endpoint on the host surface
type Handle string

// Surface is the host a move can be played on by simulated interaction
type Surface interface {
	ResolveEndpoint(label string) (Handle, bool)
	TriggerInteraction(h Handle) error
}

// Interaction is a Secondary that plays a move by triggering the origin
// square, then the destination square after a delay. Surface calls run off
// the control loop; timers and done are posted back to it.
type Interaction struct {
	surface Surface
	sched   clock.Scheduler
	post    func(func())
	delay   time.Duration
	log     *zap.Logger
}

func NewInteraction(surface Surface, sched clock.Scheduler, post func(func()), delay time.Duration, log *zap.Logger) *Interaction {
	return &Interaction{
		surface: surface,
		sched:   sched,
		post:    post,
		delay:   delay,
		log:     log,
	}
}

// Labels returns the endpoint labels touched to play move, in order
func Labels(move string) ([]string, error) {
	if len(move) != 4 && len(move) != 5 {
		return nil, fmt.Errorf("malformed move %q", move)
	}
	labels := []string{move[0:2], move[2:4]}
	if len(move) == 5 {
		labels = append(labels, "promote-"+move[4:5])
	}
	return labels, nil
}

func (i *Interaction) Deliver(move string, live func() bool, done func(error)) {
	labels, err := Labels(move)
	if err != nil {
		done(fmt.Errorf("%w: %v", core.ErrTransportFailure, err))
		return
	}

	go func() {
		handles := make([]Handle, 0, len(labels))
		for _, label := range labels {
			h, ok := i.surface.ResolveEndpoint(label)
			if !ok {
				i.post(func() { done(fmt.Errorf("%w: %s", core.ErrEndpointUnresolved, label)) })
				return
			}
			handles = append(handles, h)
		}
		i.post(func() { i.next(move, handles, live, done) })
	}()
}

// next runs on the loop and fires handles[0] unless the delivery was
// abandoned in the meantime
func (i *Interaction) next(move string, handles []Handle, live func() bool, done func(error)) {
	if !live() {
		i.log.Debug("interaction abandoned",
			zap.String("move", move),
			zap.String("endpoint", string(handles[0])),
		)
		return
	}
	go i.trigger(move, handles, live, done)
}

// trigger fires handles[0] off the loop and schedules the rest on the loop
// clock
func (i *Interaction) trigger(move string, handles []Handle, live func() bool, done func(error)) {
	if err := i.surface.TriggerInteraction(handles[0]); err != nil {
		i.post(func() { done(fmt.Errorf("%w: trigger %s: %v", core.ErrTransportFailure, handles[0], err)) })
		return
	}

	rest := handles[1:]
	i.post(func() {
		if len(rest) == 0 {
			i.log.Debug("interactions attempted", zap.String("move", move))
			done(nil)
			return
		}
		i.sched.AfterFunc(i.delay, func() { i.next(move, rest, live, done) })
	})
}
