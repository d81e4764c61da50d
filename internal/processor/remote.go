package processor

import (
	"context"

	"chessbot/internal/core"
)

// Remote runs orchestrator operations from other goroutines by marshalling
// them onto the loop
type Remote struct {
	loop *Loop
	proc *Processor
}

func NewRemote(loop *Loop, proc *Processor) *Remote {
	return &Remote{loop: loop, proc: proc}
}

func (r *Remote) State(ctx context.Context) (core.StateResponse, error) {
	var st core.StateResponse
	err := r.loop.Call(ctx, func() { st = r.proc.Snapshot() })
	return st, err
}

func (r *Remote) Reset(ctx context.Context) error {
	return r.loop.Call(ctx, r.proc.Reset)
}

func (r *Remote) Search(ctx context.Context) (uint64, error) {
	var (
		gen       uint64
		searchErr error
	)
	if err := r.loop.Call(ctx, func() { gen, searchErr = r.proc.ForceSearch() }); err != nil {
		return 0, err
	}
	return gen, searchErr
}
