package adapter

import (
	"context"
	"sync"
)

type abortKey struct{}

type abortHooks struct {
	mu  sync.Mutex
	fns []func(reason string)
}

// OnAbort registers fn to run when the function invoked with ctx panics. Outside
// Invoke it does nothing.
func OnAbort(ctx context.Context, fn func(reason string)) {
	hooks, ok := ctx.Value(abortKey{}).(*abortHooks)
	if !ok {
		return
	}
	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	hooks.fns = append(hooks.fns, fn)
}

func withAbortHooks(ctx context.Context) (context.Context, *abortHooks) {
	hooks := &abortHooks{}
	return context.WithValue(ctx, abortKey{}, hooks), hooks
}

// run calls the hooks newest first and reports how many ran.
func (h *abortHooks) run(reason string) int {
	h.mu.Lock()
	fns := append(([]func(string))(nil), h.fns...)
	h.mu.Unlock()
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i](reason)
	}
	return len(fns)
}
