// Package race provides the shared bounded-call combinator: an operation
// raced against a fixed timer, whichever settles first wins. The loser's
// result is discarded rather than actively cancelled.
package race

import (
	"context"
	"time"
)

type Outcome[T any] struct {
	Value    T
	Err      error
	TimedOut bool
}

// Run executes fn with a context bounded by budget and waits for whichever
// settles first. On timeout the zero value is returned with TimedOut set;
// fn keeps running on its own goroutine until it notices the cancelled
// context, and its eventual result is ignored.
func Run[T any](ctx context.Context, budget time.Duration, fn func(ctx context.Context) (T, error)) Outcome[T] {
	var zero T
	if fn == nil {
		return Outcome[T]{Value: zero}
	}
	if budget <= 0 {
		v, err := fn(ctx)
		return Outcome[T]{Value: v, Err: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(callCtx)
		done <- result{value: v, err: err}
	}()

	timer := time.NewTimer(budget)
	defer timer.Stop()

	select {
	case res := <-done:
		return Outcome[T]{Value: res.value, Err: res.err}
	case <-timer.C:
		return Outcome[T]{Value: zero, TimedOut: true}
	case <-ctx.Done():
		return Outcome[T]{Value: zero, Err: ctx.Err()}
	}
}
