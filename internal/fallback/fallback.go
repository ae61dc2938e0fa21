// Package fallback holds the two small combinators the pipeline uses to
// degrade instead of failing: an ordered list of attempts where the first
// success wins, and a per-item result fold that keeps only successes.
package fallback

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoAttempts is returned by FirstSuccess when called without attempts.
var ErrNoAttempts = errors.New("fallback: no attempts")

type Attempt[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// FirstSuccess runs attempts in order and returns the first successful value
// together with the index of the attempt that produced it. Each attempt runs
// at most once. When every attempt fails the joined errors are returned.
// Context cancellation stops the chain immediately.
func FirstSuccess[T any](ctx context.Context, attempts ...Attempt[T]) (T, int, error) {
	var zero T
	if len(attempts) == 0 {
		return zero, -1, ErrNoAttempts
	}

	errs := make([]error, 0, len(attempts))
	for i, attempt := range attempts {
		if err := ctx.Err(); err != nil {
			return zero, -1, err
		}
		value, err := attempt.Run(ctx)
		if err == nil {
			return value, i, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", attempt.Name, err))
	}
	return zero, -1, errors.Join(errs...)
}

// Result is the outcome of processing one item of a batch.
type Result[T any] struct {
	Name  string
	Value T
	Err   error
}

// Collect applies fn to every item and records each outcome without
// stopping on failure.
func Collect[In, Out any](items []In, fn func(In) (string, Out, error)) []Result[Out] {
	results := make([]Result[Out], 0, len(items))
	for _, item := range items {
		name, value, err := fn(item)
		results = append(results, Result[Out]{Name: name, Value: value, Err: err})
	}
	return results
}

// Successes returns the values of results without an error, in order.
func Successes[T any](results []Result[T]) []T {
	out := make([]T, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			out = append(out, r.Value)
		}
	}
	return out
}

// Failures returns the results that carry an error, in order.
func Failures[T any](results []Result[T]) []Result[T] {
	var out []Result[T]
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
