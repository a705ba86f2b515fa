package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/pkg/metrics"
)

// execute runs one repository operation inside the managed execution context:
//
//  1. the caller's context is checked before any work starts
//  2. panics in fn become internal errors carrying the stack
//  3. any error is classified into *Error (validation or internal)
//  4. duration and outcome are reported to metrics
//
// Operations never run asynchronously: execute returns when fn returns.
func execute[T any](ctx context.Context, r *Repository, op, path string, fn func(context.Context) (T, error)) (result T, err error) {
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			var zero T
			result = zero
			err = newInternalError(fmt.Errorf("panic: %v", rec), path, "operation panicked")
		}

		status := metrics.StatusSuccess
		if err != nil {
			repoErr := classify(op, err)
			if repoErr.Path == "" {
				repoErr.Path = path
			}
			err = repoErr

			switch repoErr.Kind() {
			case KindInternal:
				status = metrics.StatusInternal
				logger.Error("Repository %s: %s %q failed: %v", r.name, op, path, repoErr)
				logger.Debug("Repository %s: %s diagnostic:\n%s", r.name, op, repoErr.Diagnostic)
			case KindNotSupported:
				status = metrics.StatusNotSupported
			default:
				status = metrics.StatusValidation
				logger.Debug("Repository %s: %s %q rejected: %v", r.name, op, path, repoErr)
			}
		}

		elapsed := time.Since(start)
		r.metrics.RecordOperation(r.name, op, status, elapsed)
		logger.Debug("Repository %s: %s %q done in %s (%s)", r.name, op, path, elapsed, status)
	}()

	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}
	return fn(ctx)
}

// executeVoid is execute for operations without a result.
func executeVoid(ctx context.Context, r *Repository, op, path string, fn func(context.Context) error) error {
	_, err := execute(ctx, r, op, path, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
