package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"batepapo/internal/storage"
)

// DefaultStorageTimeout bounds every storage call when no timeout is configured.
const DefaultStorageTimeout = 3 * time.Second

// storageCall runs fn under the storage deadline and maps driver failures onto
// ErrStorageTimeout / ErrStorageUnavailable. Reads (retry=true) get one
// extra attempt when the first fails for a reason other than the deadline.
func storageCall(ctx context.Context, timeout time.Duration, op string, retry bool, fn func(ctx context.Context) error) error {
	attempts := 1
	if retry {
		attempts = 2
	}

	var err error
	for range attempts {
		err = runWithTimeout(ctx, timeout, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, storage.ErrConflict) {
			return err
		}
		if errors.Is(err, ErrStorageTimeout) || ctx.Err() != nil {
			break
		}
	}
	if errors.Is(err, ErrStorageTimeout) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

func runWithTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		timeout = DefaultStorageTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(callCtx)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return ErrStorageTimeout
	}
	return err
}
