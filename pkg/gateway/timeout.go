package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voice-dashboard/pkg/domain"
)

// DefaultTimeout bounds every gateway call unless configured otherwise.
const DefaultTimeout = 20 * time.Second

// Call runs fn with a deadline of d. The SDK clients underneath do not all
// honour contexts, so fn runs in its own goroutine and is abandoned when the
// deadline passes; its late result is dropped.
func Call[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if d <= 0 {
		d = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return r.v, fmt.Errorf("%w: %v", domain.ErrTimeout, r.err)
		}
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %s", domain.ErrTimeout, d)
		}
		return zero, ctx.Err()
	}
}

// TimedUpload bounds every call of an UploadGateway.
type TimedUpload struct {
	next    UploadGateway
	timeout time.Duration
}

// WithUploadTimeout wraps next so each upload fails with domain.ErrTimeout after d.
func WithUploadTimeout(next UploadGateway, d time.Duration) *TimedUpload {
	return &TimedUpload{next: next, timeout: d}
}

func (t *TimedUpload) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	res, err := Call(ctx, t.timeout, func(ctx context.Context) (UploadResult, error) {
		return t.next.Upload(ctx, req)
	})
	if err != nil && errors.Is(err, domain.ErrTimeout) {
		return res, &domain.UploadError{Reason: "request timed out", Err: err}
	}
	return res, err
}

// TimedPersistence bounds every call of a PersistenceGateway.
type TimedPersistence struct {
	next    PersistenceGateway
	timeout time.Duration
}

// WithPersistenceTimeout wraps next so each call fails with domain.ErrTimeout after d.
func WithPersistenceTimeout(next PersistenceGateway, d time.Duration) *TimedPersistence {
	return &TimedPersistence{next: next, timeout: d}
}

func (t *TimedPersistence) List(ctx context.Context, ownerID string, filter domain.ListFilter) ([]domain.Recording, error) {
	return Call(ctx, t.timeout, func(ctx context.Context) ([]domain.Recording, error) {
		return t.next.List(ctx, ownerID, filter)
	})
}

func (t *TimedPersistence) Get(ctx context.Context, id string) (domain.Recording, error) {
	return Call(ctx, t.timeout, func(ctx context.Context) (domain.Recording, error) {
		return t.next.Get(ctx, id)
	})
}

func (t *TimedPersistence) Create(ctx context.Context, rec domain.Recording) (domain.Recording, error) {
	return Call(ctx, t.timeout, func(ctx context.Context) (domain.Recording, error) {
		return t.next.Create(ctx, rec)
	})
}

func (t *TimedPersistence) Update(ctx context.Context, id string, upd domain.RecordingUpdate) (domain.Recording, error) {
	return Call(ctx, t.timeout, func(ctx context.Context) (domain.Recording, error) {
		return t.next.Update(ctx, id, upd)
	})
}

func (t *TimedPersistence) Delete(ctx context.Context, id string) error {
	_, err := Call(ctx, t.timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, t.next.Delete(ctx, id)
	})
	return err
}

var (
	_ UploadGateway      = (*TimedUpload)(nil)
	_ PersistenceGateway = (*TimedPersistence)(nil)
)
