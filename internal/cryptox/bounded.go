package cryptox

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// BoundedHasher serializes access to the memory-hard hash behind a weighted
// semaphore. Each scrypt invocation with the fixed parameters touches about
// 32 MiB, so the cap bounds total memory use under concurrent load. Waiters
// honor context cancellation instead of blocking indefinitely.
type BoundedHasher struct {
	sem *semaphore.Weighted
}

// NewBoundedHasher caps concurrent derivations at maxConcurrent. Values
// below one fall back to a single slot.
func NewBoundedHasher(maxConcurrent int64) *BoundedHasher {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &BoundedHasher{sem: semaphore.NewWeighted(maxConcurrent)}
}

// Hash acquires a slot and runs HashPassword.
func (h *BoundedHasher) Hash(ctx context.Context, password string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)
	return HashPassword(password)
}

// Verify acquires a slot and runs VerifyPassword.
func (h *BoundedHasher) Verify(ctx context.Context, password, stored string) (bool, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.sem.Release(1)
	return VerifyPassword(password, stored)
}
