package codes

import (
	"context"
	"time"
)

// Repo stores codes. Consume and ConsumePair are the atomic redemption
// primitives: every precondition is checked and the used mark written as one
// unit, and a failed check leaves the stored codes untouched.
type Repo interface {
	// Insert stores a new code, failing with ErrCodeExists if the id is taken.
	Insert(ctx context.Context, code Code) error
	Get(ctx context.Context, tenantID string, ref Ref) (*Code, error)
	Consume(ctx context.Context, tenantID string, ref Ref, expectedSubject string, now time.Time) (*Code, error)
	ConsumePair(ctx context.Context, tenantID string, request, verification Ref, now time.Time) (*Code, *Code, error)
	// DeleteExpired removes codes that expired before the cutoff.
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}
