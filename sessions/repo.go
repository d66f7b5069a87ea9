package sessions

import (
	"context"
	"time"
)

// Repo stores sessions keyed by (tenant, id).
type Repo interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, tenantID, id string) (*Session, error)

	// Join adds a client to an active session and records the interaction.
	Join(ctx context.Context, tenantID, id, clientID string, now, idleExpiresAt time.Time) (*Session, error)

	Revoke(ctx context.Context, tenantID, id string, now time.Time) error
	ListByUser(ctx context.Context, tenantID, userID string) ([]*Session, error)
}
