package loginsessions

import (
	"context"
	"time"
)

// Repo stores login sessions keyed by (tenant, id).
type Repo interface {
	Create(ctx context.Context, ls *LoginSession) error
	Get(ctx context.Context, tenantID, id string) (*LoginSession, error)

	// Update writes ls only if the stored row is still pending and still at
	// ls.Version. On success ls.Version is advanced. A lost race returns
	// ErrConflict and changes nothing.
	Update(ctx context.Context, ls *LoginSession) error

	// AttachSession records the Session created for a completed login session.
	AttachSession(ctx context.Context, tenantID, id, sessionID string) error

	// ExpirePending marks every pending session whose expiry is not after now
	// as expired and reports how many changed.
	ExpirePending(ctx context.Context, now time.Time) (int, error)

	Delete(ctx context.Context, tenantID, id string) error
}
