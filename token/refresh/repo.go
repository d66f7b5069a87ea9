package refresh

import (
	"context"
	"time"
)

// Repo stores refresh tokens keyed by (tenant, id).
type Repo interface {
	Create(ctx context.Context, t Token) error
	Get(ctx context.Context, tenantID, id string) (*Token, error)

	// Rotate atomically checks that the token with oldID has secretHash and
	// passes Token.Check, marks it superseded by next and stores next. Losing
	// a race to another rotation yields ErrSuperseded.
	Rotate(ctx context.Context, tenantID, oldID, secretHash string, next Token, now time.Time) error

	// Touch records a use of a non-rotating token and slides its idle expiry,
	// under the same checks as Rotate.
	Touch(ctx context.Context, tenantID, id, secretHash string, now, idleExpiresAt time.Time) error

	// RevokeSession revokes every token of the session and reports how many
	// were still live.
	RevokeSession(ctx context.Context, tenantID, sessionID string, now time.Time) (int, error)
}
