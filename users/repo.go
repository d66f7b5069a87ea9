package users

import "context"

// UserRepo stores users. Every lookup is scoped to a tenant; the same email
// may exist in several tenants as unrelated users.
type UserRepo interface {
	Upsert(ctx context.Context, user *User) error
	Delete(ctx context.Context, tenantID, userID string) error
	GetByID(ctx context.Context, tenantID, userID string) (*User, error)
	GetByEmail(ctx context.Context, tenantID, email string) (*User, error)
	GetByPhone(ctx context.Context, tenantID, phone string) (*User, error)
	GetByIdentity(ctx context.Context, tenantID string, ref IdentityRef) (*User, error)
	List(ctx context.Context, tenantID string, offset, limit int) ([]*User, error)
}
