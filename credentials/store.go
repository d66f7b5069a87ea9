// Package credentials stores password hashes and their history.
package credentials

import (
	"context"
	"time"

	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/pkg/errors"
)

// PasswordRecord is one password a user has held. The newest record is the
// current password.
type PasswordRecord struct {
	TenantID  string
	UserID    string
	Hash      string
	CreatedAt time.Time
}

// Repo persists password records.
type Repo interface {
	Add(ctx context.Context, record PasswordRecord) error
	// History returns up to limit records, newest first. limit <= 0 returns all.
	History(ctx context.Context, tenantID, userID string, limit int) ([]PasswordRecord, error)
	DeleteAll(ctx context.Context, tenantID, userID string) error
}

var ErrNoPassword = apperrors.New(apperrors.KindNotFound, "user has no password")

// Store applies the password policy on top of a Repo.
type Store struct {
	repo         Repo
	historyDepth int
	strength     func(string) error
	hash         func(string) (string, error)
	nowTime      func() time.Time
}

type StoreOption func(*Store)

// WithHistoryDepth sets how many previous passwords may not be reused.
func WithHistoryDepth(n int) StoreOption {
	return func(s *Store) {
		s.historyDepth = n
	}
}

// WithStrengthPolicy replaces the default strength check.
func WithStrengthPolicy(policy func(string) error) StoreOption {
	return func(s *Store) {
		s.strength = policy
	}
}

// WithHasher replaces bcrypt hashing. Tests use a cheaper cost.
func WithHasher(hash func(string) (string, error)) StoreOption {
	return func(s *Store) {
		s.hash = hash
	}
}

func WithNowTime(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowTime = now
	}
}

func NewStore(repo Repo, options ...StoreOption) (*Store, error) {
	if repo == nil {
		return nil, errors.New("[credentials.NewStore] repo is required")
	}
	s := &Store{
		repo:         repo,
		historyDepth: 5,
		strength:     ValidatePasswordStrength,
		hash:         HashPassword,
		nowTime:      time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// SetPassword validates, checks history and stores a new password.
func (s *Store) SetPassword(ctx context.Context, tenantID, userID, password string) error {
	if err := s.strength(password); err != nil {
		return apperrors.WithKind(apperrors.KindInvalid, err, "weak password")
	}
	if s.historyDepth > 0 {
		history, err := s.repo.History(ctx, tenantID, userID, s.historyDepth)
		if err != nil {
			return errors.Wrap(err, "[Store.SetPassword] History")
		}
		for _, rec := range history {
			if CheckPasswordHash(password, rec.Hash) {
				return apperrors.ErrPasswordReused
			}
		}
	}
	hash, err := s.hash(password)
	if err != nil {
		return errors.Wrap(err, "[Store.SetPassword] hash")
	}
	if err := s.repo.Add(ctx, PasswordRecord{
		TenantID:  tenantID,
		UserID:    userID,
		Hash:      hash,
		CreatedAt: s.nowTime(),
	}); err != nil {
		return errors.Wrap(err, "[Store.SetPassword] Add")
	}
	return nil
}

// HasPassword reports whether the user has a current password.
func (s *Store) HasPassword(ctx context.Context, tenantID, userID string) (bool, error) {
	history, err := s.repo.History(ctx, tenantID, userID, 1)
	if err != nil {
		return false, errors.Wrap(err, "[Store.HasPassword] History")
	}
	return len(history) > 0, nil
}

// Verify checks password against the user's current password.
func (s *Store) Verify(ctx context.Context, tenantID, userID, password string) error {
	history, err := s.repo.History(ctx, tenantID, userID, 1)
	if err != nil {
		return errors.Wrap(err, "[Store.Verify] History")
	}
	if len(history) == 0 {
		return ErrNoPassword
	}
	if !CheckPasswordHash(password, history[0].Hash) {
		return apperrors.ErrInvalidCredential
	}
	return nil
}

// Remove deletes every password record of the user.
func (s *Store) Remove(ctx context.Context, tenantID, userID string) error {
	return errors.Wrap(s.repo.DeleteAll(ctx, tenantID, userID), "[Store.Remove] DeleteAll")
}
