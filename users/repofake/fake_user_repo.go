package fakeuserrepo

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/users"
)

var _ users.UserRepo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	users map[string]map[string]users.User // tenant -> id -> user
	lock  sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users: make(map[string]map[string]users.User),
	}
}

func (ur *FakeUserRepo) Upsert(_ context.Context, user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.Email = users.NormaliseEmail(user.Email)
	tenantUsers, ok := ur.users[user.TenantID]
	if !ok {
		tenantUsers = make(map[string]users.User)
		ur.users[user.TenantID] = tenantUsers
	}
	for id, other := range tenantUsers {
		if id == user.ID {
			continue
		}
		if user.Email != "" && other.Email == user.Email {
			return apperrors.Newf(apperrors.KindMismatch, "email %q already in use", user.Email)
		}
		for _, identity := range user.Identities {
			if _, taken := other.FindIdentity(identity.Ref()); taken {
				return users.ErrIdentityAlreadyUsed
			}
		}
	}
	tenantUsers[user.ID] = clone(*user)
	return nil
}

func (ur *FakeUserRepo) Delete(_ context.Context, tenantID, userID string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()
	if _, ok := ur.users[tenantID][userID]; !ok {
		return apperrors.Newf(apperrors.KindNotFound, "user %q not found", userID)
	}
	delete(ur.users[tenantID], userID)
	return nil
}

func (ur *FakeUserRepo) GetByID(_ context.Context, tenantID, userID string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()
	u, ok := ur.users[tenantID][userID]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindNotFound, "user %q not found", userID)
	}
	u = clone(u)
	return &u, nil
}

func (ur *FakeUserRepo) GetByEmail(_ context.Context, tenantID, email string) (*users.User, error) {
	email = users.NormaliseEmail(email)
	return ur.find(tenantID, func(u users.User) bool { return email != "" && u.Email == email })
}

func (ur *FakeUserRepo) GetByPhone(_ context.Context, tenantID, phone string) (*users.User, error) {
	return ur.find(tenantID, func(u users.User) bool { return phone != "" && u.PhoneNumber == phone })
}

func (ur *FakeUserRepo) GetByIdentity(_ context.Context, tenantID string, ref users.IdentityRef) (*users.User, error) {
	return ur.find(tenantID, func(u users.User) bool {
		_, ok := u.FindIdentity(ref)
		return ok
	})
}

func (ur *FakeUserRepo) List(_ context.Context, tenantID string, offset, limit int) ([]*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	list := make([]*users.User, 0, len(ur.users[tenantID]))
	for _, u := range ur.users[tenantID] {
		u := clone(u)
		list = append(list, &u)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})
	if offset >= len(list) {
		return nil, nil
	}
	end := len(list)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return list[offset:end], nil
}

func (ur *FakeUserRepo) find(tenantID string, match func(users.User) bool) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()
	for _, u := range ur.users[tenantID] {
		if match(u) {
			u = clone(u)
			return &u, nil
		}
	}
	return nil, apperrors.New(apperrors.KindNotFound, "user not found")
}

func clone(u users.User) users.User {
	u.Identities = append([]users.Identity(nil), u.Identities...)
	return u
}
