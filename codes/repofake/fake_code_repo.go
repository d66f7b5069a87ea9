package fakecoderepo

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-identity-server/codes"
)

var _ codes.Repo = (*FakeCodeRepo)(nil)

type key struct {
	tenantID string
	ref      codes.Ref
}

// FakeCodeRepo keeps codes in memory. The mutex is held only for the length
// of one call, which is what makes Consume atomic here.
type FakeCodeRepo struct {
	codes map[key]codes.Code
	lock  sync.Mutex
}

func NewFakeCodeRepo() *FakeCodeRepo {
	return &FakeCodeRepo{
		codes: make(map[key]codes.Code),
	}
}

func (r *FakeCodeRepo) Insert(_ context.Context, code codes.Code) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	k := key{tenantID: code.TenantID, ref: codes.Ref{Type: code.Type, ID: code.ID}}
	if _, exists := r.codes[k]; exists {
		return codes.ErrCodeExists
	}
	r.codes[k] = clone(code)
	return nil
}

func (r *FakeCodeRepo) Get(_ context.Context, tenantID string, ref codes.Ref) (*codes.Code, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	c, ok := r.codes[key{tenantID: tenantID, ref: ref}]
	if !ok {
		return nil, codes.ErrInvalidCode
	}
	c = clone(c)
	return &c, nil
}

func (r *FakeCodeRepo) Consume(_ context.Context, tenantID string, ref codes.Ref, expectedSubject string, now time.Time) (*codes.Code, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	k := key{tenantID: tenantID, ref: ref}
	c, ok := r.codes[k]
	if !ok {
		return nil, codes.ErrInvalidCode
	}
	if err := c.Check(expectedSubject, now); err != nil {
		return nil, err
	}
	used := now
	c.UsedAt = &used
	r.codes[k] = c
	c = clone(c)
	return &c, nil
}

func (r *FakeCodeRepo) ConsumePair(_ context.Context, tenantID string, request, verification codes.Ref, now time.Time) (*codes.Code, *codes.Code, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	vk := key{tenantID: tenantID, ref: verification}
	v, ok := r.codes[vk]
	if !ok {
		return nil, nil, codes.ErrInvalidCode
	}
	rk := key{tenantID: tenantID, ref: request}
	var req *codes.Code
	if request.ID != "" {
		if c, ok := r.codes[rk]; ok {
			req = &c
		}
	}
	if err := codes.CheckPair(req, &v, now); err != nil {
		return nil, nil, err
	}
	used := now
	req.UsedAt = &used
	v.UsedAt = &used
	r.codes[rk] = *req
	r.codes[vk] = v
	outReq, outV := clone(*req), clone(v)
	return &outReq, &outV, nil
}

func (r *FakeCodeRepo) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	n := 0
	for k, c := range r.codes {
		if c.ExpiresAt.Before(before) {
			delete(r.codes, k)
			n++
		}
	}
	return n, nil
}

func clone(c codes.Code) codes.Code {
	if c.Payload != nil {
		p := make(map[string]string, len(c.Payload))
		for k, v := range c.Payload {
			p[k] = v
		}
		c.Payload = p
	}
	if c.UsedAt != nil {
		u := *c.UsedAt
		c.UsedAt = &u
	}
	return c
}
