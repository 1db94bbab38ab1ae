package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spacesedan/tweetpulse/internal/clients"
	"github.com/spacesedan/tweetpulse/internal/models"
)

const VALKEY_SESSION_PREFIX = "tweetpulse:session:"

// KV is the subset of clients.ValkeyClient the store needs.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type ValkeyStore struct {
	kv  KV
	ttl time.Duration
}

var (
	_ Store = (*ValkeyStore)(nil)
	_ KV    = (*clients.ValkeyClient)(nil)
)

func NewValkeyStore(kv KV, ttl time.Duration) *ValkeyStore {
	return &ValkeyStore{kv: kv, ttl: ttl}
}

func (v *ValkeyStore) Get(ctx context.Context, id string) (*models.Session, error) {
	raw, found, err := v.kv.Get(ctx, sessionKey(id))
	if err != nil {
		return nil, fmt.Errorf("session: load %s: %w", id, err)
	}
	if !found {
		return nil, ErrNotFound
	}

	var s models.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("session: decode %s: %w", id, err)
	}
	return &s, nil
}

func (v *ValkeyStore) Put(ctx context.Context, s *models.Session) error {
	cp := *s
	cp.UpdatedAt = time.Now()
	body, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", s.ID, err)
	}
	if err := v.kv.SetWithTTL(ctx, sessionKey(s.ID), string(body), v.ttl); err != nil {
		return fmt.Errorf("session: save %s: %w", s.ID, err)
	}
	return nil
}

func (v *ValkeyStore) Delete(ctx context.Context, id string) error {
	if err := v.kv.Delete(ctx, sessionKey(id)); err != nil {
		return fmt.Errorf("session: delete %s: %w", id, err)
	}
	return nil
}

func sessionKey(id string) string {
	return VALKEY_SESSION_PREFIX + id
}
