package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"ticket-ledger-engine/model"

	"github.com/redis/go-redis/v9"
)

// ActionStore persists pending actions and the idempotency key index so both
// survive a process restart. Resolved actions are kept queryable; only the
// pending set shrinks.
type ActionStore interface {
	Put(ctx context.Context, a *model.PendingAction) error
	Update(ctx context.Context, a *model.PendingAction) error
	Get(ctx context.Context, id string) (*model.PendingAction, error)
	GetByKey(ctx context.Context, key string) (*model.PendingAction, error)
	Pending(ctx context.Context) ([]*model.PendingAction, error)
}

const (
	actionKeyPrefix = "action:"
	idemKeyPrefix   = "action:idem:"
	pendingSetKey   = "actions:pending"
)

// RedisActions is the durable action store.
type RedisActions struct {
	redis *redis.Client
}

func NewRedisActions(client *redis.Client) *RedisActions {
	return &RedisActions{redis: client}
}

func (s *RedisActions) Put(ctx context.Context, a *model.PendingAction) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("put: error marshalling action %s: %w", a.ID, err)
	}

	if err := s.redis.Set(ctx, actionKeyPrefix+a.ID, data, 0).Err(); err != nil {
		return fmt.Errorf("put: error storing action %s: %w", a.ID, err)
	}
	if err := s.redis.Set(ctx, idemKeyPrefix+a.IdempotencyKey, a.ID, 0).Err(); err != nil {
		return fmt.Errorf("put: error storing idempotency key for %s: %w", a.ID, err)
	}
	if err := s.redis.SAdd(ctx, pendingSetKey, a.ID).Err(); err != nil {
		return fmt.Errorf("put: error adding %s to pending set: %w", a.ID, err)
	}
	return nil
}

func (s *RedisActions) Update(ctx context.Context, a *model.PendingAction) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("update: error marshalling action %s: %w", a.ID, err)
	}

	if err := s.redis.Set(ctx, actionKeyPrefix+a.ID, data, 0).Err(); err != nil {
		return fmt.Errorf("update: error storing action %s: %w", a.ID, err)
	}
	if a.Resolved() {
		if err := s.redis.SRem(ctx, pendingSetKey, a.ID).Err(); err != nil {
			return fmt.Errorf("update: error removing %s from pending set: %w", a.ID, err)
		}
	}
	return nil
}

func (s *RedisActions) Get(ctx context.Context, id string) (*model.PendingAction, error) {
	data, err := s.redis.Get(ctx, actionKeyPrefix+id).Result()
	if err == redis.Nil {
		return nil, &model.NotFoundError{Entity: "action", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get: error reading action %s: %w", id, err)
	}

	var a model.PendingAction
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return nil, fmt.Errorf("get: error unmarshalling action %s: %w", id, err)
	}
	return &a, nil
}

func (s *RedisActions) GetByKey(ctx context.Context, key string) (*model.PendingAction, error) {
	id, err := s.redis.Get(ctx, idemKeyPrefix+key).Result()
	if err == redis.Nil {
		return nil, &model.NotFoundError{Entity: "action", ID: key}
	}
	if err != nil {
		return nil, fmt.Errorf("getByKey: error reading idempotency key %s: %w", key, err)
	}
	return s.Get(ctx, id)
}

func (s *RedisActions) Pending(ctx context.Context) ([]*model.PendingAction, error) {
	ids, err := s.redis.SMembers(ctx, pendingSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("pending: error reading pending set: %w", err)
	}

	var actions []*model.PendingAction
	for _, id := range ids {
		a, err := s.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("pending: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, nil
}

// MemoryActions keeps actions in process memory. Development and test use.
type MemoryActions struct {
	mu      sync.Mutex
	actions map[string]model.PendingAction
	byKey   map[string]string
}

func NewMemoryActions() *MemoryActions {
	return &MemoryActions{
		actions: make(map[string]model.PendingAction),
		byKey:   make(map[string]string),
	}
}

func (s *MemoryActions) Put(ctx context.Context, a *model.PendingAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[a.ID] = *a
	s.byKey[a.IdempotencyKey] = a.ID
	return nil
}

func (s *MemoryActions) Update(ctx context.Context, a *model.PendingAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[a.ID] = *a
	return nil
}

func (s *MemoryActions) Get(ctx context.Context, id string) (*model.PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actions[id]
	if !ok {
		return nil, &model.NotFoundError{Entity: "action", ID: id}
	}
	cp := a
	return &cp, nil
}

func (s *MemoryActions) GetByKey(ctx context.Context, key string) (*model.PendingAction, error) {
	s.mu.Lock()
	id, ok := s.byKey[key]
	s.mu.Unlock()
	if !ok {
		return nil, &model.NotFoundError{Entity: "action", ID: key}
	}
	return s.Get(ctx, id)
}

func (s *MemoryActions) Pending(ctx context.Context) ([]*model.PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var actions []*model.PendingAction
	for id := range s.actions {
		a := s.actions[id]
		if !a.Resolved() {
			actions = append(actions, &a)
		}
	}
	return actions, nil
}
