package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Keyed is a typed view over a Store. Values are JSON encoded. Update is
// atomic per key within this process.
type Keyed[V any] struct {
	store     Store
	namespace string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewKeyed[V any](store Store, namespace string) *Keyed[V] {
	return &Keyed[V]{store: store, namespace: namespace, locks: map[string]*sync.Mutex{}}
}

func (k *Keyed[V]) key(id string) string {
	if k.namespace == "" {
		return id
	}
	return k.namespace + ":" + id
}

func (k *Keyed[V]) Get(ctx context.Context, id string) (V, bool, error) {
	var zero V
	raw, ok, err := k.store.Get(ctx, k.key(id))
	if err != nil || !ok {
		return zero, false, err
	}
	var out V
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, false, fmt.Errorf("decode %s entry: %w", k.namespace, err)
	}
	return out, true, nil
}

func (k *Keyed[V]) Save(ctx context.Context, id string, value V) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s entry: %w", k.namespace, err)
	}
	return k.store.Set(ctx, k.key(id), raw)
}

func (k *Keyed[V]) Delete(ctx context.Context, id string) error {
	return k.store.Delete(ctx, k.key(id))
}

// Update reads the current value (zero when absent), applies fn and writes
// the result back while holding the key's lock. Returning an error from fn
// leaves the stored value untouched.
func (k *Keyed[V]) Update(ctx context.Context, id string, fn func(current V, exists bool) (V, error)) (V, error) {
	lock := k.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	current, exists, err := k.Get(ctx, id)
	if err != nil {
		var zero V
		return zero, err
	}
	next, err := fn(current, exists)
	if err != nil {
		return current, err
	}
	if err := k.Save(ctx, id, next); err != nil {
		return current, err
	}
	return next, nil
}

func (k *Keyed[V]) lockFor(id string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[id]
	if !ok {
		l = &sync.Mutex{}
		k.locks[id] = l
	}
	return l
}
