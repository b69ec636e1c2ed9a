package overlay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// StorageKey is where the overlay is persisted.
const StorageKey = "payments.local_overlay"

// KV is a minimal key/value store for persisted client state.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Load restores an overlay from kv. Absent state yields an empty overlay;
// malformed state is logged, rewritten as {} and also yields an empty
// overlay. Only kv errors are returned.
func Load(ctx context.Context, kv KV, opts ...Option) (*Overlay, error) {
	o := New(opts...)
	if _, err := Reload(ctx, kv, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Reload replaces the contents of o with the state held in kv, healing
// malformed state like Load and reporting whether it did. Absent state
// leaves o unchanged.
func Reload(ctx context.Context, kv KV, o *Overlay) (healed bool, err error) {
	data, ok, err := kv.Get(ctx, StorageKey)
	if err != nil {
		return false, fmt.Errorf("read overlay state: %w", err)
	}
	if !ok {
		return false, nil
	}
	if !o.Restore(data) {
		return false, nil
	}
	slog.WarnContext(ctx, "Malformed payment overlay state reset to empty",
		"key", StorageKey,
		"bytes", len(data))
	if err := kv.Set(ctx, StorageKey, []byte("{}")); err != nil {
		return true, fmt.Errorf("reset overlay state: %w", err)
	}
	return true, nil
}

// Save persists the overlay to kv.
func Save(ctx context.Context, kv KV, o *Overlay) error {
	data, err := o.Snapshot()
	if err != nil {
		return fmt.Errorf("encode overlay state: %w", err)
	}
	if err := kv.Set(ctx, StorageKey, data); err != nil {
		return fmt.Errorf("write overlay state: %w", err)
	}
	return nil
}

// MemoryKV is an in-process KV.
type MemoryKV struct {
	mu     sync.Mutex
	values map[string][]byte
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{values: map[string][]byte{}}
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	return nil
}
