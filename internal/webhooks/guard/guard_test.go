package guard

import (
	"context"
	"strings"
	"testing"
	"time"
)

type memoryStore struct {
	keys map[string]string
	err  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]string{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	return m.keys[key], nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, exists := m.keys[key]; exists {
		return false, nil
	}
	m.keys[key] = "1"
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return strings.Join([]string{"mm", "idemp", scope, id}, ":")
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

func TestCheckAndMarkFirstDeliveryPasses(t *testing.T) {
	g, err := New(newMemoryStore(), time.Hour, "stripe")
	if err != nil {
		t.Fatalf("failed to build guard: %v", err)
	}

	marked, err := g.CheckAndMark(context.Background(), "evt_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if marked {
		t.Fatalf("first delivery should not be marked")
	}

	marked, err = g.CheckAndMark(context.Background(), "evt_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !marked {
		t.Fatalf("second delivery should be marked")
	}
}

func TestDeleteReopensGuard(t *testing.T) {
	g, err := New(newMemoryStore(), time.Hour, "stripe")
	if err != nil {
		t.Fatalf("failed to build guard: %v", err)
	}

	if _, err := g.CheckAndMark(context.Background(), "evt_2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.Delete(context.Background(), "evt_2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	marked, err := g.CheckAndMark(context.Background(), "evt_2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if marked {
		t.Fatalf("delivery after delete should pass the guard")
	}
}

func TestNewValidatesInputs(t *testing.T) {
	if _, err := New(nil, time.Hour, "stripe"); err == nil {
		t.Fatalf("expected error for nil store")
	}
	if _, err := New(newMemoryStore(), time.Hour, ""); err == nil {
		t.Fatalf("expected error for empty scope")
	}
}
