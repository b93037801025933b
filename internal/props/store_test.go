package props

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
)

func TestMemoryBasics(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, "b", "2"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, "a", "1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := s.Get(ctx, "a")
	if err != nil || !ok || v != "1" {
		t.Fatalf("get a = %q ok=%v err=%v", v, ok, err)
	}
	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"a", "b"}) {
		t.Fatalf("keys = %v", keys)
	}
	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "a"); ok {
		t.Fatalf("deleted key still present")
	}
}

func TestFileRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "props.json")
	s := NewFile(path)

	if _, ok, err := s.Get(ctx, "runs:2026-08-24"); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, "runs:2026-08-24", "3"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, "sched:timers", `[{"id":"x"}]`); err != nil {
		t.Fatalf("set: %v", err)
	}

	// a fresh handle over the same file sees the persisted state
	reopened := NewFile(path)
	v, ok, err := reopened.Get(ctx, "runs:2026-08-24")
	if err != nil || !ok || v != "3" {
		t.Fatalf("reopened get = %q ok=%v err=%v", v, ok, err)
	}
	keys, err := reopened.Keys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"runs:2026-08-24", "sched:timers"}) {
		t.Fatalf("keys = %v", keys)
	}
	if err := reopened.Delete(ctx, "sched:timers"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := NewFile(path).Get(ctx, "sched:timers"); ok {
		t.Fatalf("delete not persisted")
	}
}

func TestFileDeleteMissingKeyIsNoop(t *testing.T) {
	ctx := context.Background()
	s := NewFile(filepath.Join(t.TempDir(), "props.json"))
	if err := s.Delete(ctx, "nope"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}
