package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type counter struct {
	N int `json:"n"`
}

func openSQLite(t *testing.T, ttl time.Duration) *SQLite {
	t.Helper()
	tmp := t.TempDir()
	store, err := OpenSQLite(filepath.Join(tmp, "sessions.db"), filepath.Join(tmp, "sessions.lock"), "sessions", ttl)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoresSetGetDelete(t *testing.T) {
	stores := map[string]Store{
		"memory": NewMemory(0),
		"sqlite": openSQLite(t, 0),
	}
	ctx := context.Background()
	for name, store := range stores {
		if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
			t.Fatalf("%s: expected miss, got ok=%v err=%v", name, ok, err)
		}
		if err := store.Set(ctx, "k", []byte("v1")); err != nil {
			t.Fatalf("%s: Set failed: %v", name, err)
		}
		if err := store.Set(ctx, "k", []byte("v2")); err != nil {
			t.Fatalf("%s: overwrite failed: %v", name, err)
		}
		got, ok, err := store.Get(ctx, "k")
		if err != nil || !ok || string(got) != "v2" {
			t.Fatalf("%s: expected last write to win, got %q ok=%v err=%v", name, got, ok, err)
		}
		if err := store.Delete(ctx, "k"); err != nil {
			t.Fatalf("%s: Delete failed: %v", name, err)
		}
		if _, ok, _ := store.Get(ctx, "k"); ok {
			t.Fatalf("%s: expected key to be deleted", name)
		}
	}
}

func TestMemoryExpiresEntries(t *testing.T) {
	store := NewMemory(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }
	if err := store.Set(context.Background(), "k", []byte("v")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	store.now = func() time.Time { return now.Add(2 * time.Minute) }
	if _, ok, _ := store.Get(context.Background(), "k"); ok {
		t.Fatal("expected entry to expire")
	}
}

func TestSQLiteExpiresEntries(t *testing.T) {
	store := openSQLite(t, time.Second)
	if err := store.Set(context.Background(), "k", []byte("v")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(2100 * time.Millisecond)
	if _, ok, err := store.Get(context.Background(), "k"); err != nil || ok {
		t.Fatalf("expected expired miss, got ok=%v err=%v", ok, err)
	}
	if err := store.Prune(); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
}

func TestSQLiteConcurrentOpenAndSet(t *testing.T) {
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "sessions.db")
	lockPath := filepath.Join(tmp, "sessions.lock")

	const workers = 8
	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			store, err := OpenSQLite(dbPath, lockPath, "sessions", 0)
			if err != nil {
				errCh <- fmt.Errorf("worker %d open: %w", worker, err)
				return
			}
			defer store.Close()
			for i := 0; i < 10; i++ {
				if err := store.Set(context.Background(), fmt.Sprintf("w%d-%d", worker, i), []byte("x")); err != nil {
					errCh <- fmt.Errorf("worker %d set: %w", worker, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatal(err)
	}
}

func TestKeyedUpdateIsAtomicPerKey(t *testing.T) {
	keyed := NewKeyed[counter](NewMemory(0), "counter")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := keyed.Update(ctx, "u1", func(cur counter, _ bool) (counter, error) {
				cur.N++
				return cur, nil
			})
			if err != nil {
				t.Errorf("Update failed: %v", err)
			}
		}()
	}
	wg.Wait()

	got, ok, err := keyed.Get(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	if got.N != 50 {
		t.Fatalf("expected 50 increments, got %d", got.N)
	}
}

func TestKeyedUpdateErrorKeepsValue(t *testing.T) {
	keyed := NewKeyed[counter](NewMemory(0), "counter")
	ctx := context.Background()
	if err := keyed.Save(ctx, "u1", counter{N: 3}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	_, err := keyed.Update(ctx, "u1", func(cur counter, _ bool) (counter, error) {
		return counter{N: 99}, fmt.Errorf("rejected")
	})
	if err == nil {
		t.Fatal("expected update error")
	}
	got, _, _ := keyed.Get(ctx, "u1")
	if got.N != 3 {
		t.Fatalf("expected value to stay 3, got %d", got.N)
	}
}

func TestNewRedisFailsWithoutServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := NewRedis(ctx, RedisConfig{Address: "127.0.0.1:1"}); err == nil {
		t.Fatal("expected connection error")
	}
	if _, err := NewRedis(ctx, RedisConfig{}); err == nil {
		t.Fatal("expected error for empty address")
	}
}
