package photos

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	payload := []byte("jpeg-bytes")
	handle, err := store.Put(ctx, payload, "image/jpeg")
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}
	payload[0] = 'X'

	got, err := store.Resolve(ctx, handle)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if string(got) != "jpeg-bytes" {
		t.Fatalf("expected stored copy to be independent of caller buffer, got %q", got)
	}
}

func TestMemoryStoreUnknownHandle(t *testing.T) {
	_, err := NewMemoryStore().Resolve(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreExpiresPhotos(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemoryStore(WithTTL(time.Minute))
	store.now = func() time.Time { return now }
	ctx := context.Background()

	old, err := store.Put(ctx, []byte("old"), "image/jpeg")
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}

	now = now.Add(time.Minute)
	if _, err := store.Resolve(ctx, old); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired photo to be gone, got %v", err)
	}

	fresh, err := store.Put(ctx, []byte("fresh"), "image/jpeg")
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if got := store.Len(); got != 1 {
		t.Fatalf("expected expired photo to be swept on put, store holds %d", got)
	}
	if _, err := store.Resolve(ctx, fresh); err != nil {
		t.Fatalf("expected fresh photo, got %v", err)
	}
}

func TestMemoryStoreDropsOldestAtCapacity(t *testing.T) {
	store := NewMemoryStore(WithMaxItems(2))
	ctx := context.Background()

	var handles []string
	for _, body := range []string{"a", "b", "c"} {
		h, err := store.Put(ctx, []byte(body), "image/jpeg")
		if err != nil {
			t.Fatalf("put failed: %v", err)
		}
		handles = append(handles, h)
	}

	if got := store.Len(); got != 2 {
		t.Fatalf("expected 2 photos, got %d", got)
	}
	if _, err := store.Resolve(ctx, handles[0]); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected oldest photo to be dropped, got %v", err)
	}
	for _, h := range handles[1:] {
		if _, err := store.Resolve(ctx, h); err != nil {
			t.Fatalf("expected %s to be kept, got %v", h, err)
		}
	}
}
