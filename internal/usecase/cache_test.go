package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/aerofindr/internal/logging"
	"github.com/example/aerofindr/internal/lookup"
)

type stubCache struct {
	setErrs   []error
	getErrs   []error
	getValues []string
	setKeys   []string
	setValues []interface{}
	getKeys   []string
}

func (s *stubCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	s.setKeys = append(s.setKeys, key)
	s.setValues = append(s.setValues, value)
	if len(s.setErrs) == 0 {
		return nil
	}
	err := s.setErrs[0]
	s.setErrs = s.setErrs[1:]
	return err
}

func (s *stubCache) Get(ctx context.Context, key string) (string, error) {
	s.getKeys = append(s.getKeys, key)
	var value string
	if len(s.getValues) > 0 {
		value = s.getValues[0]
		s.getValues = s.getValues[1:]
	}
	var err error
	if len(s.getErrs) > 0 {
		err = s.getErrs[0]
		s.getErrs = s.getErrs[1:]
	}
	return value, err
}

type transientRedisError struct{}

func (transientRedisError) Error() string   { return "redis transient" }
func (transientRedisError) Timeout() bool   { return true }
func (transientRedisError) Temporary() bool { return true }

func newTestStateCache(cache Cache) *StateCache {
	c := NewStateCache(cache, time.Minute, zap.NewNop())
	c.initialBackoff = time.Millisecond
	c.maxBackoff = 2 * time.Millisecond
	return c
}

func TestStateCachePublishRetriesTransientErrors(t *testing.T) {
	cache := &stubCache{setErrs: []error{transientRedisError{}}}
	sc := newTestStateCache(cache)

	st := State{FlightInfo: &lookup.FlightInfo{ID: "UA123"}, Generation: 3}
	if err := sc.Publish(context.Background(), "user-1", st); err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if len(cache.setKeys) != 2 {
		t.Fatalf("expected 2 set calls, got %d", len(cache.setKeys))
	}
	if cache.setKeys[0] != "lookup_state:user-1" || cache.setKeys[0] != cache.setKeys[1] {
		t.Fatalf("unexpected keys: %v", cache.setKeys)
	}

	var decoded State
	if err := json.Unmarshal([]byte(cache.setValues[1].(string)), &decoded); err != nil {
		t.Fatalf("stored value is not a state: %v", err)
	}
	if decoded.FlightInfo == nil || decoded.FlightInfo.ID != "UA123" || decoded.Generation != 3 {
		t.Fatalf("unexpected stored state: %+v", decoded)
	}
}

func TestStateCachePublishReturnsOperationError(t *testing.T) {
	cache := &stubCache{setErrs: []error{errors.New("boom")}}
	sc := newTestStateCache(cache)

	err := sc.Publish(context.Background(), "user-1", State{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if opErr.Operation != "cache.set.state" || opErr.RequestID != "user-1" {
		t.Fatalf("unexpected operation error: %+v", opErr)
	}
	if len(cache.setKeys) != 1 {
		t.Fatalf("expected no retry for a permanent error, got %d calls", len(cache.setKeys))
	}
}

func TestStateCacheLoadMiss(t *testing.T) {
	cache := &stubCache{getErrs: []error{redis.Nil}}
	sc := newTestStateCache(cache)

	_, found, err := sc.Load(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected miss without error, got %v", err)
	}
	if found {
		t.Fatal("expected miss")
	}
	if len(cache.getKeys) != 1 {
		t.Fatalf("expected a single get on miss, got %d", len(cache.getKeys))
	}
}

func TestStateFallsBackToStateCache(t *testing.T) {
	payload, _ := json.Marshal(State{ErrorMessage: EmptyResultMessage, Generation: 7})
	cache := &stubCache{getValues: []string{string(payload)}}
	uc := NewFlightLookupUseCase(&stubClient{}, nil, zap.NewNop(), WithStateReader(newTestStateCache(cache)))

	st, err := uc.State(context.Background(), "user-9")
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if st.Generation != 7 || st.ErrorMessage != EmptyResultMessage {
		t.Fatalf("unexpected state: %+v", st)
	}
	if cache.getKeys[0] != "lookup_state:user-9" {
		t.Fatalf("unexpected key: %s", cache.getKeys[0])
	}
}
