package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go-report-checkout/form"

	"github.com/redis/go-redis/v9"
)

var ErrSessionNotFound = errors.New("form session not found")

// SessionStorage keeps the last view snapshot of every form instance so a
// reloaded page, or another replica, can render it again.
// Implementations must be safe for concurrent use.
type SessionStorage interface {
	// StoreView overwrites any snapshot already stored for formId.
	StoreView(formId string, view form.View) error

	// RetrieveView returns ErrSessionNotFound when nothing is stored.
	RetrieveView(formId string) (form.View, error)

	// RemoveView fails when there is nothing to remove.
	RemoveView(formId string) error
}

type InMemorySessionStorage struct {
	views map[string]form.View
	mutex sync.Mutex
}

func NewInMemorySessionStorage() *InMemorySessionStorage {
	return &InMemorySessionStorage{
		views: make(map[string]form.View),
	}
}

type RedisSessionStorage struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// SessionTimeout is how long a snapshot outlives its last update.
const SessionTimeout time.Duration = 24 * time.Hour

func NewRedisSessionStorage(client *redis.Client, namespace string) *RedisSessionStorage {
	return &RedisSessionStorage{client: client, namespace: namespace, ttl: SessionTimeout}
}

// ------------------------------------------------------------------------------

func createKey(namespace, formId string) string {
	return fmt.Sprintf("%s:form:%s", namespace, formId)
}

func (s *RedisSessionStorage) StoreView(formId string, view form.View) error {
	payload, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to marshal view: %w", err)
	}
	ctx := context.Background()
	return s.client.Set(ctx, createKey(s.namespace, formId), payload, s.ttl).Err()
}

func (s *RedisSessionStorage) RetrieveView(formId string) (form.View, error) {
	ctx := context.Background()
	payload, err := s.client.Get(ctx, createKey(s.namespace, formId)).Bytes()
	if errors.Is(err, redis.Nil) {
		return form.View{}, fmt.Errorf("%w: %s", ErrSessionNotFound, formId)
	}
	if err != nil {
		return form.View{}, err
	}

	var view form.View
	if err := json.Unmarshal(payload, &view); err != nil {
		return form.View{}, fmt.Errorf("failed to unmarshal view: %w", err)
	}
	return view, nil
}

func (s *RedisSessionStorage) RemoveView(formId string) error {
	ctx := context.Background()
	removed, err := s.client.Del(ctx, createKey(s.namespace, formId)).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, formId)
	}
	return nil
}

// ------------------------------------------------------------------------------

func (s *InMemorySessionStorage) StoreView(formId string, view form.View) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.views[formId] = view
	return nil
}

func (s *InMemorySessionStorage) RetrieveView(formId string) (form.View, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if view, ok := s.views[formId]; ok {
		return view, nil
	}
	return form.View{}, fmt.Errorf("%w: %s", ErrSessionNotFound, formId)
}

func (s *InMemorySessionStorage) RemoveView(formId string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.views[formId]; !ok {
		return fmt.Errorf("failed to remove view for %s, because it wasn't there: %w", formId, ErrSessionNotFound)
	}
	delete(s.views, formId)
	return nil
}
