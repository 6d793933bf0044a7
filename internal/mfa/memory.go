package mfa

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore es el backend en memoria para desarrollo y tests.
//
// go-cache se encarga del TTL y el barrido de entradas vencidas; el mutex
// externo serializa los ciclos leer-mutar-escribir para que las transiciones
// sean compare-and-set de verdad (go-cache solo garantiza atomicidad por
// operación, no por ciclo).
type MemoryStore struct {
	mu sync.Mutex
	c  *gocache.Cache
}

// NewMemoryStore crea un store en memoria con barrido cada minuto.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		c: gocache.New(gocache.NoExpiration, time.Minute),
	}
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c.Set(sessionKey(s.Purpose, s.ID), s.clone(), backendTTL(s, time.Now().UTC()))
	return nil
}

func (m *MemoryStore) Get(_ context.Context, purpose Purpose, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.load(purpose, id)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if applyLazyExpiry(s, now) {
		m.c.Set(sessionKey(purpose, id), s.clone(), backendTTL(s, now))
	}
	return s, nil
}

func (m *MemoryStore) Transition(_ context.Context, purpose Purpose, id string, to Status) (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.load(purpose, id)
	if err != nil {
		return nil, false, err
	}
	now := time.Now().UTC()
	won := applyTransition(s, to, now)
	m.c.Set(sessionKey(purpose, id), s.clone(), backendTTL(s, now))
	return s, won, nil
}

func (m *MemoryStore) RecordFailure(_ context.Context, purpose Purpose, id string, max int) (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.load(purpose, id)
	if err != nil {
		return nil, false, err
	}
	now := time.Now().UTC()
	locked := applyFailure(s, max, now)
	m.c.Set(sessionKey(purpose, id), s.clone(), backendTTL(s, now))
	return s, locked, nil
}

func (m *MemoryStore) Consume(_ context.Context, purpose Purpose, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := sessionKey(purpose, id)
	if _, found := m.c.Get(key); !found {
		return false, nil
	}
	m.c.Delete(key)
	return true, nil
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

func (m *MemoryStore) Close() error {
	m.c.Flush()
	return nil
}

// load retorna una copia de la sesión bajo el lock ya tomado.
func (m *MemoryStore) load(purpose Purpose, id string) (*Session, error) {
	v, found := m.c.Get(sessionKey(purpose, id))
	if !found {
		return nil, ErrNotFound
	}
	s, ok := v.(*Session)
	if !ok {
		return nil, ErrNotFound
	}
	return s.clone(), nil
}
