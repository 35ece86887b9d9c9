package flagstore

import (
	"context"
	"sync"
)

type MemFlagStore struct {
	mu   *sync.Mutex
	Data map[string]map[string]bool
}

var _ FlagStore = (*MemFlagStore)(nil)

func NewMemFlagStore() MemFlagStore {
	return MemFlagStore{
		mu:   &sync.Mutex{},
		Data: make(map[string]map[string]bool),
	}
}

func (s MemFlagStore) Get(ctx context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedFlags(s.Data[key]), nil
}

func (s MemFlagStore) Add(ctx context.Context, key string, flags []string) error {
	if len(flags) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.Data[key]
	if !ok {
		m = make(map[string]bool, len(flags))
		s.Data[key] = m
	}
	for _, f := range flags {
		m[f] = true
	}
	return nil
}

func (s MemFlagStore) AddNew(ctx context.Context, key, flag string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.Data[key]
	if !ok {
		m = make(map[string]bool, 1)
		s.Data[key] = m
	}
	if m[flag] {
		return false, nil
	}
	m[flag] = true
	return true, nil
}

func (s MemFlagStore) Remove(ctx context.Context, key string, flags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.Data[key]
	if !ok {
		return nil
	}
	for _, f := range flags {
		delete(m, f)
	}
	if len(m) == 0 {
		delete(s.Data, key)
	}
	return nil
}
