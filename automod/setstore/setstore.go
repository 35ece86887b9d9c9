// Named sets of strings, used for configuration-style lookups such as the set of flagged language tags.
package setstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Name of the set holding ISO 639-1 language tags which trigger inspection.
const FlaggedLanguages = "flagged-languages"

type SetStore interface {
	InSet(ctx context.Context, name, val string) (bool, error)
}

type MemSetStore struct {
	mu   *sync.RWMutex
	Sets map[string]map[string]bool
}

var _ SetStore = (*MemSetStore)(nil)

func NewMemSetStore() MemSetStore {
	return MemSetStore{
		mu:   &sync.RWMutex{},
		Sets: make(map[string]map[string]bool),
	}
}

// Returns false, with no error, when the set itself does not exist.
func (s MemSetStore) InSet(ctx context.Context, name, val string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Sets[name][val], nil
}

// Adds values to the named set, creating it if needed. Values are trimmed and lower-cased; empty values are
// ignored.
func (s MemSetStore) Add(name string, vals ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.Sets[name]
	if !ok {
		m = make(map[string]bool, len(vals))
		s.Sets[name] = m
	}
	for _, v := range vals {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			m[v] = true
		}
	}
}

// Loads sets from a JSON file shaped as an object of name to string list. Sets present in the file replace
// any existing set with the same name.
func (s MemSetStore) LoadFromFileJSON(p string) error {
	raw, err := os.ReadFile(p)
	if err != nil {
		return err
	}

	var sets map[string][]string
	if err := json.Unmarshal(raw, &sets); err != nil {
		return fmt.Errorf("parsing set file %s: %w", p, err)
	}

	for name, l := range sets {
		s.mu.Lock()
		delete(s.Sets, name)
		s.mu.Unlock()
		s.Add(name, l...)
	}
	return nil
}
