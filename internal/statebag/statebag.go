package statebag

import (
	"sort"
	"sync"
)

// Bag holds the replicated key/value state of one player.
type Bag struct {
	Name string
	Data map[string]any
}

// Store owns the per-player state bags, keyed by "player:<netId>".
// Registration and removal follow player join and drop.
type Store struct {
	m    sync.Mutex
	bags map[string]*Bag
}

func NewStore() *Store {
	return &Store{bags: make(map[string]*Bag)}
}

// Register creates the bag for name, replacing any stale bag left behind.
func (s *Store) Register(name string) *Bag {
	s.m.Lock()
	defer s.m.Unlock()
	b := &Bag{Name: name, Data: make(map[string]any)}
	s.bags[name] = b
	return b
}

func (s *Store) Unregister(name string) {
	s.m.Lock()
	defer s.m.Unlock()
	delete(s.bags, name)
}

func (s *Store) Get(name string) (*Bag, bool) {
	s.m.Lock()
	defer s.m.Unlock()
	b, ok := s.bags[name]
	return b, ok
}

// Names returns the registered bag names in sorted order.
func (s *Store) Names() []string {
	s.m.Lock()
	defer s.m.Unlock()
	names := make([]string, 0, len(s.bags))
	for n := range s.bags {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s *Store) Reset() {
	s.m.Lock()
	defer s.m.Unlock()
	s.bags = make(map[string]*Bag)
}
