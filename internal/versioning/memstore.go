package versioning

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a Store kept in process memory. It enforces number
// uniqueness under a mutex and suits tests and single-process hosts.
type MemoryStore struct {
	mu       sync.RWMutex
	versions map[OwnerRef][]Version
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{versions: make(map[OwnerRef][]Version)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) AppendVersion(_ context.Context, owner OwnerRef, number int64, changes *Changes, createdAt time.Time) (*Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.versions[owner] {
		if v.Number == number {
			return nil, &ConflictError{Owner: owner, Number: number}
		}
	}

	v := Version{Owner: owner, Number: number, CreatedAt: createdAt, Changes: changes}
	list := append(s.versions[owner], v)
	sort.Slice(list, func(i, j int) bool { return list[i].Number < list[j].Number })
	s.versions[owner] = list
	return &v, nil
}

func (s *MemoryStore) MaxVersionNumber(_ context.Context, owner OwnerRef) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.versions[owner]
	if len(list) == 0 {
		return 0, nil
	}
	return list[len(list)-1].Number, nil
}

func (s *MemoryStore) VersionsInRange(_ context.Context, owner OwnerRef, low, high int64) ([]Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Version, 0)
	for _, v := range s.versions[owner] {
		if v.Number >= low && v.Number <= high {
			result = append(result, v)
		}
	}
	return result, nil
}

func (s *MemoryStore) LatestVersionAtOrBefore(_ context.Context, owner OwnerRef, at time.Time) (*Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *Version
	for i := range s.versions[owner] {
		v := s.versions[owner][i]
		if v.CreatedAt.After(at) {
			continue
		}
		if found == nil || v.Number > found.Number {
			found = &v
		}
	}
	return found, nil
}

func (s *MemoryStore) DeleteAllVersions(_ context.Context, owner OwnerRef) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := int64(len(s.versions[owner]))
	delete(s.versions, owner)
	return count, nil
}
