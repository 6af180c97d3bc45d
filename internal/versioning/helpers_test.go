package versioning

import (
	"context"
	"maps"
	"time"
)

type testRecord struct {
	kind    string
	id      string
	attrs   map[string]any
	saved   map[string]any
	anchors map[string]Locator
	written []string
}

func newTestRecord(kind, id string, attrs map[string]any) *testRecord {
	return &testRecord{kind: kind, id: id, attrs: maps.Clone(attrs), saved: map[string]any{}}
}

func (r *testRecord) Identity() string                 { return r.id }
func (r *testRecord) KindName() string                 { return r.kind }
func (r *testRecord) PreviousSnapshot() map[string]any { return r.saved }
func (r *testRecord) CurrentSnapshot() map[string]any  { return r.attrs }

func (r *testRecord) WriteAttribute(name string, value any) {
	r.attrs[name] = value
	r.written = append(r.written, name)
}

func (r *testRecord) commit() {
	r.saved = maps.Clone(r.attrs)
}

type anchoredRecord struct {
	*testRecord
}

func (r anchoredRecord) VersionAnchor(name string) (Locator, bool) {
	loc, ok := r.anchors[name]
	return loc, ok
}

func steppingClock(start time.Time) func() time.Time {
	n := 0
	return func() time.Time {
		n++
		return start.Add(time.Duration(n) * time.Minute)
	}
}

// racyStore simulates another writer taking the next number before each of
// the first `races` appends.
type racyStore struct {
	*MemoryStore
	races int
}

func (s *racyStore) AppendVersion(ctx context.Context, owner OwnerRef, number int64, changes *Changes, createdAt time.Time) (*Version, error) {
	if s.races > 0 && number > 1 {
		s.races--
		if _, err := s.MemoryStore.AppendVersion(ctx, owner, number, &Changes{}, createdAt); err != nil {
			return nil, err
		}
		return nil, &ConflictError{Owner: owner, Number: number}
	}
	return s.MemoryStore.AppendVersion(ctx, owner, number, changes, createdAt)
}

type countingObserver struct {
	created, conflicts, dropped int
	backward, forward           int
}

func (o *countingObserver) VersionCreated(string)     { o.created++ }
func (o *countingObserver) Conflict(string)           { o.conflicts++ }
func (o *countingObserver) AssociationDropped(string) { o.dropped++ }
func (o *countingObserver) Reverted(_ string, backward bool) {
	if backward {
		o.backward++
	} else {
		o.forward++
	}
}
