package kvstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vestalhq/vestal/internal/versioning"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
}

func TestOpenOnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	owner := versioning.OwnerRef{Kind: "note", ID: "1"}

	store, err := Open(Config{Path: dir, SyncWrites: true})
	require.NoError(t, err)
	_, err = store.AppendVersion(ctx, owner, 1, nil, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(Config{Path: dir})
	require.NoError(t, err)
	defer reopened.Close()

	n, err := reopened.MaxVersionNumber(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAppendAndRead(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	owner := versioning.OwnerRef{Kind: "note", ID: "1"}
	start := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	n, err := store.MaxVersionNumber(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = store.AppendVersion(ctx, owner, 1, nil, start)
	require.NoError(t, err)

	changes := &versioning.Changes{
		Attributes:  map[string]versioning.Change{"title": {Old: "a", New: "b"}},
		Association: &versioning.AssociationEvent{Action: versioning.ActionAdd, RelatedType: "user", RelatedID: "7"},
	}
	created, err := store.AppendVersion(ctx, owner, 2, changes, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), created.Number)

	n, err = store.MaxVersionNumber(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	versions, err := store.VersionsInRange(ctx, owner, 1, 2)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Nil(t, versions[0].Changes)
	assert.Equal(t, changes, versions[1].Changes)
	assert.True(t, start.Equal(versions[0].CreatedAt))
	assert.Equal(t, owner, versions[1].Owner)
}

func TestAppendConflict(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	owner := versioning.OwnerRef{Kind: "note", ID: "1"}

	_, err := store.AppendVersion(ctx, owner, 1, nil, time.Now())
	require.NoError(t, err)

	_, err = store.AppendVersion(ctx, owner, 1, nil, time.Now())
	require.Error(t, err)
	assert.True(t, versioning.IsConflict(err))
}

func TestConcurrentAppendsKeepNumbersUnique(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	owner := versioning.OwnerRef{Kind: "note", ID: "1"}

	const writers = 8
	var wg sync.WaitGroup
	results := make(chan error, writers)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.AppendVersion(ctx, owner, 1, nil, time.Now())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, versioning.IsConflict(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)
}

func TestOwnersDoNotOverlap(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	short := versioning.OwnerRef{Kind: "note", ID: "1"}
	long := versioning.OwnerRef{Kind: "note", ID: "12"}

	for n := int64(1); n <= 3; n++ {
		_, err := store.AppendVersion(ctx, long, n, nil, time.Now())
		require.NoError(t, err)
	}
	_, err := store.AppendVersion(ctx, short, 1, nil, time.Now())
	require.NoError(t, err)

	n, err := store.MaxVersionNumber(ctx, short)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	versions, err := store.VersionsInRange(ctx, short, 1, 10)
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestVersionsInRangeBounds(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	owner := versioning.OwnerRef{Kind: "note", ID: "1"}
	for n := int64(1); n <= 300; n++ {
		_, err := store.AppendVersion(ctx, owner, n, nil, time.Now())
		require.NoError(t, err)
	}

	versions, err := store.VersionsInRange(ctx, owner, 255, 257)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, int64(255), versions[0].Number)
	assert.Equal(t, int64(257), versions[2].Number)

	versions, err = store.VersionsInRange(ctx, owner, 5, 2)
	require.NoError(t, err)
	assert.Empty(t, versions)

	n, err := store.MaxVersionNumber(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(300), n)
}

func TestLatestVersionAtOrBefore(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	owner := versioning.OwnerRef{Kind: "note", ID: "1"}
	start := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	for n := int64(1); n <= 3; n++ {
		_, err := store.AppendVersion(ctx, owner, n, nil, start.Add(time.Duration(n)*time.Hour))
		require.NoError(t, err)
	}

	v, err := store.LatestVersionAtOrBefore(ctx, owner, start.Add(2*time.Hour+time.Minute))
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, int64(2), v.Number)

	v, err = store.LatestVersionAtOrBefore(ctx, owner, start.Add(2*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, int64(2), v.Number)

	v, err = store.LatestVersionAtOrBefore(ctx, owner, start)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestDeleteAllVersions(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	owner := versioning.OwnerRef{Kind: "note", ID: "1"}
	other := versioning.OwnerRef{Kind: "note", ID: "2"}
	for n := int64(1); n <= 3; n++ {
		_, err := store.AppendVersion(ctx, owner, n, nil, time.Now())
		require.NoError(t, err)
	}
	_, err := store.AppendVersion(ctx, other, 1, nil, time.Now())
	require.NoError(t, err)

	deleted, err := store.DeleteAllVersions(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	n, err := store.MaxVersionNumber(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = store.MaxVersionNumber(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	deleted, err = store.DeleteAllVersions(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestEngineOnBadger(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	engine := versioning.New(store)
	engine.Configure("note", []string{"title"}, versioning.Policy{})

	rec := &noteRecord{id: "1", prev: map[string]any{}, cur: map[string]any{"title": "first"}}
	baseline, err := engine.RecordInitial(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, int64(1), baseline.Number)

	rec.commit()
	rec.cur["title"] = "second"
	v, err := engine.RecordIfChanged(ctx, rec, &versioning.Pointer{}, nil)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, int64(2), v.Number)

	rec.commit()
	reached, err := engine.RevertTo(ctx, rec, &versioning.Pointer{}, versioning.Number(1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), reached)
	assert.Equal(t, "first", rec.cur["title"])
}

type noteRecord struct {
	id        string
	prev, cur map[string]any
}

func (r *noteRecord) Identity() string                  { return r.id }
func (r *noteRecord) KindName() string                  { return "note" }
func (r *noteRecord) PreviousSnapshot() map[string]any  { return r.prev }
func (r *noteRecord) CurrentSnapshot() map[string]any   { return r.cur }
func (r *noteRecord) WriteAttribute(name string, v any) { r.cur[name] = v }

func (r *noteRecord) commit() {
	r.prev = make(map[string]any, len(r.cur))
	for k, v := range r.cur {
		r.prev[k] = v
	}
}
