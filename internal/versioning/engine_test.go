package versioning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userColumns = []string{"name", "email", "unversioned", "created_at", "updated_at"}

func newTestEngine(store Store, opts ...Option) *Engine {
	opts = append([]Option{WithClock(steppingClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))}, opts...)
	e := New(store, opts...)
	e.Configure("user", userColumns, Policy{Except: []string{"unversioned"}})
	return e
}

// createUser runs the create lifecycle: persist, then record the baseline.
func createUser(t *testing.T, e *Engine, id string, attrs map[string]any) *testRecord {
	t.Helper()
	rec := newTestRecord("user", id, attrs)
	rec.commit()
	_, err := e.RecordInitial(context.Background(), rec)
	require.NoError(t, err)
	return rec
}

// updateUser runs the update lifecycle: record the diff, then commit.
func updateUser(t *testing.T, e *Engine, rec *testRecord, ptr *Pointer, pending *Tracker, attrs map[string]any) *Version {
	t.Helper()
	for k, v := range attrs {
		rec.attrs[k] = v
	}
	v, err := e.RecordIfChanged(context.Background(), rec, ptr, pending)
	require.NoError(t, err)
	rec.commit()
	return v
}

func TestRecordInitialCreatesBaseline(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	e := newTestEngine(store)

	rec := createUser(t, e, "1", map[string]any{"name": "A", "email": "a@example.com"})

	versions, err := store.VersionsInRange(ctx, OwnerOf(rec), 1, 100)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, int64(1), versions[0].Number)
	assert.Nil(t, versions[0].Changes)
	assert.True(t, versions[0].IsBaseline())
}

func TestRecordInitialRequiresIdentity(t *testing.T) {
	e := newTestEngine(NewMemoryStore())
	_, err := e.RecordInitial(context.Background(), newTestRecord("user", "", nil))
	assert.ErrorIs(t, err, ErrUnsavedRecord)
}

func TestRecordIfChangedGatesOnWatchedDiff(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	e := newTestEngine(store)
	rec := createUser(t, e, "1", map[string]any{"name": "A", "unversioned": "x"})
	var ptr Pointer

	v := updateUser(t, e, rec, &ptr, nil, map[string]any{"unversioned": "y", "updated_at": "later"})
	assert.Nil(t, v, "excluded columns alone produce no version")

	v = updateUser(t, e, rec, &ptr, nil, map[string]any{"name": "B", "unversioned": "z"})
	require.NotNil(t, v)
	assert.Equal(t, int64(2), v.Number)
	assert.Equal(t, map[string]Change{"name": {Old: "A", New: "B"}}, v.Changes.Attributes)

	last, err := store.MaxVersionNumber(ctx, OwnerOf(rec))
	require.NoError(t, err)
	assert.Equal(t, int64(2), last)
}

func TestRecordIfChangedUnconfiguredKind(t *testing.T) {
	e := newTestEngine(NewMemoryStore())
	rec := newTestRecord("invoice", "1", map[string]any{"total": 1})
	_, err := e.RecordIfChanged(context.Background(), rec, &Pointer{}, nil)
	assert.ErrorIs(t, err, ErrKindNotVersioned)
}

func TestRecordIfChangedBackfillsBaseline(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	e := newTestEngine(store)

	rec := newTestRecord("user", "1", map[string]any{"name": "A"})
	rec.commit()
	rec.attrs["name"] = "B"

	v, err := e.RecordIfChanged(ctx, rec, &Pointer{}, nil)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, int64(2), v.Number)

	versions, err := store.VersionsInRange(ctx, OwnerOf(rec), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, numbers(versions))
	assert.Nil(t, versions[0].Changes)
}

func TestNumbersAreContiguous(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	e := newTestEngine(store)
	rec := createUser(t, e, "1", map[string]any{"name": "v0"})
	var ptr Pointer

	names := []string{"v1", "v1", "v2", "v3", "v3", "v4"}
	for _, name := range names {
		updateUser(t, e, rec, &ptr, nil, map[string]any{"name": name})
	}

	versions, err := store.VersionsInRange(ctx, OwnerOf(rec), 1, 100)
	require.NoError(t, err)
	for i, v := range versions {
		assert.Equal(t, int64(i+1), v.Number)
	}
	assert.Len(t, versions, 5)
}

func TestRevertScenario(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(NewMemoryStore())
	rec := createUser(t, e, "1", map[string]any{"name": "A"})
	var ptr Pointer

	updateUser(t, e, rec, &ptr, nil, map[string]any{"name": "B"})
	updateUser(t, e, rec, &ptr, nil, map[string]any{"name": "C"})

	reached, err := e.RevertTo(ctx, rec, &ptr, Number(1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), reached)
	assert.Equal(t, "A", rec.attrs["name"])

	reverted, err := e.Reverted(ctx, rec, &ptr)
	require.NoError(t, err)
	assert.True(t, reverted)

	reached, err = e.RevertTo(ctx, rec, &ptr, Number(3))
	require.NoError(t, err)
	assert.Equal(t, int64(3), reached)
	assert.Equal(t, "C", rec.attrs["name"])

	reverted, err = e.Reverted(ctx, rec, &ptr)
	require.NoError(t, err)
	assert.False(t, reverted)
}

func TestRevertRoundTripRestoresEveryAttribute(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(NewMemoryStore())
	rec := createUser(t, e, "1", map[string]any{"name": "A", "email": "a@x"})
	var ptr Pointer

	updateUser(t, e, rec, &ptr, nil, map[string]any{"name": "B"})
	updateUser(t, e, rec, &ptr, nil, map[string]any{"email": "b@x"})
	updateUser(t, e, rec, &ptr, nil, map[string]any{"name": "C", "email": "c@x"})
	updateUser(t, e, rec, &ptr, nil, map[string]any{"name": "D"})

	original := map[string]any{"name": rec.attrs["name"], "email": rec.attrs["email"]}
	from, err := e.CurrentVersion(ctx, rec, &ptr)
	require.NoError(t, err)

	for _, target := range []int64{1, 2, 3, 4} {
		_, err := e.RevertTo(ctx, rec, &ptr, Number(target))
		require.NoError(t, err)
		_, err = e.RevertTo(ctx, rec, &ptr, Number(from))
		require.NoError(t, err)

		assert.Equal(t, original["name"], rec.attrs["name"], "target %d", target)
		assert.Equal(t, original["email"], rec.attrs["email"], "target %d", target)
	}

	_, err = e.RevertTo(ctx, rec, &ptr, Number(3))
	require.NoError(t, err)
	assert.Equal(t, "B", rec.attrs["name"])
	assert.Equal(t, "b@x", rec.attrs["email"])
}

func TestRevertToCurrentIsNoop(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(NewMemoryStore())
	rec := createUser(t, e, "1", map[string]any{"name": "A"})
	var ptr Pointer
	updateUser(t, e, rec, &ptr, nil, map[string]any{"name": "B"})

	reached, err := e.RevertTo(ctx, rec, &ptr, Number(2))
	require.NoError(t, err)
	assert.Equal(t, int64(2), reached)
	assert.Equal(t, "B", rec.attrs["name"])
	assert.Empty(t, rec.written)
}

func TestRevertToUnresolvableLocatorIsNoop(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(NewMemoryStore())
	rec := createUser(t, e, "1", map[string]any{"name": "A"})
	var ptr Pointer
	updateUser(t, e, rec, &ptr, nil, map[string]any{"name": "B"})

	reached, err := e.RevertTo(ctx, rec, &ptr, At(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	assert.Equal(t, int64(2), reached)
	assert.Empty(t, rec.written)

	reached, err = e.RevertTo(ctx, rec, &ptr, Anchor("missing"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), reached)
}

func TestRevertByTimeAndVersion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	e := newTestEngine(store)
	rec := createUser(t, e, "1", map[string]any{"name": "A"})
	var ptr Pointer
	v2 := updateUser(t, e, rec, &ptr, nil, map[string]any{"name": "B"})
	updateUser(t, e, rec, &ptr, nil, map[string]any{"name": "C"})

	reached, err := e.RevertTo(ctx, rec, &ptr, At(v2.CreatedAt.Add(time.Second)))
	require.NoError(t, err)
	assert.Equal(t, int64(2), reached)
	assert.Equal(t, "B", rec.attrs["name"])

	reached, err = e.RevertTo(ctx, rec, &ptr, AnchorFirst)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reached)
	assert.Equal(t, "A", rec.attrs["name"])

	reached, err = e.RevertTo(ctx, rec, &ptr, *v2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), reached)
	assert.Equal(t, "B", rec.attrs["name"])
}

func TestRevertNeverWritesReservedKeys(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	e := New(store)
	e.Configure("user", userColumns, Policy{Timestamps: true})

	rec := createUser(t, e, "1", map[string]any{"name": "A", "updated_at": "t0"})
	var ptr Pointer
	tracker := e.NewTracker(rec, nil)

	tracker.RecordAdd("project", "42")
	updateUser(t, e, rec, &ptr, tracker, map[string]any{"name": "B", "updated_at": "t1"})

	latest, err := e.LatestChanges(ctx, rec, &ptr)
	require.NoError(t, err)
	assert.Contains(t, latest.Keys(), "updated_at")

	_, err = e.RevertTo(ctx, rec, &ptr, Number(1))
	require.NoError(t, err)

	assert.Equal(t, []string{"name"}, rec.written)
	assert.Equal(t, "t1", rec.attrs["updated_at"])
	assert.NotContains(t, rec.attrs, AssociationKey)
}

func TestAssociationEventBecomesVersion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	e := newTestEngine(store)
	rec := createUser(t, e, "1", map[string]any{"name": "A"})
	var ptr Pointer
	tracker := e.NewTracker(rec, nil)

	tracker.RecordAdd("X", "42")
	v := updateUser(t, e, rec, &ptr, tracker, nil)
	require.NotNil(t, v)
	assert.Empty(t, v.Changes.Attributes)
	assert.Equal(t, &AssociationEvent{Action: ActionAdd, RelatedType: "X", RelatedID: "42"}, v.Changes.Association)

	assert.Nil(t, updateUser(t, e, rec, &ptr, tracker, nil), "the event is drained after one version")

	_, err := e.RevertTo(ctx, rec, &ptr, Number(1))
	require.NoError(t, err)
	assert.Empty(t, rec.written)
}

func TestRemovalMessageDrivesSave(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	e := newTestEngine(store)
	rec := createUser(t, e, "1", map[string]any{"name": "A"})
	var ptr Pointer

	var tracker *Tracker
	tracker = e.NewTracker(rec, func(RelationChanged) {
		_, err := e.RecordIfChanged(ctx, rec, &ptr, tracker)
		require.NoError(t, err)
	})

	tracker.RecordRemove("project", "9")

	last, err := store.MaxVersionNumber(ctx, OwnerOf(rec))
	require.NoError(t, err)
	assert.Equal(t, int64(2), last)

	v, err := e.Resolver(rec).At(ctx, AnchorLast)
	require.NoError(t, err)
	assert.Equal(t, ActionRemove, v.Changes.Association.Action)
}

func TestTrackerOwnerFollowsAssignedIdentity(t *testing.T) {
	e := newTestEngine(NewMemoryStore())
	rec := newTestRecord("user", "", map[string]any{"name": "A"})

	var messages []RelationChanged
	tracker := e.NewTracker(rec, func(msg RelationChanged) {
		messages = append(messages, msg)
	})
	assert.Equal(t, OwnerRef{Kind: "user"}, tracker.Owner())

	rec.id = "42"
	tracker.RecordRemove("project", "9")

	require.Len(t, messages, 1)
	assert.Equal(t, OwnerRef{Kind: "user", ID: "42"}, messages[0].Owner)
	assert.Equal(t, OwnerRef{Kind: "user", ID: "42"}, tracker.Owner())
}

func TestDroppedAssociationIsObserved(t *testing.T) {
	observer := &countingObserver{}
	e := newTestEngine(NewMemoryStore(), WithObserver(observer))
	rec := createUser(t, e, "1", map[string]any{"name": "A"})

	tracker := e.NewTracker(rec, nil)
	assert.False(t, tracker.RecordAdd("project", ""))
	assert.Equal(t, 1, observer.dropped)
}

func TestConflictRetriesOnce(t *testing.T) {
	ctx := context.Background()
	observer := &countingObserver{}
	store := &racyStore{MemoryStore: NewMemoryStore(), races: 1}
	e := newTestEngine(store, WithObserver(observer))
	rec := createUser(t, e, "1", map[string]any{"name": "A"})

	v := updateUser(t, e, rec, &Pointer{}, nil, map[string]any{"name": "B"})
	require.NotNil(t, v)
	assert.Equal(t, int64(3), v.Number)
	assert.Equal(t, 1, observer.conflicts)

	versions, err := store.VersionsInRange(ctx, OwnerOf(rec), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, numbers(versions))
}

func TestRepeatedConflictFails(t *testing.T) {
	store := &racyStore{MemoryStore: NewMemoryStore(), races: 2}
	e := newTestEngine(store)
	rec := createUser(t, e, "1", map[string]any{"name": "A"})
	rec.attrs["name"] = "B"

	_, err := e.RecordIfChanged(context.Background(), rec, &Pointer{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVersioningFailed)
	assert.True(t, IsConflict(err))
}

func TestRevertToAndSave(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	e := newTestEngine(store)
	rec := createUser(t, e, "1", map[string]any{"name": "A"})
	var ptr Pointer
	updateUser(t, e, rec, &ptr, nil, map[string]any{"name": "B"})

	save := func(ctx context.Context) error {
		_, err := e.RecordIfChanged(ctx, rec, &ptr, nil)
		if err == nil {
			rec.commit()
		}
		return err
	}

	saved, err := e.RevertToAndSave(ctx, rec, &ptr, Number(1), save)
	require.NoError(t, err)
	assert.True(t, saved)
	assert.Equal(t, Pointer{}, ptr)

	current, err := e.CurrentVersion(ctx, rec, &ptr)
	require.NoError(t, err)
	assert.Equal(t, int64(3), current, "saving a revert appends a new version")
	assert.Equal(t, "A", rec.attrs["name"])
}

func TestRevertToAndSaveKeepsRevertOnFailure(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(NewMemoryStore())
	rec := createUser(t, e, "1", map[string]any{"name": "A"})
	var ptr Pointer
	updateUser(t, e, rec, &ptr, nil, map[string]any{"name": "B"})

	errSave := errors.New("validation failed")
	saved, err := e.RevertToAndSave(ctx, rec, &ptr, Number(1), func(context.Context) error { return errSave })

	assert.False(t, saved)
	assert.Same(t, errSave, err)
	assert.Equal(t, "A", rec.attrs["name"])
	assert.Equal(t, int64(1), ptr.Version)
}

func TestLatestChanges(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(NewMemoryStore())

	unsaved := newTestRecord("user", "404", nil)
	changes, err := e.LatestChanges(ctx, unsaved, &Pointer{})
	require.NoError(t, err)
	assert.True(t, changes.Empty())

	rec := createUser(t, e, "1", map[string]any{"name": "A"})
	var ptr Pointer

	changes, err = e.LatestChanges(ctx, rec, &ptr)
	require.NoError(t, err)
	assert.True(t, changes.Empty())

	updateUser(t, e, rec, &ptr, nil, map[string]any{"name": "B"})
	changes, err = e.LatestChanges(ctx, rec, &ptr)
	require.NoError(t, err)
	assert.Equal(t, Change{Old: "A", New: "B"}, changes.Attributes["name"])
}

func TestForgetRemovesHistory(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	e := newTestEngine(store)
	rec := createUser(t, e, "1", map[string]any{"name": "A"})
	updateUser(t, e, rec, &Pointer{}, nil, map[string]any{"name": "B"})

	removed, err := e.Forget(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	last, err := store.MaxVersionNumber(ctx, OwnerOf(rec))
	require.NoError(t, err)
	assert.Zero(t, last)
}

func TestWithStoreSharesConfiguration(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(NewMemoryStore())
	other := NewMemoryStore()
	bound := e.WithStore(other)

	_, ok := bound.WatchList("user")
	require.True(t, ok)

	e.Configure("project", []string{"title"}, Policy{})
	_, ok = bound.WatchList("project")
	assert.True(t, ok)

	rec := newTestRecord("user", "1", map[string]any{"name": "A"})
	_, err := bound.RecordInitial(ctx, rec)
	require.NoError(t, err)

	last, err := other.MaxVersionNumber(ctx, OwnerOf(rec))
	require.NoError(t, err)
	assert.Equal(t, int64(1), last)

	last, err = e.Store().MaxVersionNumber(ctx, OwnerOf(rec))
	require.NoError(t, err)
	assert.Zero(t, last)
}
