package versioning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrKindNotVersioned is returned for records whose kind was never configured.
var ErrKindNotVersioned = errors.New("versioning: kind is not versioned")

// ErrUnsavedRecord is returned when a record without identity is versioned.
var ErrUnsavedRecord = errors.New("versioning: record has no identity")

// Engine creates versions from host lifecycle events and replays them.
type Engine struct {
	store    Store
	logger   zerolog.Logger
	observer Observer
	now      func() time.Time
	kinds    *kindRegistry
}

type kindRegistry struct {
	mu    sync.RWMutex
	lists map[string]WatchList
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithObserver sets the receiver of engine events.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New returns an engine backed by store.
func New(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		logger:   zerolog.Nop(),
		observer: nopObserver{},
		now:      func() time.Time { return time.Now().UTC() },
		kinds:    &kindRegistry{lists: make(map[string]WatchList)},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Configure enables versioning for kind and computes its watch list.
func (e *Engine) Configure(kind string, columns []string, p Policy) WatchList {
	watched := NewWatchList(columns, p)

	e.kinds.mu.Lock()
	e.kinds.lists[kind] = watched
	e.kinds.mu.Unlock()

	e.logger.Debug().Str("kind", kind).Strs("watched", watched.Names()).Msg("versioning configured")
	return watched
}

// WatchList returns the watch list of kind.
func (e *Engine) WatchList(kind string) (WatchList, bool) {
	e.kinds.mu.RLock()
	defer e.kinds.mu.RUnlock()
	w, ok := e.kinds.lists[kind]
	return w, ok
}

// WithStore returns an engine sharing e's configuration that writes to store,
// e.g. a store bound to the host's open transaction.
func (e *Engine) WithStore(store Store) *Engine {
	clone := *e
	clone.store = store
	return &clone
}

// Store returns the adapter the engine writes to.
func (e *Engine) Store() Store {
	return e.store
}

// Resolver returns a resolver for rec's history.
func (e *Engine) Resolver(rec Record) *Resolver {
	anchors, _ := rec.(AnchorProvider)
	return NewResolver(e.store, OwnerOf(rec), anchors)
}

// NewTracker returns a relation tracker for rec whose dropped events are
// reported to the engine observer.
func (e *Engine) NewTracker(rec Record, notify func(RelationChanged)) *Tracker {
	t := newRecordTracker(rec, notify)
	t.OnDrop(func(event AssociationEvent) {
		owner := t.Owner()
		e.observer.AssociationDropped(owner.Kind)
		e.logger.Debug().Str("owner", owner.String()).Str("related_type", event.RelatedType).
			Msg("relation event dropped: related record has no identity")
	})
	return t
}

// RecordInitial appends the baseline version of a newly created record.
func (e *Engine) RecordInitial(ctx context.Context, rec Record) (*Version, error) {
	owner, err := e.owner(rec)
	if err != nil {
		return nil, err
	}
	return e.appendBaseline(ctx, owner)
}

// RecordIfChanged appends a version when the watched attributes or the
// pending relation event changed since the last save. It returns nil when no
// version was needed.
func (e *Engine) RecordIfChanged(ctx context.Context, rec Record, ptr *Pointer, pending *Tracker) (*Version, error) {
	owner, err := e.owner(rec)
	if err != nil {
		return nil, err
	}
	watched, ok := e.WatchList(owner.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKindNotVersioned, owner.Kind)
	}

	last, err := e.store.MaxVersionNumber(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("read last version of %s: %w", owner, err)
	}
	if last == 0 {
		if _, err := e.appendBaseline(ctx, owner); err != nil {
			return nil, err
		}
		last = 1
	}

	attributes := ComputeDiff(rec.PreviousSnapshot(), rec.CurrentSnapshot(), watched)
	changes := mergeChanges(attributes, pending.Drain())
	if changes.Empty() {
		return nil, nil
	}

	v, err := e.append(ctx, owner, last+1, changes)
	if err != nil {
		return nil, err
	}
	if ptr != nil {
		ptr.Reset()
	}

	e.observer.VersionCreated(owner.Kind)
	e.logger.Debug().Str("owner", owner.String()).Int64("number", v.Number).
		Strs("changes", changes.Keys()).Msg("version recorded")
	return v, nil
}

// LastVersion returns the newest stored number, caching it in ptr.
func (e *Engine) LastVersion(ctx context.Context, rec Record, ptr *Pointer) (int64, error) {
	if ptr.LastVersion != 0 {
		return ptr.LastVersion, nil
	}
	last, err := e.store.MaxVersionNumber(ctx, OwnerOf(rec))
	if err != nil {
		return 0, err
	}
	ptr.LastVersion = last
	return last, nil
}

// CurrentVersion returns the number the in-memory record represents.
func (e *Engine) CurrentVersion(ctx context.Context, rec Record, ptr *Pointer) (int64, error) {
	if ptr.Version != 0 {
		return ptr.Version, nil
	}
	last, err := e.LastVersion(ctx, rec, ptr)
	if err != nil {
		return 0, err
	}
	ptr.Version = last
	return last, nil
}

// Reverted reports whether the in-memory record sits behind its history.
func (e *Engine) Reverted(ctx context.Context, rec Record, ptr *Pointer) (bool, error) {
	current, err := e.CurrentVersion(ctx, rec, ptr)
	if err != nil {
		return false, err
	}
	last, err := e.LastVersion(ctx, rec, ptr)
	if err != nil {
		return false, err
	}
	return current != last, nil
}

// LatestChanges returns the diff that produced the record's current version.
// Version 1 and unversioned records yield an empty diff.
func (e *Engine) LatestChanges(ctx context.Context, rec Record, ptr *Pointer) (*Changes, error) {
	current, err := e.CurrentVersion(ctx, rec, ptr)
	if err != nil {
		return nil, err
	}
	if current <= 1 {
		return &Changes{}, nil
	}

	v, err := e.Resolver(rec).At(ctx, Number(current))
	if err != nil {
		return nil, err
	}
	if v == nil || v.Changes == nil {
		return &Changes{}, nil
	}
	return v.Changes, nil
}

// RevertTo replays history onto rec's in-memory attributes until it matches
// the version at loc, and returns the number reached. Nothing is persisted.
func (e *Engine) RevertTo(ctx context.Context, rec Record, ptr *Pointer, loc Locator) (int64, error) {
	current, err := e.CurrentVersion(ctx, rec, ptr)
	if err != nil {
		return 0, err
	}
	if current == 0 {
		return 0, nil
	}

	resolver := e.Resolver(rec)
	target, ok, err := resolver.NumberAt(ctx, loc)
	if err != nil {
		return current, err
	}
	if !ok || target == current {
		return current, nil
	}

	chain, err := resolver.between(ctx, current, target)
	if err != nil {
		return current, err
	}
	if len(chain) == 0 {
		return current, nil
	}

	reached := chain[len(chain)-1].Number
	backward := chain[0].Number > reached
	if backward {
		chain = chain[:len(chain)-1]
	} else {
		chain = chain[1:]
	}

	for _, v := range chain {
		if v.Changes == nil {
			continue
		}
		for name, change := range v.Changes.Attributes {
			if !Revertable(name) {
				continue
			}
			if backward {
				rec.WriteAttribute(name, change.Old)
			} else {
				rec.WriteAttribute(name, change.New)
			}
		}
	}

	ptr.moveTo(reached)

	owner := OwnerOf(rec)
	e.observer.Reverted(owner.Kind, backward)
	e.logger.Debug().Str("owner", owner.String()).Int64("from", current).Int64("to", reached).
		Bool("backward", backward).Msg("record reverted")
	return reached, nil
}

// RevertToAndSave reverts rec and persists it with save. A failed save is
// returned as-is with false; the in-memory revert is kept.
func (e *Engine) RevertToAndSave(ctx context.Context, rec Record, ptr *Pointer, loc Locator, save func(context.Context) error) (bool, error) {
	if _, err := e.RevertTo(ctx, rec, ptr, loc); err != nil {
		return false, err
	}
	if err := save(ctx); err != nil {
		return false, err
	}
	ptr.Reset()
	return true, nil
}

// Forget removes the history of a destroyed record.
func (e *Engine) Forget(ctx context.Context, rec Record) (int64, error) {
	owner, err := e.owner(rec)
	if err != nil {
		return 0, err
	}
	return e.store.DeleteAllVersions(ctx, owner)
}

func (e *Engine) owner(rec Record) (OwnerRef, error) {
	owner := OwnerOf(rec)
	if owner.ID == "" {
		return owner, ErrUnsavedRecord
	}
	return owner, nil
}

func (e *Engine) appendBaseline(ctx context.Context, owner OwnerRef) (*Version, error) {
	v, err := e.store.AppendVersion(ctx, owner, 1, nil, e.now())
	if err == nil {
		e.observer.VersionCreated(owner.Kind)
		return v, nil
	}
	if !IsConflict(err) {
		return nil, fmt.Errorf("record baseline of %s: %w", owner, err)
	}

	// Another writer created the baseline first.
	existing, err := NewResolver(e.store, owner, nil).byNumber(ctx, 1)
	if err != nil {
		return nil, err
	}
	return existing, nil
}

func (e *Engine) append(ctx context.Context, owner OwnerRef, number int64, changes *Changes) (*Version, error) {
	v, err := e.store.AppendVersion(ctx, owner, number, changes, e.now())
	if err == nil {
		return v, nil
	}
	if !IsConflict(err) {
		return nil, fmt.Errorf("append version %d of %s: %w", number, owner, err)
	}

	e.observer.Conflict(owner.Kind)
	e.logger.Warn().Str("owner", owner.String()).Int64("number", number).Msg("version number taken, retrying")

	last, err := e.store.MaxVersionNumber(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("re-read last version of %s: %w", owner, err)
	}
	v, err = e.store.AppendVersion(ctx, owner, last+1, changes, e.now())
	if err == nil {
		return v, nil
	}
	if IsConflict(err) {
		e.observer.Conflict(owner.Kind)
		return nil, fmt.Errorf("%w: %w", ErrVersioningFailed, err)
	}
	return nil, fmt.Errorf("append version %d of %s: %w", last+1, owner, err)
}
