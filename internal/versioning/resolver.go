package versioning

import (
	"context"
	"fmt"
	"time"
)

// Resolver turns locators into versions for one owner.
type Resolver struct {
	store   Store
	owner   OwnerRef
	anchors AnchorProvider
}

// NewResolver returns a resolver over store for owner. anchors may be nil.
func NewResolver(store Store, owner OwnerRef, anchors AnchorProvider) *Resolver {
	return &Resolver{store: store, owner: owner, anchors: anchors}
}

// At resolves loc to a concrete version, or nil when nothing matches.
func (r *Resolver) At(ctx context.Context, loc Locator) (*Version, error) {
	return r.at(ctx, loc, nil)
}

// at carries the custom anchors already followed so that a cycle resolves to
// nothing instead of recursing forever.
func (r *Resolver) at(ctx context.Context, loc Locator, seen map[Anchor]bool) (*Version, error) {
	switch l := loc.(type) {
	case Version:
		v := l
		return &v, nil
	case *Version:
		return l, nil
	case Number:
		return r.byNumber(ctx, l.floor())
	case Anchor:
		return r.byAnchor(ctx, l, seen)
	case Instant:
		return r.store.LatestVersionAtOrBefore(ctx, r.owner, time.Time(l))
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("versioning: unsupported locator %T", loc)
	}
}

// NumberAt resolves loc to a version number. Numbers pass through floored
// without a storage round trip.
func (r *Resolver) NumberAt(ctx context.Context, loc Locator) (int64, bool, error) {
	switch l := loc.(type) {
	case Version:
		return l.Number, true, nil
	case *Version:
		if l == nil {
			return 0, false, nil
		}
		return l.Number, true, nil
	case Number:
		return l.floor(), true, nil
	}

	v, err := r.At(ctx, loc)
	if err != nil || v == nil {
		return 0, false, err
	}
	return v.Number, true, nil
}

// Between returns the versions spanning both locators, ordered in the
// direction of travel: ascending when from <= to, descending otherwise.
func (r *Resolver) Between(ctx context.Context, from, to Locator) ([]Version, error) {
	fromNumber, ok, err := r.NumberAt(ctx, from)
	if err != nil || !ok {
		return nil, err
	}
	toNumber, ok, err := r.NumberAt(ctx, to)
	if err != nil || !ok {
		return nil, err
	}
	return r.between(ctx, fromNumber, toNumber)
}

func (r *Resolver) between(ctx context.Context, from, to int64) ([]Version, error) {
	low, high := from, to
	if low > high {
		low, high = high, low
	}

	versions, err := r.store.VersionsInRange(ctx, r.owner, low, high)
	if err != nil {
		return nil, err
	}

	if from > to {
		for i, j := 0, len(versions)-1; i < j; i, j = i+1, j-1 {
			versions[i], versions[j] = versions[j], versions[i]
		}
	}
	return versions, nil
}

func (r *Resolver) byNumber(ctx context.Context, number int64) (*Version, error) {
	versions, err := r.store.VersionsInRange(ctx, r.owner, number, number)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, nil
	}
	return &versions[0], nil
}

func (r *Resolver) byAnchor(ctx context.Context, anchor Anchor, seen map[Anchor]bool) (*Version, error) {
	switch anchor {
	case AnchorFirst:
		return r.byNumber(ctx, 1)
	case AnchorLast:
		last, err := r.store.MaxVersionNumber(ctx, r.owner)
		if err != nil || last == 0 {
			return nil, err
		}
		return r.byNumber(ctx, last)
	}

	if r.anchors == nil || seen[anchor] {
		return nil, nil
	}
	target, ok := r.anchors.VersionAnchor(string(anchor))
	if !ok {
		return nil, nil
	}
	if seen == nil {
		seen = make(map[Anchor]bool)
	}
	seen[anchor] = true
	return r.at(ctx, target, seen)
}
