package versioning

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrVersioningFailed is returned when a version could not be appended after
// the single conflict retry.
var ErrVersioningFailed = errors.New("versioning: could not append version")

// ConflictError reports that a version number is already taken for an owner.
type ConflictError struct {
	Owner  OwnerRef
	Number int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("versioning: version %d already exists for %s", e.Number, e.Owner)
}

// IsConflict reports whether err carries a *ConflictError.
func IsConflict(err error) bool {
	var conflict *ConflictError
	return errors.As(err, &conflict)
}

// Store is the persistence the engine needs. Implementations must reject a
// duplicate (owner, number) with *ConflictError and return (nil, nil) when a
// lookup matches nothing.
type Store interface {
	AppendVersion(ctx context.Context, owner OwnerRef, number int64, changes *Changes, createdAt time.Time) (*Version, error)
	MaxVersionNumber(ctx context.Context, owner OwnerRef) (int64, error)
	VersionsInRange(ctx context.Context, owner OwnerRef, low, high int64) ([]Version, error)
	LatestVersionAtOrBefore(ctx context.Context, owner OwnerRef, at time.Time) (*Version, error)
	DeleteAllVersions(ctx context.Context, owner OwnerRef) (int64, error)
}

// Record is the host entity contract.
type Record interface {
	Identity() string
	KindName() string
	PreviousSnapshot() map[string]any
	CurrentSnapshot() map[string]any
	WriteAttribute(name string, value any)
}

// AnchorProvider lets a record name versions, e.g. "published". Records that
// do not implement it only get the built-in anchors.
type AnchorProvider interface {
	VersionAnchor(name string) (Locator, bool)
}

// OwnerOf builds the owner reference of a record.
func OwnerOf(rec Record) OwnerRef {
	return OwnerRef{Kind: rec.KindName(), ID: rec.Identity()}
}
