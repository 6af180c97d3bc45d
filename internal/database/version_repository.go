package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	modernsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	sqldb "github.com/vestalhq/vestal/internal/database/sqlc"
	"github.com/vestalhq/vestal/internal/versioning"
)

// VersionRepository stores version history in the versions table. The unique
// index on (versioned_type, versioned_id, number) backs the numbering
// guarantee.
type VersionRepository struct {
	ctx     *Context
	queries *sqldb.Queries
}

var _ versioning.Store = (*VersionRepository)(nil)

func NewVersionRepository(dbCtx *Context) *VersionRepository {
	return &VersionRepository{ctx: dbCtx}
}

// WithQueries returns a repository that runs on q, typically bound to an
// open transaction.
func (r *VersionRepository) WithQueries(q *sqldb.Queries) *VersionRepository {
	return &VersionRepository{ctx: r.ctx, queries: q}
}

func (r *VersionRepository) AppendVersion(ctx context.Context, owner versioning.OwnerRef, number int64, changes *versioning.Changes, createdAt time.Time) (*versioning.Version, error) {
	queries, err := r.q()
	if err != nil {
		return nil, err
	}

	payload, err := versioning.EncodeChanges(changes)
	if err != nil {
		return nil, err
	}

	_, err = queries.InsertVersion(ctx, sqldb.InsertVersionParams{
		VersionedType: owner.Kind,
		VersionedID:   owner.ID,
		Number:        number,
		Changes:       bytesToNullString(payload),
		CreatedAt:     formatTime(createdAt),
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &versioning.ConflictError{Owner: owner, Number: number}
		}
		return nil, fmt.Errorf("insert version %d of %s: %w", number, owner, err)
	}

	return &versioning.Version{
		Owner:     owner,
		Number:    number,
		CreatedAt: createdAt.UTC(),
		Changes:   changes,
	}, nil
}

func (r *VersionRepository) MaxVersionNumber(ctx context.Context, owner versioning.OwnerRef) (int64, error) {
	queries, err := r.q()
	if err != nil {
		return 0, err
	}

	number, err := queries.MaxVersionNumber(ctx, ownerParams(owner))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return number, nil
}

func (r *VersionRepository) VersionsInRange(ctx context.Context, owner versioning.OwnerRef, low, high int64) ([]versioning.Version, error) {
	queries, err := r.q()
	if err != nil {
		return nil, err
	}

	rows, err := queries.ListVersionsInRange(ctx, sqldb.ListVersionsInRangeParams{
		VersionedType: owner.Kind,
		VersionedID:   owner.ID,
		Low:           low,
		High:          high,
	})
	if err != nil {
		return nil, err
	}

	result := make([]versioning.Version, 0, len(rows))
	for _, row := range rows {
		v, err := mapVersionRow(row)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, nil
}

func (r *VersionRepository) LatestVersionAtOrBefore(ctx context.Context, owner versioning.OwnerRef, at time.Time) (*versioning.Version, error) {
	queries, err := r.q()
	if err != nil {
		return nil, err
	}

	row, err := queries.LatestVersionAtOrBefore(ctx, sqldb.LatestVersionAtOrBeforeParams{
		VersionedType: owner.Kind,
		VersionedID:   owner.ID,
		CreatedAt:     formatTime(at),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	v, err := mapVersionRow(row)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *VersionRepository) DeleteAllVersions(ctx context.Context, owner versioning.OwnerRef) (int64, error) {
	queries, err := r.q()
	if err != nil {
		return 0, err
	}
	return queries.DeleteVersionsByOwner(ctx, ownerParams(owner))
}

func (r *VersionRepository) q() (*sqldb.Queries, error) {
	if r.queries != nil {
		return r.queries, nil
	}
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return nil, fmt.Errorf("version repository: missing database context")
	}
	return queries, nil
}

func ownerParams(owner versioning.OwnerRef) sqldb.OwnerParams {
	return sqldb.OwnerParams{VersionedType: owner.Kind, VersionedID: owner.ID}
}

func isUniqueViolation(err error) bool {
	var sqliteErr *modernsqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(sqliteErr.Error(), "UNIQUE")
	}
	return false
}
