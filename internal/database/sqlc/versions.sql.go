package sqldb

import (
	"context"
	"database/sql"
)

const insertVersion = `INSERT INTO versions (versioned_type, versioned_id, number, changes, created_at)
VALUES (?, ?, ?, ?, ?)`

type InsertVersionParams struct {
	VersionedType string
	VersionedID   string
	Number        int64
	Changes       sql.NullString
	CreatedAt     string
}

func (q *Queries) InsertVersion(ctx context.Context, arg InsertVersionParams) (sql.Result, error) {
	return q.db.ExecContext(ctx, insertVersion,
		arg.VersionedType,
		arg.VersionedID,
		arg.Number,
		arg.Changes,
		arg.CreatedAt,
	)
}

const maxVersionNumber = `SELECT CAST(COALESCE(MAX(number), 0) AS INTEGER)
FROM versions
WHERE versioned_type = ? AND versioned_id = ?`

type OwnerParams struct {
	VersionedType string
	VersionedID   string
}

func (q *Queries) MaxVersionNumber(ctx context.Context, arg OwnerParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, maxVersionNumber, arg.VersionedType, arg.VersionedID)
	var number int64
	err := row.Scan(&number)
	return number, err
}

const listVersionsInRange = `SELECT id, versioned_type, versioned_id, number, changes, created_at
FROM versions
WHERE versioned_type = ? AND versioned_id = ? AND number BETWEEN ? AND ?
ORDER BY number ASC`

type ListVersionsInRangeParams struct {
	VersionedType string
	VersionedID   string
	Low           int64
	High          int64
}

func (q *Queries) ListVersionsInRange(ctx context.Context, arg ListVersionsInRangeParams) ([]Version, error) {
	rows, err := q.db.QueryContext(ctx, listVersionsInRange,
		arg.VersionedType,
		arg.VersionedID,
		arg.Low,
		arg.High,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []Version{}
	for rows.Next() {
		var i Version
		if err := rows.Scan(
			&i.ID,
			&i.VersionedType,
			&i.VersionedID,
			&i.Number,
			&i.Changes,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const latestVersionAtOrBefore = `SELECT id, versioned_type, versioned_id, number, changes, created_at
FROM versions
WHERE versioned_type = ? AND versioned_id = ? AND created_at <= ?
ORDER BY number DESC
LIMIT 1`

type LatestVersionAtOrBeforeParams struct {
	VersionedType string
	VersionedID   string
	CreatedAt     string
}

func (q *Queries) LatestVersionAtOrBefore(ctx context.Context, arg LatestVersionAtOrBeforeParams) (Version, error) {
	row := q.db.QueryRowContext(ctx, latestVersionAtOrBefore, arg.VersionedType, arg.VersionedID, arg.CreatedAt)
	var i Version
	err := row.Scan(
		&i.ID,
		&i.VersionedType,
		&i.VersionedID,
		&i.Number,
		&i.Changes,
		&i.CreatedAt,
	)
	return i, err
}

const deleteVersionsByOwner = `DELETE FROM versions WHERE versioned_type = ? AND versioned_id = ?`

func (q *Queries) DeleteVersionsByOwner(ctx context.Context, arg OwnerParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteVersionsByOwner, arg.VersionedType, arg.VersionedID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
