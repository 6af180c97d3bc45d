package sqldb

import "context"

const insertRecord = `INSERT INTO records (kind, id, attributes, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)`

type InsertRecordParams struct {
	Kind       string
	ID         string
	Attributes string
	CreatedAt  string
	UpdatedAt  string
}

func (q *Queries) InsertRecord(ctx context.Context, arg InsertRecordParams) error {
	_, err := q.db.ExecContext(ctx, insertRecord,
		arg.Kind,
		arg.ID,
		arg.Attributes,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const updateRecord = `UPDATE records
SET attributes = ?, updated_at = ?
WHERE kind = ? AND id = ?`

type UpdateRecordParams struct {
	Attributes string
	UpdatedAt  string
	Kind       string
	ID         string
}

func (q *Queries) UpdateRecord(ctx context.Context, arg UpdateRecordParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateRecord,
		arg.Attributes,
		arg.UpdatedAt,
		arg.Kind,
		arg.ID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const findRecord = `SELECT kind, id, attributes, created_at, updated_at
FROM records
WHERE kind = ? AND id = ?`

type RecordKeyParams struct {
	Kind string
	ID   string
}

func (q *Queries) FindRecord(ctx context.Context, arg RecordKeyParams) (Record, error) {
	row := q.db.QueryRowContext(ctx, findRecord, arg.Kind, arg.ID)
	var i Record
	err := row.Scan(
		&i.Kind,
		&i.ID,
		&i.Attributes,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listRecordsByKind = `SELECT kind, id, attributes, created_at, updated_at
FROM records
WHERE kind = ?
ORDER BY created_at ASC, id ASC`

func (q *Queries) ListRecordsByKind(ctx context.Context, kind string) ([]Record, error) {
	rows, err := q.db.QueryContext(ctx, listRecordsByKind, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []Record{}
	for rows.Next() {
		var i Record
		if err := rows.Scan(
			&i.Kind,
			&i.ID,
			&i.Attributes,
			&i.CreatedAt,
			&i.UpdatedAt,
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

const deleteRecord = `DELETE FROM records WHERE kind = ? AND id = ?`

func (q *Queries) DeleteRecord(ctx context.Context, arg RecordKeyParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteRecord, arg.Kind, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
