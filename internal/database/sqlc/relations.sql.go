package sqldb

import "context"

const insertRelation = `INSERT OR IGNORE INTO relations (owner_kind, owner_id, related_kind, related_id, created_at)
VALUES (?, ?, ?, ?, ?)`

type InsertRelationParams struct {
	OwnerKind   string
	OwnerID     string
	RelatedKind string
	RelatedID   string
	CreatedAt   string
}

func (q *Queries) InsertRelation(ctx context.Context, arg InsertRelationParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, insertRelation,
		arg.OwnerKind,
		arg.OwnerID,
		arg.RelatedKind,
		arg.RelatedID,
		arg.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteRelation = `DELETE FROM relations
WHERE owner_kind = ? AND owner_id = ? AND related_kind = ? AND related_id = ?`

type DeleteRelationParams struct {
	OwnerKind   string
	OwnerID     string
	RelatedKind string
	RelatedID   string
}

func (q *Queries) DeleteRelation(ctx context.Context, arg DeleteRelationParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteRelation,
		arg.OwnerKind,
		arg.OwnerID,
		arg.RelatedKind,
		arg.RelatedID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listRelationsByOwner = `SELECT owner_kind, owner_id, related_kind, related_id, created_at
FROM relations
WHERE owner_kind = ? AND owner_id = ?
ORDER BY related_kind ASC, related_id ASC`

type ListRelationsByOwnerParams struct {
	OwnerKind string
	OwnerID   string
}

func (q *Queries) ListRelationsByOwner(ctx context.Context, arg ListRelationsByOwnerParams) ([]Relation, error) {
	rows, err := q.db.QueryContext(ctx, listRelationsByOwner, arg.OwnerKind, arg.OwnerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []Relation{}
	for rows.Next() {
		var i Relation
		if err := rows.Scan(
			&i.OwnerKind,
			&i.OwnerID,
			&i.RelatedKind,
			&i.RelatedID,
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
