package sqldb

import "context"

const deleteAllVersions = `DELETE FROM versions`

func (q *Queries) DeleteAllVersions(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteAllVersions)
	return err
}

const deleteAllRelations = `DELETE FROM relations`

func (q *Queries) DeleteAllRelations(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteAllRelations)
	return err
}

const deleteAllRecords = `DELETE FROM records`

func (q *Queries) DeleteAllRecords(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteAllRecords)
	return err
}
