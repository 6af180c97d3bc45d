package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqldb "github.com/vestalhq/vestal/internal/database/sqlc"
)

// RecordRepository persists record rows and their JSON attributes.
type RecordRepository struct {
	ctx     *Context
	queries *sqldb.Queries
}

func NewRecordRepository(dbCtx *Context) *RecordRepository {
	return &RecordRepository{ctx: dbCtx}
}

func (r *RecordRepository) WithQueries(q *sqldb.Queries) *RecordRepository {
	return &RecordRepository{ctx: r.ctx, queries: q}
}

func (r *RecordRepository) Create(ctx context.Context, row RecordRow) error {
	queries, err := r.q()
	if err != nil {
		return err
	}

	attributes, err := encodeAttributes(row.Attributes)
	if err != nil {
		return err
	}

	return queries.InsertRecord(ctx, sqldb.InsertRecordParams{
		Kind:       row.Kind,
		ID:         row.ID,
		Attributes: attributes,
		CreatedAt:  formatTime(row.CreatedAt),
		UpdatedAt:  formatTime(row.UpdatedAt),
	})
}

// Update rewrites the attributes of an existing row. It returns ErrNotFound
// when the row does not exist.
func (r *RecordRepository) Update(ctx context.Context, row RecordRow) error {
	queries, err := r.q()
	if err != nil {
		return err
	}

	attributes, err := encodeAttributes(row.Attributes)
	if err != nil {
		return err
	}

	affected, err := queries.UpdateRecord(ctx, sqldb.UpdateRecordParams{
		Attributes: attributes,
		UpdatedAt:  formatTime(row.UpdatedAt),
		Kind:       row.Kind,
		ID:         row.ID,
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, row.Kind, row.ID)
	}
	return nil
}

func (r *RecordRepository) Find(ctx context.Context, kind, id string) (*RecordRow, error) {
	queries, err := r.q()
	if err != nil {
		return nil, err
	}

	row, err := queries.FindRecord(ctx, sqldb.RecordKeyParams{Kind: kind, ID: id})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	record, err := mapRecordRow(row)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *RecordRepository) ListByKind(ctx context.Context, kind string) ([]RecordRow, error) {
	queries, err := r.q()
	if err != nil {
		return nil, err
	}

	rows, err := queries.ListRecordsByKind(ctx, kind)
	if err != nil {
		return nil, err
	}

	result := make([]RecordRow, 0, len(rows))
	for _, row := range rows {
		record, err := mapRecordRow(row)
		if err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	return result, nil
}

func (r *RecordRepository) Delete(ctx context.Context, kind, id string) (bool, error) {
	queries, err := r.q()
	if err != nil {
		return false, err
	}

	affected, err := queries.DeleteRecord(ctx, sqldb.RecordKeyParams{Kind: kind, ID: id})
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *RecordRepository) q() (*sqldb.Queries, error) {
	if r.queries != nil {
		return r.queries, nil
	}
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return nil, fmt.Errorf("record repository: missing database context")
	}
	return queries, nil
}
