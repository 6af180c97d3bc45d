package database

import (
	"context"
	"fmt"

	sqldb "github.com/vestalhq/vestal/internal/database/sqlc"
)

// RelationRepository persists owner to related record links.
type RelationRepository struct {
	ctx     *Context
	queries *sqldb.Queries
}

func NewRelationRepository(dbCtx *Context) *RelationRepository {
	return &RelationRepository{ctx: dbCtx}
}

func (r *RelationRepository) WithQueries(q *sqldb.Queries) *RelationRepository {
	return &RelationRepository{ctx: r.ctx, queries: q}
}

// Add links the two records. It reports false when the link already existed.
func (r *RelationRepository) Add(ctx context.Context, row RelationRow) (bool, error) {
	queries, err := r.q()
	if err != nil {
		return false, err
	}

	affected, err := queries.InsertRelation(ctx, sqldb.InsertRelationParams{
		OwnerKind:   row.OwnerKind,
		OwnerID:     row.OwnerID,
		RelatedKind: row.RelatedKind,
		RelatedID:   row.RelatedID,
		CreatedAt:   formatTime(row.CreatedAt),
	})
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Remove unlinks the two records. It reports false when no link existed.
func (r *RelationRepository) Remove(ctx context.Context, row RelationRow) (bool, error) {
	queries, err := r.q()
	if err != nil {
		return false, err
	}

	affected, err := queries.DeleteRelation(ctx, sqldb.DeleteRelationParams{
		OwnerKind:   row.OwnerKind,
		OwnerID:     row.OwnerID,
		RelatedKind: row.RelatedKind,
		RelatedID:   row.RelatedID,
	})
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *RelationRepository) ListByOwner(ctx context.Context, ownerKind, ownerID string) ([]RelationRow, error) {
	queries, err := r.q()
	if err != nil {
		return nil, err
	}

	rows, err := queries.ListRelationsByOwner(ctx, sqldb.ListRelationsByOwnerParams{
		OwnerKind: ownerKind,
		OwnerID:   ownerID,
	})
	if err != nil {
		return nil, err
	}

	result := make([]RelationRow, 0, len(rows))
	for _, row := range rows {
		rel, err := mapRelationRow(row)
		if err != nil {
			return nil, err
		}
		result = append(result, rel)
	}
	return result, nil
}

func (r *RelationRepository) q() (*sqldb.Queries, error) {
	if r.queries != nil {
		return r.queries, nil
	}
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return nil, fmt.Errorf("relation repository: missing database context")
	}
	return queries, nil
}
