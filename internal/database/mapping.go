package database

import (
	"encoding/json"
	"fmt"

	sqldb "github.com/vestalhq/vestal/internal/database/sqlc"
	"github.com/vestalhq/vestal/internal/versioning"
)

func mapRecordRow(row sqldb.Record) (RecordRow, error) {
	attributes := map[string]any{}
	if row.Attributes != "" {
		if err := json.Unmarshal([]byte(row.Attributes), &attributes); err != nil {
			return RecordRow{}, fmt.Errorf("decode attributes of %s/%s: %w", row.Kind, row.ID, err)
		}
	}

	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return RecordRow{}, err
	}
	updatedAt, err := parseTime(row.UpdatedAt)
	if err != nil {
		return RecordRow{}, err
	}

	return RecordRow{
		Kind:       row.Kind,
		ID:         row.ID,
		Attributes: attributes,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}, nil
}

func encodeAttributes(attributes map[string]any) (string, error) {
	if attributes == nil {
		return "{}", nil
	}
	data, err := json.Marshal(attributes)
	if err != nil {
		return "", fmt.Errorf("encode attributes: %w", err)
	}
	return string(data), nil
}

func mapRelationRow(row sqldb.Relation) (RelationRow, error) {
	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return RelationRow{}, err
	}
	return RelationRow{
		OwnerKind:   row.OwnerKind,
		OwnerID:     row.OwnerID,
		RelatedKind: row.RelatedKind,
		RelatedID:   row.RelatedID,
		CreatedAt:   createdAt,
	}, nil
}

func mapVersionRow(row sqldb.Version) (versioning.Version, error) {
	changes, err := versioning.DecodeChanges(optionalBytes(row.Changes))
	if err != nil {
		return versioning.Version{}, fmt.Errorf("decode changes of version %d: %w", row.Number, err)
	}

	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return versioning.Version{}, err
	}

	return versioning.Version{
		Owner:     versioning.OwnerRef{Kind: row.VersionedType, ID: row.VersionedID},
		Number:    row.Number,
		CreatedAt: createdAt,
		Changes:   changes,
	}, nil
}
