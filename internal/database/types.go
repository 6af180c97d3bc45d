package database

import "time"

// RecordRow is a row of the records table with its attributes decoded.
type RecordRow struct {
	Kind       string
	ID         string
	Attributes map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RelationRow links an owner record to a related record.
type RelationRow struct {
	OwnerKind   string
	OwnerID     string
	RelatedKind string
	RelatedID   string
	CreatedAt   time.Time
}
