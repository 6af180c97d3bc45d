package sqldb

import "database/sql"

type Record struct {
	Kind       string
	ID         string
	Attributes string
	CreatedAt  string
	UpdatedAt  string
}

type Relation struct {
	OwnerKind   string
	OwnerID     string
	RelatedKind string
	RelatedID   string
	CreatedAt   string
}

type Version struct {
	ID            int64
	VersionedType string
	VersionedID   string
	Number        int64
	Changes       sql.NullString
	CreatedAt     string
}
