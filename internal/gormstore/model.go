package gormstore

import (
	"database/sql/driver"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/vestalhq/vestal/internal/versioning"
)

// ChangesJSON is a custom GORM type for a version diff stored as JSON. The
// baseline diff is stored as NULL.
type ChangesJSON struct {
	Changes *versioning.Changes
}

// Scan implements the sql.Scanner interface for ChangesJSON.
func (c *ChangesJSON) Scan(value any) error {
	if value == nil {
		c.Changes = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for ChangesJSON: %T", value)
	}
	changes, err := versioning.DecodeChanges(bytes)
	if err != nil {
		return err
	}
	c.Changes = changes
	return nil
}

// Value implements the driver.Valuer interface for ChangesJSON.
func (c ChangesJSON) Value() (driver.Value, error) {
	data, err := versioning.EncodeChanges(c.Changes)
	if err != nil || data == nil {
		return nil, err
	}
	return string(data), nil
}

// GormDBDataType picks the native JSON column type of the dialect.
func (ChangesJSON) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "JSONB"
	case "mysql":
		return "JSON"
	default:
		return "TEXT"
	}
}

// VersionModel is one row of the versions table.
type VersionModel struct {
	ID            uint64      `gorm:"primaryKey;autoIncrement"`
	VersionedType string      `gorm:"column:versioned_type;type:varchar(255);not null;uniqueIndex:idx_versions_owner_number,priority:1;index:idx_versions_owner_created,priority:1"`
	VersionedID   string      `gorm:"column:versioned_id;type:varchar(255);not null;uniqueIndex:idx_versions_owner_number,priority:2;index:idx_versions_owner_created,priority:2"`
	Number        int64       `gorm:"column:number;not null;uniqueIndex:idx_versions_owner_number,priority:3"`
	Changes       ChangesJSON `gorm:"column:changes"`
	CreatedAt     time.Time   `gorm:"column:created_at;precision:6;not null;index:idx_versions_owner_created,priority:3"`
}

func (VersionModel) TableName() string { return "versions" }

func (m VersionModel) toVersion() versioning.Version {
	return versioning.Version{
		Owner:     versioning.OwnerRef{Kind: m.VersionedType, ID: m.VersionedID},
		Number:    m.Number,
		CreatedAt: m.CreatedAt.UTC(),
		Changes:   m.Changes.Changes,
	}
}
