// Package gormstore keeps version history in PostgreSQL or MySQL through GORM.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vestalhq/vestal/internal/versioning"
)

// Dialects accepted by Open.
const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
)

const (
	pgUniqueViolation   = "23505"
	mysqlDuplicateEntry = 1062
)

// Store provides version persistence over GORM.
type Store struct {
	db *gorm.DB
}

var _ versioning.Store = (*Store)(nil)

// New creates a Store on db. db should be opened with TranslateError so that
// unique violations surface as gorm.ErrDuplicatedKey.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn with the named dialect.
func Open(dialect, dsn string) (*gorm.DB, error) {
	switch dialect {
	case DialectPostgres:
		return OpenPostgres(dsn)
	case DialectMySQL:
		return OpenMySQL(dsn)
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
}

// OpenPostgres opens a PostgreSQL connection configured for the store.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

// OpenMySQL opens a MySQL connection. Times are always parsed and kept in
// UTC whatever the DSN says.
func OpenMySQL(dsn string) (*gorm.DB, error) {
	cfg, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	db, err := gorm.Open(mysql.Open(cfg.FormatDSN()), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	return db, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	}
}

// AutoMigrate creates or updates the versions table and its indexes.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&VersionModel{}); err != nil {
		return fmt.Errorf("auto-migrate versions: %w", err)
	}
	return nil
}

// WithDB returns a store running on db, e.g. an open transaction.
func (s *Store) WithDB(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) AppendVersion(ctx context.Context, owner versioning.OwnerRef, number int64, changes *versioning.Changes, createdAt time.Time) (*versioning.Version, error) {
	model := VersionModel{
		VersionedType: owner.Kind,
		VersionedID:   owner.ID,
		Number:        number,
		Changes:       ChangesJSON{Changes: changes},
		CreatedAt:     createdAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isDuplicate(err) {
			return nil, &versioning.ConflictError{Owner: owner, Number: number}
		}
		return nil, fmt.Errorf("create version %d of %s: %w", number, owner, err)
	}

	v := model.toVersion()
	return &v, nil
}

func (s *Store) MaxVersionNumber(ctx context.Context, owner versioning.OwnerRef) (int64, error) {
	var number int64
	err := s.owned(ctx, owner).
		Model(&VersionModel{}).
		Select("COALESCE(MAX(number), 0)").
		Scan(&number).Error
	if err != nil {
		return 0, fmt.Errorf("max version of %s: %w", owner, err)
	}
	return number, nil
}

func (s *Store) VersionsInRange(ctx context.Context, owner versioning.OwnerRef, low, high int64) ([]versioning.Version, error) {
	var rows []VersionModel
	err := s.owned(ctx, owner).
		Where("number BETWEEN ? AND ?", low, high).
		Order("number ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list versions of %s: %w", owner, err)
	}

	result := make([]versioning.Version, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toVersion())
	}
	return result, nil
}

// LatestVersionAtOrBefore returns nil, nil if no version was created by at.
func (s *Store) LatestVersionAtOrBefore(ctx context.Context, owner versioning.OwnerRef, at time.Time) (*versioning.Version, error) {
	var row VersionModel
	err := s.owned(ctx, owner).
		Where("created_at <= ?", at.UTC()).
		Order("number DESC").
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("version of %s at %s: %w", owner, at, err)
	}

	v := row.toVersion()
	return &v, nil
}

func (s *Store) DeleteAllVersions(ctx context.Context, owner versioning.OwnerRef) (int64, error) {
	res := s.owned(ctx, owner).Delete(&VersionModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete versions of %s: %w", owner, res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) owned(ctx context.Context, owner versioning.OwnerRef) *gorm.DB {
	return s.db.WithContext(ctx).Where("versioned_type = ? AND versioned_id = ?", owner.Kind, owner.ID)
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var myErr *mysqldriver.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}
