package database

import (
	"database/sql"
	"fmt"
	"time"

	sqldb "github.com/vestalhq/vestal/internal/database/sqlc"
)

// timeLayout is fixed width so that stored timestamps order as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", value, err)
		}
	}
	return t.UTC(), nil
}

func bytesToNullString(value []byte) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(value), Valid: true}
}

func optionalBytes(ns sql.NullString) []byte {
	if !ns.Valid {
		return nil
	}
	return []byte(ns.String)
}

func queriesFromContext(ctx *Context) *sqldb.Queries {
	if ctx == nil {
		return nil
	}
	if ctx.Queries != nil {
		return ctx.Queries
	}
	if ctx.DB == nil {
		return nil
	}
	return sqldb.New(ctx.DB)
}
