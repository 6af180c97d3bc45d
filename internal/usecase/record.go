package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vestalhq/vestal/internal/services"
	"github.com/vestalhq/vestal/internal/versioning"
)

type Record struct {
	records *services.RecordService
}

func NewRecord(records *services.RecordService) *Record {
	return &Record{records: records}
}

// Service returns the underlying record service.
func (u *Record) Service() *services.RecordService {
	return u.records
}

type SetInput struct {
	Kind string
	// ID selects the record to update. A missing record is created under ID;
	// an empty ID creates a record with a generated one.
	ID string
	// Values maps attribute names to new values. A nil value removes the
	// attribute.
	Values map[string]any
}

type SetResult struct {
	Record  *services.Record
	Created bool
	Version int64
}

func (u *Record) Set(ctx context.Context, input SetInput) (*SetResult, error) {
	if len(input.Values) == 0 {
		return nil, errors.New("at least one attribute is required")
	}

	rec, created, err := u.load(ctx, input.Kind, input.ID)
	if err != nil {
		return nil, err
	}

	for name, value := range input.Values {
		if err := rec.Set(name, value); err != nil {
			return nil, err
		}
	}

	if err := u.records.Save(ctx, rec); err != nil {
		return nil, err
	}

	version, err := u.records.Engine().CurrentVersion(ctx, rec, &rec.Pointer)
	if err != nil {
		return nil, err
	}
	return &SetResult{Record: rec, Created: created, Version: version}, nil
}

type GetResult struct {
	Record  *services.Record
	Version int64
}

func (u *Record) Get(ctx context.Context, kind, id string) (*GetResult, error) {
	rec, err := u.records.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	version, err := u.records.Engine().CurrentVersion(ctx, rec, &rec.Pointer)
	if err != nil {
		return nil, err
	}
	return &GetResult{Record: rec, Version: version}, nil
}

func (u *Record) History(ctx context.Context, kind, id string) ([]versioning.Version, error) {
	rec, err := u.records.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	return u.records.History(ctx, rec)
}

type RevertInput struct {
	Kind    string
	ID      string
	Locator string
	// Save persists the reverted attributes as a new version.
	Save bool
}

type RevertResult struct {
	Record *services.Record
	// Version is the version the record now represents. After a save it is
	// the newly appended version.
	Version int64
	Saved   bool
}

func (u *Record) Revert(ctx context.Context, input RevertInput) (*RevertResult, error) {
	if strings.TrimSpace(input.Locator) == "" {
		return nil, errors.New("locator is required")
	}

	rec, err := u.records.Get(ctx, input.Kind, input.ID)
	if err != nil {
		return nil, err
	}
	loc := versioning.ParseLocator(input.Locator)

	if !input.Save {
		reached, err := u.records.Revert(ctx, rec, loc)
		if err != nil {
			return nil, err
		}
		return &RevertResult{Record: rec, Version: reached}, nil
	}

	saved, err := u.records.RevertAndSave(ctx, rec, loc)
	if err != nil {
		return nil, err
	}
	version, err := u.records.Engine().CurrentVersion(ctx, rec, &rec.Pointer)
	if err != nil {
		return nil, err
	}
	return &RevertResult{Record: rec, Version: version, Saved: saved}, nil
}

// Link relates two existing records and saves the owner so the relation
// event is versioned.
func (u *Record) Link(ctx context.Context, kind, id, relatedKind, relatedID string) (bool, error) {
	rec, err := u.records.Get(ctx, kind, id)
	if err != nil {
		return false, err
	}
	if _, err := u.records.Get(ctx, relatedKind, relatedID); err != nil {
		return false, fmt.Errorf("related record: %w", err)
	}

	added, err := u.records.Link(ctx, rec, relatedKind, relatedID)
	if err != nil || !added {
		return false, err
	}
	return true, u.records.Save(ctx, rec)
}

// Unlink removes a relation. The owner is saved before returning even when
// save-on-remove is off, since the pending event would not outlive the call.
func (u *Record) Unlink(ctx context.Context, kind, id, relatedKind, relatedID string) (bool, error) {
	rec, err := u.records.Get(ctx, kind, id)
	if err != nil {
		return false, err
	}

	removed, err := u.records.Unlink(ctx, rec, relatedKind, relatedID)
	if err != nil || !removed {
		return false, err
	}
	return true, u.records.Save(ctx, rec)
}

func (u *Record) Delete(ctx context.Context, kind, id string) (bool, error) {
	return u.records.Delete(ctx, kind, id)
}

func (u *Record) load(ctx context.Context, kind, id string) (*services.Record, bool, error) {
	if id != "" {
		rec, err := u.records.Get(ctx, kind, id)
		if err == nil {
			return rec, false, nil
		}
		if !errors.Is(err, services.ErrNotFound) {
			return nil, false, err
		}
	}

	rec, err := u.records.New(kind)
	if err != nil {
		return nil, false, err
	}
	rec.ID = id
	return rec, true, nil
}

// ParseAssignments parses name=value arguments. Values that are valid JSON
// keep their JSON type, so `count=3` stores a number and `tags=["a"]` a list;
// `name=null` removes the attribute. Anything else is stored as a string.
func ParseAssignments(args []string) (map[string]any, error) {
	values := make(map[string]any, len(args))
	for _, arg := range args {
		name, raw, ok := strings.Cut(arg, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid assignment %q (expected name=value)", arg)
		}
		values[strings.ToLower(name)] = ParseValue(raw)
	}
	return values, nil
}

// ParseValue decodes raw as JSON, falling back to the raw string.
func ParseValue(raw string) any {
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return raw
	}
	return value
}
