package services

import (
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"strings"
	"time"

	"github.com/vestalhq/vestal/internal/versioning"
)

// Record is an in-memory record of a configured kind. It implements
// versioning.Record and versioning.AnchorProvider.
type Record struct {
	Kind       string
	ID         string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Attributes map[string]any

	// Pointer tracks where the in-memory attributes sit in the history.
	Pointer versioning.Pointer

	saved     map[string]any
	persisted bool
	anchors   map[string]string
	relations *versioning.Tracker
	messages  []versioning.RelationChanged
}

func (r *Record) Identity() string { return r.ID }
func (r *Record) KindName() string { return r.Kind }

// PreviousSnapshot returns the attributes as last persisted.
func (r *Record) PreviousSnapshot() map[string]any {
	return r.saved
}

// CurrentSnapshot returns the attributes plus the bookkeeping timestamps.
func (r *Record) CurrentSnapshot() map[string]any {
	snapshot := maps.Clone(r.Attributes)
	if snapshot == nil {
		snapshot = map[string]any{}
	}
	if !r.CreatedAt.IsZero() {
		snapshot["created_at"] = r.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if !r.UpdatedAt.IsZero() {
		snapshot["updated_at"] = r.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return snapshot
}

func (r *Record) WriteAttribute(name string, value any) {
	if normalized, err := normalizeValue(value); err == nil {
		value = normalized
	}
	r.store(name, value)
}

func (r *Record) store(name string, value any) {
	if r.Attributes == nil {
		r.Attributes = map[string]any{}
	}
	if value == nil {
		delete(r.Attributes, name)
		return
	}
	r.Attributes[name] = value
}

// normalizeValue passes value through the JSON codec the row is stored
// with, so an int set in memory compares equal to the float64 read back.
func normalizeValue(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// VersionAnchor resolves the anchors declared for the record's kind.
func (r *Record) VersionAnchor(name string) (versioning.Locator, bool) {
	text, ok := r.anchors[name]
	if !ok {
		return nil, false
	}
	loc := versioning.ParseLocator(text)
	if anchor, isAnchor := loc.(versioning.Anchor); isAnchor && anchor != versioning.AnchorFirst && anchor != versioning.AnchorLast {
		return nil, false
	}
	return loc, true
}

// Set assigns an attribute. Bookkeeping columns and the association key are
// reserved.
func (r *Record) Set(name string, value any) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return fmt.Errorf("attribute name is required")
	}
	if !versioning.Revertable(name) {
		return fmt.Errorf("%w: %s", ErrReservedAttribute, name)
	}
	normalized, err := normalizeValue(value)
	if err != nil {
		return fmt.Errorf("attribute %s: %w", name, err)
	}
	r.store(name, normalized)
	return nil
}

// Get returns an attribute value.
func (r *Record) Get(name string) (any, bool) {
	value, ok := r.Attributes[strings.ToLower(name)]
	return value, ok
}

// Persisted reports whether the record has been saved.
func (r *Record) Persisted() bool {
	return r.persisted
}

// Dirty reports whether a save would write anything.
func (r *Record) Dirty() bool {
	if !r.persisted || r.relations.Pending() != nil {
		return true
	}
	return !maps.EqualFunc(r.savedAttributes(), r.Attributes, func(a, b any) bool {
		return reflect.DeepEqual(a, b)
	})
}

func (r *Record) savedAttributes() map[string]any {
	out := maps.Clone(r.saved)
	delete(out, "created_at")
	delete(out, "updated_at")
	return out
}

func (r *Record) commit() {
	r.saved = r.CurrentSnapshot()
	r.persisted = true
}

func (r *Record) takeMessages() []versioning.RelationChanged {
	messages := r.messages
	r.messages = nil
	return messages
}
