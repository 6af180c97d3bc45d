// Package versioning records numbered, immutable change histories for
// persisted records and replays them to revert a record to an earlier state.
package versioning

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// AssociationKey is the reserved changes key that carries a relation event.
const AssociationKey = "association"

// OwnerRef identifies the record a version belongs to. Kind keeps the
// reference polymorphic across record kinds.
type OwnerRef struct {
	Kind string
	ID   string
}

func (o OwnerRef) String() string {
	return o.Kind + "/" + o.ID
}

// Version is one immutable entry in an owner's history. Version 1 is the
// baseline and carries nil Changes.
type Version struct {
	Owner     OwnerRef
	Number    int64
	CreatedAt time.Time
	Changes   *Changes
}

// IsBaseline reports whether the version is the creation marker.
func (v Version) IsBaseline() bool {
	return v.Number == 1 || v.Changes == nil
}

// Change holds the before and after value of a single attribute.
type Change struct {
	Old any
	New any
}

// Action is the kind of relation event.
type Action string

const (
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
)

// AssociationEvent describes a relation added to or removed from an owner.
type AssociationEvent struct {
	Action      Action `json:"action"`
	RelatedType string `json:"related_type"`
	RelatedID   string `json:"related_id"`
}

// Changes is the diff stored on a version.
type Changes struct {
	Attributes  map[string]Change
	Association *AssociationEvent
}

// Empty reports whether the diff carries nothing worth a version.
func (c *Changes) Empty() bool {
	return c == nil || (len(c.Attributes) == 0 && c.Association == nil)
}

// Keys returns the changed keys in sorted order, including the association
// marker when present.
func (c *Changes) Keys() []string {
	if c == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Attributes)+1)
	for name := range c.Attributes {
		keys = append(keys, name)
	}
	if c.Association != nil {
		keys = append(keys, AssociationKey)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON encodes the diff as a flat object: attributes map to
// [old, new] pairs and the association event sits under "association".
func (c Changes) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Attributes)+1)
	for name, change := range c.Attributes {
		out[name] = [2]any{change.Old, change.New}
	}
	if c.Association != nil {
		out[AssociationKey] = c.Association
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the flat object written by MarshalJSON.
func (c *Changes) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Attributes = make(map[string]Change, len(raw))
	c.Association = nil
	for name, value := range raw {
		if name == AssociationKey {
			var event AssociationEvent
			if err := json.Unmarshal(value, &event); err != nil {
				return fmt.Errorf("decode association change: %w", err)
			}
			c.Association = &event
			continue
		}

		var pair []any
		if err := json.Unmarshal(value, &pair); err != nil {
			return fmt.Errorf("decode change for %q: %w", name, err)
		}
		if len(pair) != 2 {
			return fmt.Errorf("decode change for %q: expected [old, new], got %d values", name, len(pair))
		}
		c.Attributes[name] = Change{Old: pair[0], New: pair[1]}
	}
	return nil
}

// EncodeChanges serializes a diff for storage. A nil diff encodes to nil so
// adapters can store the baseline as NULL.
func EncodeChanges(c *Changes) ([]byte, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

// DecodeChanges is the inverse of EncodeChanges.
func DecodeChanges(data []byte) (*Changes, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var c Changes
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
