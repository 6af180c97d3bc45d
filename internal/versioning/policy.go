package versioning

import (
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// BookkeepingColumns are left out of diffs unless a policy opts in, and are
// never written back during a revert.
var BookkeepingColumns = []string{"created_at", "created_on", "updated_at", "updated_on"}

var unrevertable = mapset.NewSet(append([]string{AssociationKey}, BookkeepingColumns...)...)

// Policy selects the watched attributes of a record kind. The first matching
// rule wins: ExceptAll, then Only, then Except plus the bookkeeping defaults.
type Policy struct {
	Only       []string
	Except     []string
	ExceptAll  bool
	Timestamps bool
}

// WatchList is the set of attribute names eligible for diffing.
type WatchList struct {
	names mapset.Set[string]
}

// NewWatchList applies p to the kind's columns. It is meant to run once per
// kind when the kind is configured.
func NewWatchList(columns []string, p Policy) WatchList {
	if p.ExceptAll {
		return WatchList{names: mapset.NewThreadUnsafeSet[string]()}
	}

	if len(p.Only) > 0 {
		return WatchList{names: mapset.NewThreadUnsafeSet(lower(p.Only)...)}
	}

	except := mapset.NewThreadUnsafeSet(lower(p.Except)...)
	if !p.Timestamps {
		except.Append(BookkeepingColumns...)
	}

	names := mapset.NewThreadUnsafeSet[string]()
	for _, column := range lower(columns) {
		if !except.Contains(column) {
			names.Add(column)
		}
	}
	return WatchList{names: names}
}

// Watches reports whether name is tracked.
func (w WatchList) Watches(name string) bool {
	return w.names != nil && w.names.Contains(strings.ToLower(name))
}

// Names returns the watched names in sorted order.
func (w WatchList) Names() []string {
	if w.names == nil {
		return nil
	}
	names := w.names.ToSlice()
	sort.Strings(names)
	return names
}

// Revertable reports whether replay may write the attribute.
func Revertable(name string) bool {
	return !unrevertable.Contains(strings.ToLower(name))
}

func lower(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
