package versioning

import (
	"reflect"
	"strings"
)

// ComputeDiff returns the watched attributes whose value differs between the
// two snapshots. Attributes missing on one side compare as nil.
func ComputeDiff(previous, current map[string]any, watched WatchList) map[string]Change {
	diff := make(map[string]Change)

	for name, cur := range current {
		if !watched.Watches(name) {
			continue
		}
		prev := previous[name]
		if !reflect.DeepEqual(prev, cur) {
			diff[strings.ToLower(name)] = Change{Old: prev, New: cur}
		}
	}

	for name, prev := range previous {
		if !watched.Watches(name) {
			continue
		}
		if _, ok := current[name]; ok {
			continue
		}
		if prev != nil {
			diff[strings.ToLower(name)] = Change{Old: prev, New: nil}
		}
	}

	return diff
}

// mergeChanges folds the attribute diff and the drained relation event into
// one version payload. It returns nil when there is nothing to record.
func mergeChanges(attributes map[string]Change, event *AssociationEvent) *Changes {
	if len(attributes) == 0 && event == nil {
		return nil
	}
	return &Changes{Attributes: attributes, Association: event}
}
