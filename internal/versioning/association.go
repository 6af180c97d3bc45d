package versioning

// RelationChanged is emitted when a relation is removed from an owner. A
// removal does not touch the owner's own attributes, so the host must react
// by saving the owner for the pending event to reach a version.
type RelationChanged struct {
	Owner OwnerRef
	Event AssociationEvent
}

// Tracker holds the pending relation event of one in-memory record between
// saves. Only the latest event survives until the next Drain.
type Tracker struct {
	owner   func() OwnerRef
	pending *AssociationEvent
	notify  func(RelationChanged)
	dropped func(AssociationEvent)
}

// NewTracker returns a tracker for owner. notify receives removal messages
// and may be nil when the host saves on its own schedule.
func NewTracker(owner OwnerRef, notify func(RelationChanged)) *Tracker {
	return &Tracker{owner: func() OwnerRef { return owner }, notify: notify}
}

// newRecordTracker reads the owner from rec on every message, so a record
// that gets its identity on first save reports the saved identity.
func newRecordTracker(rec Record, notify func(RelationChanged)) *Tracker {
	return &Tracker{owner: func() OwnerRef { return OwnerOf(rec) }, notify: notify}
}

// Owner returns the record the tracker belongs to.
func (t *Tracker) Owner() OwnerRef {
	return t.owner()
}

// OnDrop registers a hook for events discarded because the related record
// had no identity yet.
func (t *Tracker) OnDrop(fn func(AssociationEvent)) {
	t.dropped = fn
}

// RecordAdd replaces the pending event with an add. It reports false when the
// event was dropped.
func (t *Tracker) RecordAdd(relatedType, relatedID string) bool {
	return t.record(AssociationEvent{Action: ActionAdd, RelatedType: relatedType, RelatedID: relatedID})
}

// RecordRemove replaces the pending event with a remove and asks the host to
// persist the owner.
func (t *Tracker) RecordRemove(relatedType, relatedID string) bool {
	event := AssociationEvent{Action: ActionRemove, RelatedType: relatedType, RelatedID: relatedID}
	if !t.record(event) {
		return false
	}
	if t.notify != nil {
		t.notify(RelationChanged{Owner: t.owner(), Event: event})
	}
	return true
}

// Pending returns the pending event without clearing it.
func (t *Tracker) Pending() *AssociationEvent {
	if t == nil || t.pending == nil {
		return nil
	}
	event := *t.pending
	return &event
}

// Drain returns the pending event and clears it.
func (t *Tracker) Drain() *AssociationEvent {
	if t == nil {
		return nil
	}
	event := t.pending
	t.pending = nil
	return event
}

func (t *Tracker) record(event AssociationEvent) bool {
	if event.RelatedID == "" {
		if t.dropped != nil {
			t.dropped(event)
		}
		return false
	}
	t.pending = &event
	return true
}
