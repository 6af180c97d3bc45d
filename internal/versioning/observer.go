package versioning

// Observer receives engine events, typically to feed metrics.
type Observer interface {
	VersionCreated(kind string)
	Reverted(kind string, backward bool)
	Conflict(kind string)
	AssociationDropped(kind string)
}

type nopObserver struct{}

func (nopObserver) VersionCreated(string)     {}
func (nopObserver) Reverted(string, bool)     {}
func (nopObserver) Conflict(string)           {}
func (nopObserver) AssociationDropped(string) {}
