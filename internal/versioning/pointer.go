package versioning

// Pointer caches where an in-memory record sits in its history. Version is
// the number the in-memory attributes represent and LastVersion the newest
// number in storage; they diverge after a revert. Zero means unknown.
type Pointer struct {
	Version     int64
	LastVersion int64
}

// Reset forgets both numbers so the next read re-derives them from storage.
func (p *Pointer) Reset() {
	p.Version = 0
	p.LastVersion = 0
}

// moveTo records a revert target while keeping the known last version.
func (p *Pointer) moveTo(number int64) {
	p.Version = number
}
