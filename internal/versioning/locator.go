package versioning

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Locator identifies a version: a Number, an Anchor, an Instant or a Version.
type Locator interface {
	locator()
}

// Number locates a version by number. Fractions are floored.
type Number float64

// Anchor names a version. "first" and "last" are built in; anything else is
// asked of the record's AnchorProvider.
type Anchor string

// Instant locates the latest version created at or before a point in time.
type Instant time.Time

const (
	AnchorFirst Anchor = "first"
	AnchorLast  Anchor = "last"
)

func (Number) locator()  {}
func (Anchor) locator()  {}
func (Instant) locator() {}
func (Version) locator() {}

// At returns the Instant locator for t.
func At(t time.Time) Instant {
	return Instant(t)
}

func (n Number) floor() int64 {
	return int64(math.Floor(float64(n)))
}

// ParseLocator reads a locator from text. Integers and decimals become a
// Number, RFC3339 timestamps an Instant and anything else an Anchor.
func ParseLocator(text string) Locator {
	text = strings.TrimSpace(text)
	if n, err := strconv.ParseFloat(text, 64); err == nil && !math.IsInf(n, 0) && !math.IsNaN(n) {
		return Number(n)
	}
	if t, err := time.Parse(time.RFC3339Nano, text); err == nil {
		return Instant(t)
	}
	return Anchor(text)
}
