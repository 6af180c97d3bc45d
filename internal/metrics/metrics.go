// Package metrics exposes Prometheus collectors for the versioning engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vestalhq/vestal/internal/versioning"
)

// Metrics holds the engine collectors. It implements versioning.Observer.
type Metrics struct {
	VersionsCreatedTotal     *prometheus.CounterVec
	RevertsTotal             *prometheus.CounterVec
	ConflictsTotal           *prometheus.CounterVec
	AssociationsDroppedTotal *prometheus.CounterVec
}

var _ versioning.Observer = (*Metrics)(nil)

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		VersionsCreatedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vestal_versions_created_total",
				Help: "Total number of versions appended",
			},
			[]string{"kind"},
		),
		RevertsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vestal_reverts_total",
				Help: "Total number of in-memory reverts",
			},
			[]string{"kind", "direction"},
		),
		ConflictsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vestal_version_conflicts_total",
				Help: "Total number of version number conflicts on append",
			},
			[]string{"kind"},
		),
		AssociationsDroppedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vestal_association_events_dropped_total",
				Help: "Relation events dropped because the related record had no identity",
			},
			[]string{"kind"},
		),
	}
}

func (m *Metrics) VersionCreated(kind string) {
	m.VersionsCreatedTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) Reverted(kind string, backward bool) {
	direction := "forward"
	if backward {
		direction = "backward"
	}
	m.RevertsTotal.WithLabelValues(kind, direction).Inc()
}

func (m *Metrics) Conflict(kind string) {
	m.ConflictsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) AssociationDropped(kind string) {
	m.AssociationsDroppedTotal.WithLabelValues(kind).Inc()
}
