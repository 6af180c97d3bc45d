package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vestalhq/vestal/internal/versioning"
)

func TestMetricsCountObserverEvents(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.VersionCreated("user")
	m.VersionCreated("user")
	m.Reverted("user", true)
	m.Reverted("user", false)
	m.Reverted("user", true)
	m.Conflict("user")
	m.AssociationDropped("project")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.VersionsCreatedTotal.WithLabelValues("user")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RevertsTotal.WithLabelValues("user", "backward")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RevertsTotal.WithLabelValues("user", "forward")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConflictsTotal.WithLabelValues("user")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AssociationsDroppedTotal.WithLabelValues("project")))
}

func TestMetricsWiredIntoEngine(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	engine := versioning.New(versioning.NewMemoryStore(), versioning.WithObserver(m))
	engine.Configure("note", []string{"title"}, versioning.Policy{})

	rec := &noteRecord{id: "n1", attrs: map[string]any{"title": "draft"}}
	_, err := engine.RecordInitial(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.VersionsCreatedTotal.WithLabelValues("note")))

	count, err := testutil.GatherAndCount(reg, "vestal_versions_created_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

type noteRecord struct {
	id    string
	attrs map[string]any
}

func (r *noteRecord) Identity() string                 { return r.id }
func (r *noteRecord) KindName() string                 { return "note" }
func (r *noteRecord) PreviousSnapshot() map[string]any { return nil }
func (r *noteRecord) CurrentSnapshot() map[string]any  { return r.attrs }
func (r *noteRecord) WriteAttribute(name string, value any) {
	r.attrs[name] = value
}
