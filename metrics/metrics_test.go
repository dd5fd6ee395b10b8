package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewDefaultsEmptyNamespace(t *testing.T) {
	m := New("")
	m.SearchCount.WithLabelValues("text").Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SearchCount.WithLabelValues("text")))
}

func TestObserveCacheHitAndMissIncrementByTier(t *testing.T) {
	m := New("metrics_test_hitmiss")

	m.ObserveCacheHit("l1")
	m.ObserveCacheHit("l1")
	m.ObserveCacheMiss("l2")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.CacheHits.WithLabelValues("l1")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.CacheHits.WithLabelValues("l2")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheMisses.WithLabelValues("l2")))
}

func TestIndexWritesAndErrorsTrackSeparateOperations(t *testing.T) {
	m := New("metrics_test_index")

	m.IndexWrites.WithLabelValues("on_property_created").Inc()
	m.IndexErrors.WithLabelValues("on_property_created").Inc()
	m.IndexErrors.WithLabelValues("on_property_created").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.IndexWrites.WithLabelValues("on_property_created")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.IndexErrors.WithLabelValues("on_property_created")))
}
