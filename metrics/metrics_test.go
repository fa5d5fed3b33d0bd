package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/beacon/xerrors"
)

func TestObserveRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRequest("list_instances", 0.05, nil)
	m.ObserveRequest("list_instances", 0.10, nil)
	m.ObserveRequest("register", 0.02, xerrors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(
		m.RequestsTotal.WithLabelValues("list_instances", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.RequestsTotal.WithLabelValues("register", OutcomeError)))

	count, err := testutil.GatherAndCount(reg,
		"naming_requests_total", "naming_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestObserveRequestNilReceiver(t *testing.T) {
	var m *Metrics
	// nil 指标集合是合法的，调用应当是空操作
	m.ObserveRequest("list_instances", 0.01, nil)
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.TokenRefreshTotal.WithLabelValues(OutcomeSuccess).Inc()
	m.HeartbeatTotal.WithLabelValues(OutcomeError).Inc()
	m.ReconnectTotal.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenRefreshTotal.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HeartbeatTotal.WithLabelValues(OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconnectTotal))
}
