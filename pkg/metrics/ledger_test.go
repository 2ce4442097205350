package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/GregHandsley/pokeflip-sub002/pkg/errors"
)

func TestLedgerMetricsCountsRejections(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetrics(reg)

	m.Observe(OpSale, "ok", 10*time.Millisecond)
	m.Observe(OpSale, "rejected", 5*time.Millisecond)
	m.Observe(OpSplit, "rejected", 5*time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	rejectedSales, err := fetchCounterValue(mfs, "pokeflip_ledger_rejections_total", "operation", OpSale)
	require.NoError(t, err)
	assert.Equal(t, float64(1), rejectedSales)

	sum, err := fetchHistogramSum(mfs, "pokeflip_ledger_operation_duration_seconds", "operation", OpSale)
	require.NoError(t, err)
	assert.Greater(t, sum, 0.0)

	family := findMetricFamily(mfs, "pokeflip_ledger_mutations_total")
	require.NotNil(t, family)
	assert.Len(t, family.GetMetric(), 3)
}

func TestHTTPMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	m.Observe(http.MethodPost, "/api/v1/sales", http.StatusCreated, time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	got, err := fetchCounterValue(mfs, "pokeflip_http_requests_total", "status", "201")
	require.NoError(t, err)
	assert.Equal(t, float64(1), got)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, OutcomeOK, Outcome(nil))
	assert.Equal(t, OutcomeRejected, Outcome(pkgerrors.New(pkgerrors.CodeInsufficientQuantity, "short")))
	assert.Equal(t, OutcomeError, Outcome(pkgerrors.New(pkgerrors.CodeStateConflict, "sold")))
}

func TestNilLedgerMetricsIsSafe(t *testing.T) {
	var m *LedgerMetrics
	m.ObserveResult(OpMerge, time.Now(), nil)
	NewLedgerMetrics(nil).Observe(OpMerge, OutcomeOK, time.Second)
}

func TestOutboxMetricsCountsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.Inc("sale_recorded", PublishOK)
	m.Inc("sale_recorded", PublishOK)
	m.Inc("lot_created", PublishDeadLetter)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "pokeflip_outbox_publish_total", "event_type", "sale_recorded"); err != nil {
		t.Fatalf("fetch published: %v", err)
	} else if got != 2 {
		t.Fatalf("expected 2 publishes, got %f", got)
	}

	var nilMetrics *OutboxMetrics
	nilMetrics.Inc("sale_recorded", PublishRetry)
}
