package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordUpstreamRequest_LabelsByStatus はステータスコード別にカウントされることを検証する。
func TestRecordUpstreamRequest_LabelsByStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUpstreamRequest("establishment.list", 200, 30*time.Millisecond)
	c.RecordUpstreamRequest("establishment.list", 200, 10*time.Millisecond)
	c.RecordUpstreamRequest("establishment.list", 0, time.Second)

	if got := testutil.ToFloat64(c.upstreamRequests.WithLabelValues("establishment.list", "200")); got != 2 {
		t.Errorf("upstream_requests_total{200} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.upstreamRequests.WithLabelValues("establishment.list", "error")); got != 1 {
		t.Errorf("upstream_requests_total{error} = %v, want 1", got)
	}
}

// TestRecordUpstreamRequest_ObservesLatency はレイテンシが観測されることを検証する。
func TestRecordUpstreamRequest_ObservesLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUpstreamRequest("user.login", 200, 50*time.Millisecond)

	if got := testutil.CollectAndCount(c.upstreamLatency); got != 1 {
		t.Errorf("latency series = %d, want 1", got)
	}
}

// TestRecordFormSubmission_IncrementsCounter はフォーム送信カウンタが増加することを検証する。
func TestRecordFormSubmission_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordFormSubmission("voucher", "create", "success")
	c.RecordFormSubmission("voucher", "create", "validation_error")

	if got := testutil.ToFloat64(c.formSubmissions.WithLabelValues("voucher", "create", "success")); got != 1 {
		t.Errorf("form_submissions_total{success} = %v, want 1", got)
	}
}

// TestRecordStaleFetch_IncrementsCounter は破棄カウンタが増加することを検証する。
func TestRecordStaleFetch_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordStaleFetch("establishment")
	c.RecordStaleFetch("establishment")

	if got := testutil.ToFloat64(c.staleFetches.WithLabelValues("establishment")); got != 2 {
		t.Errorf("stale_fetches_total = %v, want 2", got)
	}
}

// TestSetActiveSessions_SetsGauge はセッション数ゲージが設定されることを検証する。
func TestSetActiveSessions_SetsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.SetActiveSessions(3)
	c.SetActiveSessions(2)

	if got := testutil.ToFloat64(c.activeSessions); got != 2 {
		t.Errorf("active_sessions = %v, want 2", got)
	}
}
