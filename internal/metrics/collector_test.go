package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func gatherMetric(t *testing.T, c *Collector, name string) *dto.MetricFamily {
	t.Helper()
	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func counterValue(t *testing.T, c *Collector, name string, labels map[string]string) float64 {
	t.Helper()
	mf := gatherMetric(t, c, name)
	if mf == nil {
		t.Fatalf("metric %s not found", name)
	}
	for _, m := range mf.GetMetric() {
		match := true
		for _, lp := range m.GetLabel() {
			if want, ok := labels[lp.GetName()]; ok && lp.GetValue() != want {
				match = false
				break
			}
		}
		if match {
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func TestCollector_ChannelGauges(t *testing.T) {
	c := NewCollector()
	c.SetChannelCounts(10, 4, 6, 1)

	if got := counterValue(t, c, "streamvault_channels", nil); got != 10 {
		t.Errorf("channels = %v, want 10", got)
	}
	if got := counterValue(t, c, "streamvault_channels_recording", nil); got != 4 {
		t.Errorf("recording = %v, want 4", got)
	}
	if got := counterValue(t, c, "streamvault_channels_online", nil); got != 6 {
		t.Errorf("online = %v, want 6", got)
	}
	if got := counterValue(t, c, "streamvault_channels_failed", nil); got != 1 {
		t.Errorf("failed = %v, want 1", got)
	}
}

func TestCollector_Probes(t *testing.T) {
	c := NewCollector()
	c.RecordProbe(true, 200*time.Millisecond)
	c.RecordProbe(true, 300*time.Millisecond)
	c.RecordProbe(false, time.Second)

	if got := counterValue(t, c, "streamvault_probes_total", map[string]string{"result": "live"}); got != 2 {
		t.Errorf("live probes = %v, want 2", got)
	}
	if got := counterValue(t, c, "streamvault_probes_total", map[string]string{"result": "offline"}); got != 1 {
		t.Errorf("offline probes = %v, want 1", got)
	}

	mf := gatherMetric(t, c, "streamvault_probe_duration_seconds")
	if mf == nil {
		t.Fatal("probe duration histogram missing")
	}
	if got := mf.GetMetric()[0].GetHistogram().GetSampleCount(); got != 3 {
		t.Errorf("probe duration samples = %d, want 3", got)
	}
}

func TestCollector_CaptureLifecycle(t *testing.T) {
	c := NewCollector()
	c.RecordCaptureStart()
	c.RecordCaptureStart()
	c.RecordCaptureExit(0, time.Hour)
	c.RecordCaptureExit(143, 5*time.Second)
	c.RecordSplit()
	c.RecordToleranceExceeded()

	if got := counterValue(t, c, "streamvault_captures_started_total", nil); got != 2 {
		t.Errorf("captures started = %v, want 2", got)
	}
	if got := counterValue(t, c, "streamvault_capture_exits_total", map[string]string{"exit_code": "143"}); got != 1 {
		t.Errorf("exit_code=143 = %v, want 1", got)
	}
	if got := counterValue(t, c, "streamvault_splits_total", nil); got != 1 {
		t.Errorf("splits = %v, want 1", got)
	}
	if got := counterValue(t, c, "streamvault_tolerance_failures_total", nil); got != 1 {
		t.Errorf("tolerance failures = %v, want 1", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.RecordReconcile(time.Second)
	c.SetDiskFree(1 << 30)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "streamvault_reconcile_cycles_total 1") {
		t.Error("scrape output missing reconcile counter")
	}
	if !strings.Contains(body, "streamvault_disk_free_bytes") {
		t.Error("scrape output missing disk free gauge")
	}
}
