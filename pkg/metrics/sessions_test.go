package metrics

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestSessionMetricsExportsCountersAndGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewSessionMetrics(reg)

	metrics.IncSignIn("password")
	metrics.IncSignIn("restore")
	metrics.IncSignOut("inactivity")
	metrics.IncActivity("keydown")
	metrics.IncWarning()
	metrics.SetSessionActive(true)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "session_sign_ins_total", "method", "password"); err != nil {
		t.Fatalf("fetch sign-ins: %v", err)
	} else if got != 1 {
		t.Fatalf("expected password sign-ins=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "session_sign_outs_total", "reason", "inactivity"); err != nil {
		t.Fatalf("fetch sign-outs: %v", err)
	} else if got != 1 {
		t.Fatalf("expected inactivity sign-outs=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "session_activity_events_total", "kind", "keydown"); err != nil {
		t.Fatalf("fetch activity: %v", err)
	} else if got != 1 {
		t.Fatalf("expected keydown activity=1, got %f", got)
	}

	warnings := findMetricFamily(mfs, "session_inactivity_warnings_total")
	if warnings == nil || warnings.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatal("expected one inactivity warning")
	}

	active := findMetricFamily(mfs, "session_active")
	if active == nil || active.GetMetric()[0].GetGauge().GetValue() != 1 {
		t.Fatal("expected active gauge set to 1")
	}

	metrics.SetSessionActive(false)
	mfs, err = reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	active = findMetricFamily(mfs, "session_active")
	if active == nil || active.GetMetric()[0].GetGauge().GetValue() != 0 {
		t.Fatal("expected active gauge reset to 0")
	}
}

func TestSessionMetricsNilSafe(t *testing.T) {
	var metrics *SessionMetrics
	metrics.IncSignIn("password")
	metrics.IncSignOut("manual")
	metrics.IncActivity("click")
	metrics.IncWarning()
	metrics.SetSessionActive(true)

	unregistered := NewSessionMetrics(nil)
	unregistered.IncSignIn("password")
	unregistered.SetSessionActive(true)
}

func TestSessionMetricsNormalizesEmptyLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewSessionMetrics(reg)

	metrics.IncActivity("")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "session_activity_events_total", "kind", "unknown"); err != nil {
		t.Fatalf("fetch activity: %v", err)
	} else if got != 1 {
		t.Fatalf("expected unknown activity=1, got %f", got)
	}
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
