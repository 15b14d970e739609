package datadog

import (
	"net"
	"reflect"
	"strings"
	"testing"
	"time"

	"sqlextract/internal/metrics"
)

func TestNewBackendRequiresAddr(t *testing.T) {
	t.Parallel()

	if b, err := NewBackend(Config{}); err == nil || b != nil {
		t.Fatalf("NewBackend(empty) = %v, %v; want nil, error", b, err)
	}
}

func TestMetricName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		metrics.RowsTotal:           "sqlextract.rows_total",
		metrics.StepDurationSeconds: "sqlextract.step_duration_seconds",
		"custom_metric":             "custom_metric",
	}
	for in, want := range tests {
		if got := metricName(in); got != want {
			t.Errorf("metricName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLabelsToTags(t *testing.T) {
	t.Parallel()

	if got := labelsToTags(nil); got != nil {
		t.Fatalf("labelsToTags(nil) = %v, want nil", got)
	}
	got := labelsToTags(metrics.Labels{"step": "write", "job": "sales", "status": "success"})
	want := []string{"job:sales", "status:success", "step:write"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("labelsToTags = %v, want %v", got, want)
	}
}

// TestBackendSendsDogStatsD listens on a local UDP socket and checks that a
// counter reaches it once the backend is flushed.
func TestBackendSendsDogStatsD(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("udp listen unavailable: %v", err)
	}
	defer pc.Close()

	b, err := NewBackend(Config{Addr: pc.LocalAddr().String()})
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	b.IncCounter(metrics.RowsTotal, 5, metrics.Labels{"kind": "written"})
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	var received strings.Builder
	buf := make([]byte, 65536)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_ = pc.SetReadDeadline(deadline)
		n, _, err := pc.ReadFrom(buf)
		if err != nil {
			break
		}
		received.Write(buf[:n])
		if strings.Contains(received.String(), "sqlextract.rows_total:5|c") {
			return
		}
	}
	t.Fatalf("counter not received; got %q", received.String())
}
