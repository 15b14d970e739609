package main

import (
	"fmt"
	"io"

	"sqlextract/internal/config"
	"sqlextract/internal/metrics"
	"sqlextract/internal/metrics/datadog"
	"sqlextract/internal/metrics/prompush"
)

// setupMetrics installs the configured backend and returns the function that
// flushes it at the end of the run. A backend that fails to initialise leaves
// metrics disabled; the run goes ahead.
func setupMetrics(stderr io.Writer, m config.Metrics, job string, verbose bool) func() {
	var (
		b   metrics.Backend
		err error
	)
	switch m.Backend {
	case "pushgateway":
		b, err = prompush.NewBackend(job, m.PushgatewayURL)
	case "datadog":
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       m.StatsdAddr,
			GlobalTags: []string{"extract:" + job},
		})
	case "", "none":
		if verbose {
			fmt.Fprintf(stderr, "metrics: disabled (backend=%q)\n", m.Backend)
		}
		return func() {}
	default:
		fmt.Fprintf(stderr, "metrics: unknown backend %q; metrics disabled\n", m.Backend)
		return func() {}
	}
	if err != nil {
		fmt.Fprintf(stderr, "metrics: failed to init %s backend: %v; using nop\n", m.Backend, err)
		return func() {}
	}

	if verbose {
		fmt.Fprintf(stderr, "metrics: backend=%s job=%s\n", m.Backend, job)
	}
	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			fmt.Fprintf(stderr, "metrics: flush error: %v\n", err)
		}
	}
}
