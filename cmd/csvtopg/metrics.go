package main

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"csvtopg/internal/config"
	"csvtopg/internal/metrics"
	"csvtopg/internal/metrics/datadog"
	"csvtopg/internal/metrics/prompush"
)

// setupMetrics installs the configured metrics backend. The pipeline
// flushes it at the end of the run.
func setupMetrics(m config.Metrics, table string, log *zap.Logger) error {
	job := m.Job
	if job == "" {
		job = "csvtopg"
	}
	switch m.Backend {
	case "pushgateway":
		b, err := prompush.NewBackend(job, m.PushgatewayURL, prompush.WithGrouping("table", table))
		if err != nil {
			return errors.Wrap(err, "prom push backend")
		}
		metrics.SetBackend(b)
		log.Info("metrics: enabled", zap.String("backend", m.Backend), zap.String("url", m.PushgatewayURL), zap.String("job", job))

	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr: m.DatadogAddr,
			Job:  job,
			Tags: []string{"table:" + table},
		})
		if err != nil {
			return err
		}
		metrics.SetBackend(b)
		log.Info("metrics: enabled", zap.String("backend", m.Backend), zap.String("addr", m.DatadogAddr))

	case "", "none":
		log.Debug("metrics: disabled")

	default:
		return errors.Newf("unknown metrics backend %q", m.Backend)
	}
	return nil
}
