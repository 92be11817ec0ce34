package main

import (
	"github.com/sirupsen/logrus"

	"datalake/internal/metrics"
	"datalake/internal/metrics/datadog"
	"datalake/internal/metrics/prompush"
)

const (
	defaultPushgatewayURL = "http://localhost:9091"
	defaultDogStatsDAddr  = "127.0.0.1:8125"
)

// setupMetrics installs the selected metrics backend and returns a function
// that flushes it and restores the previous backend. Backend failures only
// disable metrics; they never fail the run.
func setupMetrics(o options, job string, getenv func(string) string, log logrus.FieldLogger) func() {
	// Decide metrics backend: flag -> env -> none.
	name := o.metricsBackend
	if name == "" {
		name = getenv("METRICS_BACKEND")
	}
	pick := func(flag, env, def string) string {
		if flag != "" {
			return flag
		}
		if v := getenv(env); v != "" {
			return v
		}
		return def
	}

	var b metrics.Backend
	var closeFn func() error
	switch name {
	case "pushgateway":
		url := pick(o.pushgatewayURL, "PUSHGATEWAY_URL", defaultPushgatewayURL)
		pb, err := prompush.NewBackend(job, url)
		if err != nil {
			log.WithError(err).Warn("metrics: failed to init pushgateway backend; using nop")
			return func() {}
		}
		log.Infof("metrics: backend=%s url=%s job_name=%s", name, url, job)
		b = pb

	case "datadog", "dogstatsd":
		addr := pick(o.dogstatsdAddr, "DD_AGENT_ADDR", defaultDogStatsDAddr)
		db, err := datadog.NewBackend(datadog.Config{
			Addr:       addr,
			Namespace:  "datalake.",
			GlobalTags: []string{"job:" + job},
		})
		if err != nil {
			log.WithError(err).Warn("metrics: failed to init dogstatsd backend; using nop")
			return func() {}
		}
		log.Infof("metrics: backend=%s addr=%s", name, addr)
		b, closeFn = db, db.Close

	case "", "none":
		log.Debugf("metrics: disabled (backend=%q)", name)
		return func() {}

	default:
		log.Warnf("metrics: unknown backend %q; metrics disabled", name)
		return func() {}
	}

	prev := metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			log.WithError(err).Warn("metrics: flush error")
		}
		if closeFn != nil {
			if err := closeFn(); err != nil {
				log.WithError(err).Warn("metrics: close error")
			}
		}
		metrics.SetBackend(prev)
	}
}
