/*
Package metrics provides Prometheus-based metrics collection for the
ingestion engine: download throughput, job lifecycle transitions, cache
hit rates, and per-component errors.

# Core Metrics

Counters:
  - ingest_operations_total{operation,status}
  - ingest_job_transitions_total{from,to}
  - ingest_cache_requests_total{type,cache}
  - ingest_errors_total{operation,type}

Histograms:
  - ingest_operation_duration_seconds{operation}
  - ingest_operation_size_bytes{operation}

Gauges:
  - ingest_active_jobs
  - ingest_cache_size_bytes{cache}
  - ingest_active_connections

# Usage

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Port:      9090,
		Path:      "/metrics",
		Namespace: "ingest",
	})
	if err != nil {
		log.Fatal(err)
	}
	if err := collector.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer collector.Stop(ctx)

	collector.RecordJobTransition("pending", "downloading")
	collector.RecordOperation("chunk_write", duration, n, err == nil)
	collector.RecordCacheHit("reprojection", size)

The /metrics endpoint is scraped by Prometheus; /health and /debug/*
endpoints provide human-readable diagnostics without requiring one.

See also: pkg/health, internal/circuit, pkg/errors.
*/
package metrics
