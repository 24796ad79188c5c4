// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry providers, health probes and ordered shutdown.
//
// Logging is logrus underneath; components that only need a field logger take
// logrus.FieldLogger and are handed Logger.Entry():
//
//	logger := observability.NewLogger(observability.InfoLevel, "json", os.Stdout)
//	logger.WithField("organization_id", orgID).Info("Organization created")
//
// Metrics are registered against an explicit registry:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
package observability
