// Package metrics projects the status cache into Prometheus metrics.
//
// A Projection decodes every cache entry by kind into gauges named
// klipper_* (printer objects) and moonraker_* (Moonraker process stats).
// Instanced kinds carry a name label. Each Apply resets the vectors first so
// subsystems that left the cache disappear from the exposition. A decode
// failure is logged, counted in mamalluca_projection_errors_total{kind} and
// does not affect other entries.
//
// An Exporter drives a Projection from a fixed-interval ticker and exposes
// mamalluca_* self metrics alongside it:
//
//	exp, err := metrics.NewExporter(cache, upd, metrics.ExporterConfig{Interval: time.Second})
//	go exp.Run(ctx)
//	http.Handle("/metrics", exp.Handler())
package metrics
