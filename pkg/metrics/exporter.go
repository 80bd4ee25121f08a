package metrics

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mamalluca/mamalluca-go/pkg/status"
	"github.com/mamalluca/mamalluca-go/pkg/updater"
)

// DefaultInterval is the default export tick.
const DefaultInterval = time.Second

// Source provides the entries to project each tick.
// Implemented by status.Cache.
type Source interface {
	Snapshot() []status.Entry
}

// StateSource reports the session and device state.
// Implemented by updater.Updater.
type StateSource interface {
	State() updater.ConnectionState
	DeviceState() updater.DeviceState
}

// ExporterConfig configures an Exporter.
type ExporterConfig struct {
	// Interval between exports (default: 1s).
	Interval time.Duration

	// Logger is used for operational logging. Nil discards.
	Logger *slog.Logger

	// Registry receives the exporter's collectors. Nil creates a private
	// registry that also carries the Go and process collectors.
	Registry *prometheus.Registry
}

// Exporter periodically projects a Source into Prometheus metrics.
type Exporter struct {
	source   Source
	state    StateSource
	config   ExporterConfig
	logger   *slog.Logger
	registry *prometheus.Registry

	projection *Projection

	up           prometheus.Gauge
	connState    *prometheus.GaugeVec
	klippyState  *prometheus.GaugeVec
	klippyEvents *prometheus.CounterVec
	entries      prometheus.Gauge
	lastExport   prometheus.Gauge
	exports      prometheus.Counter
}

// NewExporter creates an exporter for source. state may be nil, in which
// case the session metrics report disconnected.
func NewExporter(source Source, state StateSource, config ExporterConfig) (*Exporter, error) {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	reg := config.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	e := &Exporter{
		source:     source,
		state:      state,
		config:     config,
		logger:     logger,
		registry:   reg,
		projection: NewProjection(logger),
		up: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mamalluca_up",
			Help: "1 if the Moonraker subscription is live.",
		}),
		connState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mamalluca_connection_state",
			Help: "1 for the current Moonraker connection state.",
		}, []string{"state"}),
		klippyState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mamalluca_klippy_state",
			Help: "1 for the last Klippy state Moonraker reported.",
		}, []string{"state"}),
		klippyEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mamalluca_klippy_state_changes_total",
			Help: "Klippy state changes reported by Moonraker.",
		}, []string{"state"}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mamalluca_cache_entries",
			Help: "Number of subsystems in the status cache.",
		}),
		lastExport: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mamalluca_last_export_timestamp_seconds",
			Help: "Unix time of the last export.",
		}),
		exports: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mamalluca_exports_total",
			Help: "Number of completed exports.",
		}),
	}

	for _, c := range []prometheus.Collector{
		e.projection, e.up, e.connState, e.klippyState, e.klippyEvents,
		e.entries, e.lastExport, e.exports,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Registry returns the registry the exporter registered with.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		ErrorLog: slog.NewLogLogger(e.logger.Handler(), slog.LevelError),
	})
}

// Export runs one projection tick.
func (e *Exporter) Export() {
	snapshot := e.source.Snapshot()
	failed := e.projection.Apply(snapshot)

	conn := updater.StateDisconnected
	device := updater.DeviceStateUnknown
	if e.state != nil {
		conn = e.state.State()
		device = e.state.DeviceState()
	}

	e.up.Set(boolValue(conn == updater.StateSubscribed))
	for _, s := range []updater.ConnectionState{
		updater.StateDisconnected, updater.StateConnecting,
		updater.StateConnected, updater.StateSubscribed,
	} {
		e.connState.WithLabelValues(s.String()).Set(boolValue(s == conn))
	}
	for _, s := range updater.DeviceStates() {
		e.klippyState.WithLabelValues(s.String()).Set(boolValue(s == device))
	}

	e.entries.Set(float64(len(snapshot)))
	e.lastExport.SetToCurrentTime()
	e.exports.Inc()

	if failed > 0 {
		e.logger.Debug("export finished with errors", "entries", len(snapshot), "failed", failed)
	}
}

// Run exports immediately and then every Interval until ctx is done.
func (e *Exporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.config.Interval)
	defer ticker.Stop()

	e.Export()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.Export()
		}
	}
}

// DeviceStateChanged implements updater.Observer.
func (e *Exporter) DeviceStateChanged(state updater.DeviceState) {
	e.klippyEvents.WithLabelValues(state.String()).Inc()
	e.logger.Info("klippy state changed", "state", state.String())
}

var _ updater.Observer = (*Exporter)(nil)
