package metrics

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mamalluca/mamalluca-go/pkg/status"
)

// decodeFunc sets the gauges for one cache entry.
type decodeFunc func(p *Projection, key status.Key, raw json.RawMessage) error

// Projection turns status entries into Prometheus gauges. It is a
// prometheus.Collector; a scrape never observes a half-applied snapshot.
type Projection struct {
	logger *slog.Logger

	mu      sync.RWMutex
	vecs    []*prometheus.GaugeVec
	errors  *prometheus.CounterVec
	decoder map[status.Kind]decodeFunc

	mcu       mcuMetrics
	heater    heaterMetrics
	sensor    sensorMetrics
	fan       fanMetrics
	tmc       tmcMetrics
	stepper   *prometheus.GaugeVec
	filament  filamentMetrics
	toolhead  toolheadMetrics
	gcodeMove gcodeMoveMetrics
	motion    motionMetrics
	print     printMetrics
	sdcard    sdcardMetrics
	misc      miscMetrics
	moonraker moonrakerMetrics
}

// NewProjection creates a projection. A nil logger discards.
func NewProjection(logger *slog.Logger) *Projection {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p := &Projection{
		logger: logger,
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mamalluca_projection_errors_total",
			Help: "Cache entries that could not be decoded, by kind.",
		}, []string{"kind"}),
	}
	p.registerKlipper()
	p.registerMoonraker()
	return p
}

// gauge creates a gauge vector owned by the projection.
func (p *Projection) gauge(name, help string, labels ...string) *prometheus.GaugeVec {
	v := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
	p.vecs = append(p.vecs, v)
	return v
}

// Apply resets every gauge and re-derives it from entries. It returns the
// number of entries that failed to decode.
func (p *Projection) Apply(entries []status.Entry) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, v := range p.vecs {
		v.Reset()
	}

	failed := 0
	for _, e := range entries {
		decode, ok := p.decoder[e.Key.Kind]
		if !ok {
			continue
		}
		if err := decode(p, e.Key, e.Value); err != nil {
			failed++
			p.errors.WithLabelValues(e.Key.Kind.String()).Inc()
			p.logger.Warn("cannot project status", "key", e.Key.String(), "error", err)
		}
	}
	return failed
}

// Describe implements prometheus.Collector.
func (p *Projection) Describe(ch chan<- *prometheus.Desc) {
	for _, v := range p.vecs {
		v.Describe(ch)
	}
	p.errors.Describe(ch)
}

// Collect implements prometheus.Collector.
func (p *Projection) Collect(ch chan<- prometheus.Metric) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, v := range p.vecs {
		v.Collect(ch)
	}
	p.errors.Collect(ch)
}

func set(v *prometheus.GaugeVec, f *float64, labels ...string) {
	if f != nil {
		v.WithLabelValues(labels...).Set(*f)
	}
}

func setBool(v *prometheus.GaugeVec, b *bool, labels ...string) {
	if b != nil {
		v.WithLabelValues(labels...).Set(boolValue(*b))
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// setEnum sets one series per known state to 0 or 1. The last label of v
// is the state. An unrecognized current state gets its own series.
func setEnum(v *prometheus.GaugeVec, known []string, current string, labels ...string) {
	found := false
	for _, s := range known {
		on := s == current
		found = found || on
		v.WithLabelValues(append(labels, s)...).Set(boolValue(on))
	}
	if !found && current != "" {
		v.WithLabelValues(append(labels, current)...).Set(1)
	}
}

var _ prometheus.Collector = (*Projection)(nil)
