package metrics

import (
	"encoding/json"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mamalluca/mamalluca-go/pkg/status"
)

// networkFields are the per-interface counters in proc stats.
var networkFields = []string{
	"bandwidth",
	"rx_bytes", "rx_drop", "rx_errs", "rx_packets",
	"tx_bytes", "tx_drop", "tx_errs", "tx_packets",
}

type moonrakerMetrics struct {
	cpuUsage   *prometheus.GaugeVec
	memory     *prometheus.GaugeVec
	websockets *prometheus.GaugeVec
	network    map[string]*prometheus.GaugeVec
	systemCPU  *prometheus.GaugeVec
	cpuTemp    *prometheus.GaugeVec
	memTotal   *prometheus.GaugeVec
	memAvail   *prometheus.GaugeVec
	memUsed    *prometheus.GaugeVec
}

func (p *Projection) registerMoonraker() {
	p.moonraker = moonrakerMetrics{
		cpuUsage:   p.gauge("moonraker_service_cpu_usage_percent", "Moonraker process CPU usage."),
		memory:     p.gauge("moonraker_service_memory_kibibytes", "Moonraker process memory."),
		websockets: p.gauge("moonraker_websocket_connections", "Open Moonraker websocket connections."),
		network:    make(map[string]*prometheus.GaugeVec, len(networkFields)),
		systemCPU:  p.gauge("moonraker_system_cpu_usage_percent", "Host CPU usage.", "cpu"),
		cpuTemp:    p.gauge("moonraker_system_cpu_temp_celsius", "Host CPU temperature."),
		memTotal:   p.gauge("moonraker_system_memory_total_kibibytes", "Host total memory."),
		memAvail:   p.gauge("moonraker_system_memory_available_kibibytes", "Host available memory."),
		memUsed:    p.gauge("moonraker_system_memory_used_kibibytes", "Host used memory."),
	}
	for _, f := range networkFields {
		p.moonraker.network[f] = p.gauge("moonraker_network_"+f, "Host network interface "+f+".", "interface")
	}
}

func decodeMoonraker(p *Projection, _ status.Key, raw json.RawMessage) error {
	var s struct {
		MoonrakerStats struct {
			CPUUsage *float64 `json:"cpu_usage"`
			Memory   *float64 `json:"memory"`
		} `json:"moonraker_stats"`
		CPUTemp              *float64                      `json:"cpu_temp"`
		Network              map[string]map[string]float64 `json:"network"`
		SystemCPUUsage       map[string]float64            `json:"system_cpu_usage"`
		WebsocketConnections *float64                      `json:"websocket_connections"`
		SystemMemory         struct {
			Total     *float64 `json:"total"`
			Available *float64 `json:"available"`
			Used      *float64 `json:"used"`
		} `json:"system_memory"`
	}
	if err := decodeInto(raw, &s); err != nil {
		return err
	}

	m := p.moonraker
	set(m.cpuUsage, s.MoonrakerStats.CPUUsage)
	set(m.memory, s.MoonrakerStats.Memory)
	set(m.websockets, s.WebsocketConnections)
	set(m.cpuTemp, s.CPUTemp)
	set(m.memTotal, s.SystemMemory.Total)
	set(m.memAvail, s.SystemMemory.Available)
	set(m.memUsed, s.SystemMemory.Used)

	for iface, fields := range s.Network {
		for name, v := range fields {
			if g, ok := m.network[name]; ok {
				g.WithLabelValues(iface).Set(v)
			}
		}
	}
	for cpu, v := range s.SystemCPUUsage {
		m.systemCPU.WithLabelValues(cpu).Set(v)
	}
	return nil
}
