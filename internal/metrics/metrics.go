// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "fancoil"

// Metrics groups every collector. Each process builds one with New and
// passes it to the components that update it.
type Metrics struct {
	Registry *prometheus.Registry

	MessagesTotal     *prometheus.CounterVec
	DroppedTotal      *prometheus.CounterVec
	ActuatorCommands  *prometheus.CounterVec
	ActuatorRunning   prometheus.Gauge
	IndoorTemperature prometheus.Gauge
	AirQuality        prometheus.Gauge
	BaselineReady     prometheus.Gauge
	SensorReadErrors  prometheus.Counter
	WeatherFetches    *prometheus.CounterVec
	SinkErrors        *prometheus.CounterVec
	RemoteRequests    *prometheus.CounterVec
}

// New creates the collectors and registers them on a private registry
// together with the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		MessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages dispatched by the orchestrator, by kind.",
		}, []string{"kind"}),
		DroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Messages logged and dropped, by reason.",
		}, []string{"reason"}),
		ActuatorCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actuator_commands_total",
			Help:      "Relay commands issued, by command and result.",
		}, []string{"command", "result"}),
		ActuatorRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "actuator_running",
			Help:      "1 while the coil valve is open.",
		}),
		IndoorTemperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indoor_temperature",
			Help:      "Most recent indoor temperature in display units.",
		}),
		AirQuality: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "air_quality_score",
			Help:      "Most recent air-quality score, -1 while unknown.",
		}),
		BaselineReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gas_baseline_ready",
			Help:      "1 once the gas baseline has been computed.",
		}),
		SensorReadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_read_errors_total",
			Help:      "Failed sensor reads.",
		}),
		WeatherFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_fetches_total",
			Help:      "Outdoor weather fetch attempts, by result.",
		}, []string{"result"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Failed persistence writes, by record.",
		}, []string{"record"}),
		RemoteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_requests_total",
			Help:      "Remote façade requests, by action and outcome.",
		}, []string{"action", "outcome"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.MessagesTotal,
		m.DroppedTotal,
		m.ActuatorCommands,
		m.ActuatorRunning,
		m.IndoorTemperature,
		m.AirQuality,
		m.BaselineReady,
		m.SensorReadErrors,
		m.WeatherFetches,
		m.SinkErrors,
		m.RemoteRequests,
	)
	return m
}

// Bool converts a flag to a gauge value.
func Bool(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
