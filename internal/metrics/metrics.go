// Package metrics holds the Prometheus collectors facewatch exports.
//
// Every method is safe to call on a nil *Collectors so packages can take an
// optional metrics dependency without guarding each call site.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "facewatch"

// Collectors groups the registered metric vectors.
type Collectors struct {
	registry *prometheus.Registry

	engineLines    *prometheus.CounterVec
	commands       *prometheus.CounterVec
	writeErrors    prometheus.Counter
	events         *prometheus.CounterVec
	discarded      prometheus.Counter
	outcomes       *prometheus.CounterVec
	captures       *prometheus.CounterVec
	webcamAttempts prometheus.Gauge
	deviceMode     *prometheus.GaugeVec
	engineRunning  prometheus.Gauge
}

// New builds a Collectors backed by its own registry.
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		engineLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine", Name: "lines_total",
			Help: "Lines read from the engine, by stream.",
		}, []string{"stream"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine", Name: "commands_total",
			Help: "Commands written to the engine, by verb.",
		}, []string{"verb"}),
		writeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine", Name: "write_errors_total",
			Help: "Commands that failed to reach the engine.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine", Name: "events_total",
			Help: "Decoded engine events, by kind.",
		}, []string{"kind"}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "identify", Name: "discarded_events_total",
			Help: "Replies dropped because no workflow was awaiting them.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "identify", Name: "outcomes_total",
			Help: "Terminal workflow outcomes, by modality and outcome.",
		}, []string{"modality", "outcome"}),
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "camera", Name: "captures_total",
			Help: "One-shot frame captures, by result.",
		}, []string{"result"}),
		webcamAttempts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "webcam", Name: "attempts",
			Help: "Current value of the webcam attempt counter.",
		}),
		deviceMode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "camera", Name: "mode",
			Help: "1 for the arbiter's current mode, 0 otherwise.",
		}, []string{"mode"}),
		engineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "engine", Name: "running",
			Help: "1 while the engine process is alive.",
		}),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.engineLines, c.commands, c.writeErrors, c.events, c.discarded,
		c.outcomes, c.captures, c.webcamAttempts, c.deviceMode, c.engineRunning,
	)
	return c
}

// Registry exposes the underlying registry (for tests and custom gatherers).
func (c *Collectors) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collectors) EngineLine(stream string) {
	if c == nil {
		return
	}
	c.engineLines.WithLabelValues(stream).Inc()
}

func (c *Collectors) CommandSent(verb string) {
	if c == nil {
		return
	}
	c.commands.WithLabelValues(verb).Inc()
}

func (c *Collectors) CommandFailed() {
	if c == nil {
		return
	}
	c.writeErrors.Inc()
}

func (c *Collectors) EventDecoded(kind string) {
	if c == nil {
		return
	}
	c.events.WithLabelValues(kind).Inc()
}

func (c *Collectors) EventDiscarded() {
	if c == nil {
		return
	}
	c.discarded.Inc()
}

func (c *Collectors) Outcome(modality, outcome string) {
	if c == nil {
		return
	}
	c.outcomes.WithLabelValues(modality, outcome).Inc()
}

func (c *Collectors) Capture(result string) {
	if c == nil {
		return
	}
	c.captures.WithLabelValues(result).Inc()
}

func (c *Collectors) SetWebcamAttempts(n int) {
	if c == nil {
		return
	}
	c.webcamAttempts.Set(float64(n))
}

// SetDeviceMode marks mode as current and zeroes the rest of known.
func (c *Collectors) SetDeviceMode(mode string, known ...string) {
	if c == nil {
		return
	}
	for _, m := range known {
		c.deviceMode.WithLabelValues(m).Set(0)
	}
	c.deviceMode.WithLabelValues(mode).Set(1)
}

func (c *Collectors) SetEngineRunning(running bool) {
	if c == nil {
		return
	}
	if running {
		c.engineRunning.Set(1)
		return
	}
	c.engineRunning.Set(0)
}
