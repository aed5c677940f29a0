package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Observability bundles the monotonic counters and structured logger
// described in spec.md §6, grounded in core/system_health_logging.go's
// HealthLogger: a private prometheus.Registry per component plus a
// logrus.Logger for round/chunk/error events.
type Observability struct {
	Log *logrus.Logger

	registry *prometheus.Registry

	handlesCleared prometheus.Counter
	roundsStarted  prometheus.Counter
	roundErrors    prometheus.Counter
}

// NewObservability wires a fresh registry and logger. log may be nil, in
// which case a default JSON logger writing to stderr is created.
func NewObservability(log *logrus.Logger) *Observability {
	if log == nil {
		log = logrus.New()
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	reg := prometheus.NewRegistry()

	o := &Observability{Log: log, registry: reg}

	o.handlesCleared = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overflowgraph_handles_cleared_total",
		Help: "Total number of handles evicted (body cleared) by the scheduler.",
	})
	o.roundsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overflowgraph_eviction_rounds_total",
		Help: "Total number of eviction rounds dispatched.",
	})
	o.roundErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overflowgraph_eviction_errors_total",
		Help: "Total number of per-handle failures caught during eviction rounds.",
	})

	reg.MustRegister(o.handlesCleared, o.roundsStarted, o.roundErrors)
	return o
}

// BindCodec registers GaugeFuncs sourcing "total nodes decoded" and
// "cumulative decode wall-time" directly from codec's own atomic
// counters (spec.md §4.1's performance note: advisory, not part of the
// encode/decode contract). Called once by NewGraph; safe to call with a
// nil codec, in which case it is a no-op.
func (o *Observability) BindCodec(c *Codec) {
	if c == nil {
		return
	}
	o.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "overflowgraph_nodes_decoded_total",
		Help: "Total number of node bodies decoded by the codec.",
	}, func() float64 {
		n, _ := c.Stats()
		return float64(n)
	}))
	o.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "overflowgraph_decode_seconds_total",
		Help: "Cumulative wall-time spent decoding node bodies.",
	}, func() float64 {
		_, d := c.Stats()
		return d.Seconds()
	}))
}

// Registry exposes the private prometheus.Registry, e.g. for wiring to
// promhttp.HandlerFor in a host process.
func (o *Observability) Registry() *prometheus.Registry {
	return o.registry
}

func (o *Observability) recordCleared(n int) {
	o.handlesCleared.Add(float64(n))
}

func (o *Observability) recordRoundStart() {
	o.roundsStarted.Inc()
}

func (o *Observability) recordError() {
	o.roundErrors.Inc()
}
