package metrics

import (
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder on a Prometheus registry.
type PrometheusRecorder struct {
	states      *prom.GaugeVec
	transitions *prom.CounterVec
	blocked     *prom.CounterVec
	broadcasts  prom.Counter
	detections  *prom.CounterVec
}

// NewPrometheusRecorder creates and registers the collectors on reg.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}

	r := &PrometheusRecorder{
		states: prom.NewGaugeVec(prom.GaugeOpts{
			Name: "ksbi_repository_states",
			Help: "Current number of tracked repositories per lifecycle state.",
		}, []string{"state"}),
		transitions: prom.NewCounterVec(prom.CounterOpts{
			Name: "ksbi_transitions_total",
			Help: "Applied state transitions.",
		}, []string{"from", "to"}),
		blocked: prom.NewCounterVec(prom.CounterOpts{
			Name: "ksbi_transitions_blocked_total",
			Help: "Transitions rejected by the allowed-transition table.",
		}, []string{"from", "to"}),
		broadcasts: prom.NewCounter(prom.CounterOpts{
			Name: "ksbi_broadcasts_total",
			Help: "Broadcast queue entries enqueued.",
		}),
		detections: prom.NewCounterVec(prom.CounterOpts{
			Name: "ksbi_detections_total",
			Help: "Detection pipeline runs by concluded state.",
		}, []string{"result"}),
	}

	reg.MustRegister(r.states, r.transitions, r.blocked, r.broadcasts, r.detections)
	return r
}

func (r *PrometheusRecorder) SetStateCount(state string, count int) {
	r.states.WithLabelValues(state).Set(float64(count))
}

func (r *PrometheusRecorder) RecordTransition(from, to string) {
	r.transitions.WithLabelValues(from, to).Inc()
}

func (r *PrometheusRecorder) RecordBlockedTransition(from, to string) {
	r.blocked.WithLabelValues(from, to).Inc()
}

func (r *PrometheusRecorder) RecordBroadcast() {
	r.broadcasts.Inc()
}

func (r *PrometheusRecorder) RecordDetection(result string) {
	r.detections.WithLabelValues(result).Inc()
}

// HTTPHandler returns an http.Handler that serves Prometheus metrics for the provided registry.
func HTTPHandler(reg *prom.Registry) http.Handler {
	if reg == nil {
		reg = prom.DefaultRegisterer.(*prom.Registry)
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
