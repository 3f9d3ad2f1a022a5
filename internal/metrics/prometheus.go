package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"typedobject/pkg/typed"
)

// PrometheusRecorder counts guarded writes as Prometheus counter vectors.
type PrometheusRecorder struct {
	assignments *prometheus.CounterVec
	rejections  *prometheus.CounterVec
}

// NewPrometheusRecorder creates the collectors and registers them on reg.
// A nil reg registers on prometheus.DefaultRegisterer.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusRecorder{
		assignments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "typedobject_assignments_total",
				Help: "Guarded property writes by object, key and result",
			},
			[]string{"object", "key", "result"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "typedobject_rejections_total",
				Help: "Rejected property writes by declared and incoming kind",
			},
			[]string{"object", "expected", "actual"},
		),
	}
	for _, c := range []prometheus.Collector{r.assignments, r.rejections} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Observe implements typed.Observer.
func (r *PrometheusRecorder) Observe(e typed.Event) {
	r.assignments.WithLabelValues(e.Object, e.Key, result(e)).Inc()
	if !e.Accepted {
		r.rejections.WithLabelValues(e.Object, e.Expected.String(), e.Incoming.String()).Inc()
	}
}
