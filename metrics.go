package runfiles

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// ResponseMetrics counts responses by status code. A nil *ResponseMetrics
// records nothing.
type ResponseMetrics struct {
	responses *prometheus.CounterVec
}

// NewResponseMetrics registers the runfiles_responses_total counter with reg.
// If an identical collector is already registered (for example after a
// config reload) the existing one is reused.
func NewResponseMetrics(reg prometheus.Registerer) (*ResponseMetrics, error) {
	responses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "runfiles",
		Name:      "responses_total",
		Help:      "Responses served from the runfiles tree, by HTTP status.",
	}, []string{"status"})

	if err := reg.Register(responses); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		responses = existing
	}
	return &ResponseMetrics{responses: responses}, nil
}

func (m *ResponseMetrics) observe(status int) {
	if m == nil {
		return
	}
	m.responses.WithLabelValues(strconv.Itoa(status)).Inc()
}
