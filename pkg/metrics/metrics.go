// Package metrics exposes prometheus counters for graph operators.
package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	operatorCounterName        = "graphkv_operator_total"
	operatorCounterDescription = "Graph operator results by operator and outcome"
	indexWritesCounterName     = "graphkv_index_writes_total"
	indexWritesDescription     = "Secondary index entries written by index"

	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	mu            sync.Mutex
	isInitialized bool

	// OperatorCounter counts operator results, labelled by operator and outcome.
	OperatorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: operatorCounterName,
		Help: operatorCounterDescription,
	}, []string{"operator", "outcome"})

	// IndexWritesCounter counts secondary index writes, labelled by index name.
	IndexWritesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: indexWritesCounterName,
		Help: indexWritesDescription,
	}, []string{"index"})
)

// InitializeMetrics registers the counters once. Registering with a registerer that
// already holds them is not an error.
func InitializeMetrics(reg prometheus.Registerer) error {
	mu.Lock()
	defer mu.Unlock()
	if isInitialized {
		return nil
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{OperatorCounter, IndexWritesCounter} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	isInitialized = true
	return nil
}

// ObserveOperator records one operator result.
func ObserveOperator(operator string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	OperatorCounter.WithLabelValues(operator, outcome).Inc()
}

// ObserveIndexWrite records one secondary index write.
func ObserveIndexWrite(index string) {
	IndexWritesCounter.WithLabelValues(index).Inc()
}
