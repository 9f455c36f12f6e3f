// Package metrics records chain-service and wallet-core activity in a
// Prometheus registry. The CLI reads a snapshot at exit for verbose
// diagnostics; a long-running host can expose Registry() over HTTP.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "satchel"

// Outcome label values.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics holds the collectors of one registry.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	addresses       *prometheus.CounterVec
	queryFailures   prometheus.Counter
	utxos           prometheus.Counter
	broadcasts      *prometheus.CounterVec
	walletOps       *prometheus.CounterVec
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "requests_total",
			Help:      "Chain service requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "request_duration_seconds",
			Help:      "Chain service request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		addresses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "addresses_total",
			Help:      "Addresses queried during discovery by derivation chain.",
		}, []string{"chain"}),
		queryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "query_failures_total",
			Help:      "Address queries that failed during discovery.",
		}),
		utxos: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "utxos_collected_total",
			Help:      "Unspent outputs collected from active addresses.",
		}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "broadcasts_total",
			Help:      "Transaction broadcasts by outcome.",
		}, []string{"outcome"}),
		walletOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "operations_total",
			Help:      "Wallet operations by name and outcome.",
		}, []string{"op", "outcome"}),
	}

	m.registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.addresses,
		m.queryFailures,
		m.utxos,
		m.broadcasts,
		m.walletOps,
		collectors.NewGoCollector(),
	)
	return m
}

// Global is the process-wide metrics instance.
//
//nolint:gochecknoglobals // Intentional global for metrics access
var Global = New()

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

// RecordRPCCall records one chain service request.
func (m *Metrics) RecordRPCCall(endpoint string, duration time.Duration, err error) {
	m.requests.WithLabelValues(endpoint, outcome(err)).Inc()
	m.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordAddressScanned records a discovery query on chain ("receiving"/"change").
func (m *Metrics) RecordAddressScanned(chain string, err error) {
	m.addresses.WithLabelValues(chain).Inc()
	if err != nil {
		m.queryFailures.Inc()
	}
}

// RecordUTXOs adds n collected outputs.
func (m *Metrics) RecordUTXOs(n int) {
	m.utxos.Add(float64(n))
}

// RecordBroadcast records a broadcast attempt.
func (m *Metrics) RecordBroadcast(err error) {
	m.broadcasts.WithLabelValues(outcome(err)).Inc()
}

// RecordWalletOp records a named wallet operation.
func (m *Metrics) RecordWalletOp(op string, err error) {
	m.walletOps.WithLabelValues(op, outcome(err)).Inc()
}

// Snapshot is a flattened view of the counters.
type Snapshot struct {
	RPCCallsTotal     int64
	RPCErrorsTotal    int64
	RPCLatencySeconds float64
	AddressesScanned  int64
	QueryFailures     int64
	UTXOsCollected    int64
	Broadcasts        int64
	BroadcastErrors   int64
}

// RPCLatencyAvgMs returns the mean request latency in milliseconds.
func (s Snapshot) RPCLatencyAvgMs() float64 {
	if s.RPCCallsTotal == 0 {
		return 0
	}
	return s.RPCLatencySeconds / float64(s.RPCCallsTotal) * 1000
}

// errNoRegistry is returned by Snapshot on a zero Metrics.
var errNoRegistry = errors.New("metrics registry not initialized")

// Snapshot gathers the registry into a Snapshot.
func (m *Metrics) Snapshot() (Snapshot, error) {
	var s Snapshot
	if m.registry == nil {
		return s, errNoRegistry
	}

	families, err := m.registry.Gather()
	if err != nil {
		return s, err
	}

	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			labels := make(map[string]string, len(metric.GetLabel()))
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			value := int64(metric.GetCounter().GetValue())

			switch mf.GetName() {
			case namespace + "_chain_requests_total":
				s.RPCCallsTotal += value
				if labels["outcome"] == OutcomeError {
					s.RPCErrorsTotal += value
				}
			case namespace + "_chain_request_duration_seconds":
				s.RPCLatencySeconds += metric.GetHistogram().GetSampleSum()
			case namespace + "_scan_addresses_total":
				s.AddressesScanned += value
			case namespace + "_scan_query_failures_total":
				s.QueryFailures += value
			case namespace + "_scan_utxos_collected_total":
				s.UTXOsCollected += value
			case namespace + "_tx_broadcasts_total":
				s.Broadcasts += value
				if labels["outcome"] == OutcomeError {
					s.BroadcastErrors += value
				}
			}
		}
	}
	return s, nil
}
