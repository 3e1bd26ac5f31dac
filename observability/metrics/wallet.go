package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type WalletMetrics struct {
	retryAttempts *prometheus.CounterVec
	retryOutcomes *prometheus.CounterVec
	txSubmitted   *prometheus.CounterVec
	faucetIssued  prometheus.Counter
	faucetAmount  prometheus.Counter
}

var (
	walletOnce     sync.Once
	walletRegistry *WalletMetrics
)

// Wallet returns the process-wide wallet metrics, registering them on first use.
func Wallet() *WalletMetrics {
	walletOnce.Do(func() {
		walletRegistry = &WalletMetrics{
			retryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vocwallet_retry_attempts_total",
				Help: "Count of probe invocations made by the retry poller by operation.",
			}, []string{"operation"}),
			retryOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vocwallet_retry_outcomes_total",
				Help: "Count of finished retry loops by operation and outcome.",
			}, []string{"operation", "outcome"}),
			txSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vocwallet_tx_submitted_total",
				Help: "Count of transactions accepted by the gateway by type.",
			}, []string{"type"}),
			faucetIssued: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "vocwallet_faucet_packages_issued_total",
				Help: "Number of faucet packages signed by this process.",
			}),
			faucetAmount: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "vocwallet_faucet_amount_issued_total",
				Help: "Sum of token amounts granted through signed faucet packages.",
			}),
		}
		prometheus.MustRegister(
			walletRegistry.retryAttempts,
			walletRegistry.retryOutcomes,
			walletRegistry.txSubmitted,
			walletRegistry.faucetIssued,
			walletRegistry.faucetAmount,
		)
	})
	return walletRegistry
}

func (m *WalletMetrics) ObserveRetryAttempt(operation string) {
	if m == nil {
		return
	}
	m.retryAttempts.WithLabelValues(labelOrUnknown(operation)).Inc()
}

func (m *WalletMetrics) ObserveRetryOutcome(operation, outcome string) {
	if m == nil {
		return
	}
	m.retryOutcomes.WithLabelValues(labelOrUnknown(operation), labelOrUnknown(outcome)).Inc()
}

func (m *WalletMetrics) ObserveTxSubmitted(txType string) {
	if m == nil {
		return
	}
	m.txSubmitted.WithLabelValues(labelOrUnknown(txType)).Inc()
}

func (m *WalletMetrics) ObserveFaucetIssued(amount uint64) {
	if m == nil {
		return
	}
	m.faucetIssued.Inc()
	m.faucetAmount.Add(float64(amount))
}

func labelOrUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
