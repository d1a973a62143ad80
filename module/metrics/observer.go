package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespaceObserver = "observer"

	subsystemBlockFeed    = "block_feed"
	subsystemSubscription = "subscription"
)

// ObserverCollector reports block-feed metrics to prometheus.
type ObserverCollector struct {
	pendingBlocks        prometheus.Gauge
	highestPendingRound  prometheus.Gauge
	evictedBlocks        prometheus.Counter
	staleBlocks          prometheus.Counter
	readyBlocks          prometheus.Counter
	verifiedPayloads     prometheus.Gauge
	unverifiedPayloads   prometheus.Gauge
	createdSubscriptions prometheus.Counter
	failedSubscriptions  prometheus.Counter
	droppedSubscriptions prometheus.Counter
	activeSubscriptions  prometheus.Gauge
}

func NewObserverCollector() *ObserverCollector {

	oc := &ObserverCollector{

		pendingBlocks: promauto.NewGauge(prometheus.GaugeOpts{
			Name:      "pending_blocks",
			Namespace: namespaceObserver,
			Subsystem: subsystemBlockFeed,
			Help:      "the number of ordered blocks buffered while awaiting payloads",
		}),

		highestPendingRound: promauto.NewGauge(prometheus.GaugeOpts{
			Name:      "highest_pending_round",
			Namespace: namespaceObserver,
			Subsystem: subsystemBlockFeed,
			Help:      "the highest first-block round currently buffered",
		}),

		evictedBlocks: promauto.NewCounter(prometheus.CounterOpts{
			Name:      "evicted_blocks_total",
			Namespace: namespaceObserver,
			Subsystem: subsystemBlockFeed,
			Help:      "the number of pending blocks dropped by capacity eviction",
		}),

		staleBlocks: promauto.NewCounter(prometheus.CounterOpts{
			Name:      "stale_blocks_total",
			Namespace: namespaceObserver,
			Subsystem: subsystemBlockFeed,
			Help:      "the number of pending blocks dropped below the readiness frontier",
		}),

		readyBlocks: promauto.NewCounter(prometheus.CounterOpts{
			Name:      "ready_blocks_total",
			Namespace: namespaceObserver,
			Subsystem: subsystemBlockFeed,
			Help:      "the number of payload-complete blocks handed to execution",
		}),

		verifiedPayloads: promauto.NewGauge(prometheus.GaugeOpts{
			Name:      "verified_payloads",
			Namespace: namespaceObserver,
			Subsystem: subsystemBlockFeed,
			Help:      "the number of verified block payloads currently stored",
		}),

		unverifiedPayloads: promauto.NewGauge(prometheus.GaugeOpts{
			Name:      "unverified_payloads",
			Namespace: namespaceObserver,
			Subsystem: subsystemBlockFeed,
			Help:      "the number of unverified block payloads currently stored",
		}),

		createdSubscriptions: promauto.NewCounter(prometheus.CounterOpts{
			Name:      "created_total",
			Namespace: namespaceObserver,
			Subsystem: subsystemSubscription,
			Help:      "the number of successful subscribe handshakes",
		}),

		failedSubscriptions: promauto.NewCounter(prometheus.CounterOpts{
			Name:      "failed_total",
			Namespace: namespaceObserver,
			Subsystem: subsystemSubscription,
			Help:      "the number of failed subscribe attempts",
		}),

		droppedSubscriptions: promauto.NewCounter(prometheus.CounterOpts{
			Name:      "terminated_total",
			Namespace: namespaceObserver,
			Subsystem: subsystemSubscription,
			Help:      "the number of subscriptions torn down as unhealthy",
		}),

		activeSubscriptions: promauto.NewGauge(prometheus.GaugeOpts{
			Name:      "active",
			Namespace: namespaceObserver,
			Subsystem: subsystemSubscription,
			Help:      "the number of currently active subscriptions",
		}),
	}

	return oc
}

func (oc *ObserverCollector) PendingBlocksStored(stored uint, highestRound uint64) {
	oc.pendingBlocks.Set(float64(stored))
	oc.highestPendingRound.Set(float64(highestRound))
}

func (oc *ObserverCollector) PendingBlockEvicted() {
	oc.evictedBlocks.Inc()
}

func (oc *ObserverCollector) StaleBlocksDropped(count uint) {
	oc.staleBlocks.Add(float64(count))
}

func (oc *ObserverCollector) ReadyBlockExtracted() {
	oc.readyBlocks.Inc()
}

func (oc *ObserverCollector) PayloadsStored(verified uint, unverified uint) {
	oc.verifiedPayloads.Set(float64(verified))
	oc.unverifiedPayloads.Set(float64(unverified))
}

func (oc *ObserverCollector) SubscriptionCreated() {
	oc.createdSubscriptions.Inc()
}

func (oc *ObserverCollector) SubscriptionFailed() {
	oc.failedSubscriptions.Inc()
}

func (oc *ObserverCollector) SubscriptionTerminated() {
	oc.droppedSubscriptions.Inc()
}

func (oc *ObserverCollector) ActiveSubscriptions(active uint) {
	oc.activeSubscriptions.Set(float64(active))
}
