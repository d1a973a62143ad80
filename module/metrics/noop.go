package metrics

type NoopCollector struct{}

func NewNoopCollector() *NoopCollector {
	nc := &NoopCollector{}
	return nc
}

func (nc *NoopCollector) PendingBlocksStored(stored uint, highestRound uint64) {}
func (nc *NoopCollector) PendingBlockEvicted()                                 {}
func (nc *NoopCollector) StaleBlocksDropped(count uint)                        {}
func (nc *NoopCollector) ReadyBlockExtracted()                                 {}
func (nc *NoopCollector) PayloadsStored(verified uint, unverified uint)        {}
func (nc *NoopCollector) SubscriptionCreated()                                 {}
func (nc *NoopCollector) SubscriptionFailed()                                  {}
func (nc *NoopCollector) SubscriptionTerminated()                              {}
func (nc *NoopCollector) ActiveSubscriptions(active uint)                      {}
