package module

import (
	"github.com/meridianlabs/meridian-go/model/meridian"
	"github.com/meridianlabs/meridian-go/model/messages"
)

// PayloadOracle answers which transaction payloads are locally known. The
// pending block buffer consults it to decide block readiness.
type PayloadOracle interface {
	// AllPayloadsExist returns true if a verified payload is known for every
	// block in the given window. Pure predicate, no side effects.
	AllPayloadsExist(blocks []*meridian.PipelinedBlock) bool
}

// PayloadStore tracks the transaction payloads disseminated alongside block
// ordering metadata.
type PayloadStore interface {
	PayloadOracle

	// InsertBlockPayload stores a payload. Unverified payloads are buffered
	// separately until the epoch state required to verify them is available.
	InsertBlockPayload(payload *messages.BlockPayload, verified bool)
}

// BlockConsumer receives fully assembled ordered blocks, in strict order, for
// local execution.
type BlockConsumer interface {
	// OnOrderedBlockReady is called at most once per ordered block, only
	// after every payload in the block's window is locally known.
	OnOrderedBlockReady(block *meridian.ObservedOrderedBlock)
}

// SubscriberProvider exposes the peers currently subscribed to the local
// publisher. The selector never subscribes to a peer that is itself pulling
// from us.
type SubscriberProvider interface {
	Subscribers() map[meridian.Identifier]struct{}
}

// ObserverMetrics exposes the observability hooks of the block feed. None of
// the hooks are behavior-bearing.
type ObserverMetrics interface {
	// PendingBlocksStored reports the buffer size and the highest buffered
	// round after a mutation.
	PendingBlocksStored(stored uint, highestRound uint64)

	// PendingBlockEvicted is called once per entry dropped by capacity
	// eviction.
	PendingBlockEvicted()

	// StaleBlocksDropped reports entries dropped below the readiness
	// frontier.
	StaleBlocksDropped(count uint)

	// ReadyBlockExtracted is called when a pending block becomes payload
	// complete and leaves the buffer.
	ReadyBlockExtracted()

	// PayloadsStored reports the number of verified and unverified payloads
	// currently held.
	PayloadsStored(verified uint, unverified uint)

	// SubscriptionCreated is called once per successful subscribe handshake.
	SubscriptionCreated()

	// SubscriptionFailed is called once per peer that failed a subscribe
	// attempt.
	SubscriptionFailed()

	// SubscriptionTerminated is called when an active subscription is torn
	// down as unhealthy.
	SubscriptionTerminated()

	// ActiveSubscriptions reports the size of the active subscription set.
	ActiveSubscriptions(active uint)
}
