package observer

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/meridianlabs/meridian-go/config"
	"github.com/meridianlabs/meridian-go/engine"
	"github.com/meridianlabs/meridian-go/engine/observer/subscription"
	"github.com/meridianlabs/meridian-go/model/meridian"
	"github.com/meridianlabs/meridian-go/model/messages"
	"github.com/meridianlabs/meridian-go/module"
	"github.com/meridianlabs/meridian-go/module/payloads"
	"github.com/meridianlabs/meridian-go/module/peers"
	"github.com/meridianlabs/meridian-go/module/pending"
)

// forwardedBlockCacheSize bounds the dedup cache of recently forwarded
// first-block IDs.
const forwardedBlockCacheSize = 1000

// unhealthyPeerBackoff is how long a peer stays excluded from candidate
// selection after its subscription was torn down.
const unhealthyPeerBackoff = 10 * time.Minute

// Engine drives the consensus observer block feed. It owns the pending block
// buffer, the payload store and the subscription set; inbound ordered-block
// and payload messages are queued and processed on a worker loop, and a
// ticker loop keeps the subscription set healthy and topped up.
type Engine struct {
	unit    *engine.Unit
	log     zerolog.Logger
	metrics module.ObserverMetrics
	cfg     config.ObserverConfig

	pendingBlocks *pending.BlockStore
	payloadStore  *payloads.PayloadStore
	selector      *subscription.Selector
	monitor       *peers.Monitor
	publisher     module.SubscriberProvider
	consumer      module.BlockConsumer

	pendingOrderedBlocks engine.MessageStore
	pendingPayloads      engine.MessageStore
	messageHandler       *engine.MessageHandler

	// guarded by unit lock
	activeSubscriptions    map[meridian.Identifier]*subscription.Subscription
	unhealthySubscriptions map[meridian.Identifier]time.Time

	forwardedBlocks *lru.Cache[meridian.Identifier, struct{}]
}

// New creates a new observer engine.
func New(
	log zerolog.Logger,
	metrics module.ObserverMetrics,
	cfg config.ObserverConfig,
	pendingBlocks *pending.BlockStore,
	payloadStore *payloads.PayloadStore,
	selector *subscription.Selector,
	monitor *peers.Monitor,
	publisher module.SubscriberProvider,
	consumer module.BlockConsumer,
) (*Engine, error) {

	if consumer == nil {
		return nil, fmt.Errorf("must initialize observer engine with a block consumer")
	}

	orderedBlockQueue, err := engine.NewFifoMessageStore(cfg.MessageQueueCapacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create queue for ordered blocks: %w", err)
	}
	payloadQueue, err := engine.NewFifoMessageStore(cfg.MessageQueueCapacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create queue for block payloads: %w", err)
	}
	forwardedBlocks, err := lru.New[meridian.Identifier, struct{}](forwardedBlockCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create forwarded block cache: %w", err)
	}

	e := &Engine{
		unit:                   engine.NewUnit(),
		log:                    log.With().Str("engine", "observer").Logger(),
		metrics:                metrics,
		cfg:                    cfg,
		pendingBlocks:          pendingBlocks,
		payloadStore:           payloadStore,
		selector:               selector,
		monitor:                monitor,
		publisher:              publisher,
		consumer:               consumer,
		pendingOrderedBlocks:   orderedBlockQueue,
		pendingPayloads:        payloadQueue,
		activeSubscriptions:    make(map[meridian.Identifier]*subscription.Subscription),
		unhealthySubscriptions: make(map[meridian.Identifier]time.Time),
		forwardedBlocks:        forwardedBlocks,
	}

	e.messageHandler = engine.NewMessageHandler(
		e.log,
		engine.Pattern{
			Match: func(msg *engine.Message) bool {
				_, ok := msg.Payload.(*messages.OrderedBlockMessage)
				return ok
			},
			Store: e.pendingOrderedBlocks,
		},
		engine.Pattern{
			Match: func(msg *engine.Message) bool {
				_, ok := msg.Payload.(*messages.BlockPayloadMessage)
				return ok
			},
			Store: e.pendingPayloads,
		},
	)

	return e, nil
}

// Ready starts the engine's worker loops and returns a channel closed once
// they are running.
func (e *Engine) Ready() <-chan struct{} {
	e.unit.Launch(e.processingLoop)
	e.unit.Launch(e.subscriptionLoop)
	return e.unit.Ready()
}

// Done stops the engine and returns a channel closed once all loops exited.
func (e *Engine) Done() <-chan struct{} {
	return e.unit.Done()
}

// Process queues an inbound message from the given peer for asynchronous
// processing. Messages from peers without an active subscription are dropped.
func (e *Engine) Process(originID meridian.Identifier, event interface{}) {
	sub, ok := e.subscriptionFor(originID)
	if !ok {
		e.log.Debug().
			Str("origin_id", originID.String()).
			Msg("dropping message from peer without active subscription")
		return
	}

	switch msg := event.(type) {
	case *messages.OrderedBlockMessage:
		sub.RecordMessage(msg.OrderedBlock.LastBlock().Round())
	case *messages.BlockPayloadMessage:
		sub.RecordMessage(msg.Payload.Info.Round)
	}

	e.messageHandler.Process(originID, event)
}

// OnBlockCommitted prunes payloads at or below the committed frontier. Called
// by the execution side once a block window commits.
func (e *Engine) OnBlockCommitted(epoch uint64, round uint64) {
	e.payloadStore.PruneForCommit(epoch, round)
}

// OnEpochStateAvailable upgrades payloads buffered around the epoch boundary
// once the epoch state to verify them arrived.
func (e *Engine) OnEpochStateAvailable(epoch uint64) {
	verified := e.payloadStore.VerifyPayloadsForEpoch(epoch)
	if verified > 0 {
		e.log.Info().
			Uint64("epoch", epoch).
			Int("verified", verified).
			Msg("verified buffered payloads for new epoch")
	}
}

// Reset clears the block feed state and tears down all subscriptions. Used on
// fallback recovery, when the observer re-syncs through state sync.
func (e *Engine) Reset() {
	e.pendingBlocks.Clear()
	e.payloadStore.Clear()

	e.unit.Lock()
	defer e.unit.Unlock()
	for peerID := range e.activeSubscriptions {
		delete(e.activeSubscriptions, peerID)
		e.metrics.SubscriptionTerminated()
	}
	e.metrics.ActiveSubscriptions(0)
	e.log.Info().Msg("observer block feed reset")
}

// ActiveSubscriptionPeers returns the peers we currently hold subscriptions
// with.
func (e *Engine) ActiveSubscriptionPeers() []meridian.Identifier {
	e.unit.Lock()
	defer e.unit.Unlock()

	peerIDs := make([]meridian.Identifier, 0, len(e.activeSubscriptions))
	for peerID := range e.activeSubscriptions {
		peerIDs = append(peerIDs, peerID)
	}
	return peerIDs
}

func (e *Engine) subscriptionFor(peerID meridian.Identifier) (*subscription.Subscription, bool) {
	e.unit.Lock()
	defer e.unit.Unlock()

	sub, ok := e.activeSubscriptions[peerID]
	return sub, ok
}

// processingLoop drains the inbound message queues whenever the message
// handler signals new work.
func (e *Engine) processingLoop() {
	notifier := e.messageHandler.GetNotifier()
	for {
		select {
		case <-e.unit.Quit():
			return
		case <-notifier:
			e.processAvailableMessages()
		}
	}
}

func (e *Engine) processAvailableMessages() {
	for {
		select {
		case <-e.unit.Quit():
			return
		default:
		}

		msg, ok := e.pendingOrderedBlocks.Get()
		if ok {
			e.onOrderedBlock(msg.OriginID, msg.Payload.(*messages.OrderedBlockMessage))
			continue
		}

		msg, ok = e.pendingPayloads.Get()
		if ok {
			e.onBlockPayload(msg.Payload.(*messages.BlockPayloadMessage))
			continue
		}

		// all queues are drained, wait for the next notification
		return
	}
}

// onOrderedBlock processes a newly ordered block window: payload-complete
// windows forward straight to execution, the rest are buffered until their
// payloads arrive.
func (e *Engine) onOrderedBlock(originID meridian.Identifier, msg *messages.OrderedBlockMessage) {
	ordered := msg.OrderedBlock
	if len(ordered.Blocks) == 0 {
		e.log.Warn().
			Str("origin_id", originID.String()).
			Msg("dropping ordered block with empty window")
		return
	}

	observed := meridian.NewObservedOrderedBlock(ordered)

	if e.pendingBlocks.Exists(ordered) {
		e.log.Debug().
			Str("epoch_round", ordered.FirstEpochRound().String()).
			Msg("ordered block already buffered")
		return
	}

	if e.payloadStore.AllPayloadsExist(ordered.Blocks) {
		e.forwardReadyBlock(observed)
		return
	}

	e.pendingBlocks.Insert(pending.NewBlockWithMetadata(originID, observed))
}

// onBlockPayload stores an arriving payload and extracts the pending block
// (if any) that just became payload complete.
func (e *Engine) onBlockPayload(msg *messages.BlockPayloadMessage) {
	payload := msg.Payload
	e.payloadStore.InsertBlockPayload(payload, true)

	ready := e.pendingBlocks.RemoveReadyBlock(payload.Info.Epoch, payload.Info.Round, e.payloadStore)
	if ready != nil {
		e.forwardReadyBlock(ready.Block)
	}
}

// forwardReadyBlock hands a payload-complete block to the execution consumer,
// at most once per first-block ID.
func (e *Engine) forwardReadyBlock(block *meridian.ObservedOrderedBlock) {
	blockID := block.OrderedBlock().FirstBlock().ID()
	if _, seen := e.forwardedBlocks.Get(blockID); seen {
		e.log.Debug().
			Str("block_id", blockID.String()).
			Msg("skipping already forwarded block")
		return
	}
	e.forwardedBlocks.Add(blockID, struct{}{})

	e.log.Debug().
		Str("block_id", blockID.String()).
		Str("epoch_round", block.OrderedBlock().FirstEpochRound().String()).
		Str("provenance", block.Provenance.String()).
		Msg("forwarding payload-complete block to execution")
	e.consumer.OnOrderedBlockReady(block)
}

// subscriptionLoop periodically checks subscription health and tops the
// active set back up to the configured target.
func (e *Engine) subscriptionLoop() {
	check := time.NewTicker(e.cfg.SubscriptionCheckInterval)
	defer check.Stop()

	for {
		select {
		case <-e.unit.Quit():
			return
		case <-check.C:
			e.checkSubscriptions()
		}
	}
}

// checkSubscriptions tears down unhealthy subscriptions and creates new ones
// for the freed slots, preferring the currently most optimal peers.
func (e *Engine) checkSubscriptions() {
	e.unit.Lock()

	// expire the unhealthy marks so previously failed peers become
	// subscribable again
	now := time.Now()
	for peerID, markedAt := range e.unhealthySubscriptions {
		if now.Sub(markedAt) > unhealthyPeerBackoff {
			delete(e.unhealthySubscriptions, peerID)
		}
	}

	for peerID, sub := range e.activeSubscriptions {
		err := sub.CheckHealth(e.monitor.IsConnected(peerID))
		if err == nil {
			continue
		}
		e.log.Warn().Err(err).
			Str("peer", peerID.String()).
			Msg("terminating unhealthy subscription")
		delete(e.activeSubscriptions, peerID)
		e.unhealthySubscriptions[peerID] = now
		e.metrics.SubscriptionTerminated()
	}

	target := e.cfg.MaxConcurrentSubscriptions
	missing := uint64(0)
	if uint64(len(e.activeSubscriptions)) < target {
		missing = target - uint64(len(e.activeSubscriptions))
	}

	active := make(map[meridian.Identifier]struct{}, len(e.activeSubscriptions))
	for peerID := range e.activeSubscriptions {
		active[peerID] = struct{}{}
	}
	unhealthy := make(map[meridian.Identifier]struct{}, len(e.unhealthySubscriptions))
	for peerID := range e.unhealthySubscriptions {
		unhealthy[peerID] = struct{}{}
	}
	e.unit.Unlock()

	if missing == 0 {
		e.reportActiveSubscriptions()
		return
	}

	candidates := e.selector.SelectCandidates(
		e.monitor.HealthSnapshot(),
		active,
		unhealthy,
		e.publisher.Subscribers(),
	)
	newSubscriptions := e.selector.CreateNewSubscriptions(context.Background(), missing, candidates)

	e.unit.Lock()
	for _, sub := range newSubscriptions {
		e.activeSubscriptions[sub.Peer()] = sub
	}
	e.unit.Unlock()

	e.reportActiveSubscriptions()
}

func (e *Engine) reportActiveSubscriptions() {
	e.unit.Lock()
	defer e.unit.Unlock()
	e.metrics.ActiveSubscriptions(uint(len(e.activeSubscriptions)))
}
