package observer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/meridianlabs/meridian-go/config"
	"github.com/meridianlabs/meridian-go/engine/observer/subscription"
	"github.com/meridianlabs/meridian-go/model/meridian"
	"github.com/meridianlabs/meridian-go/model/messages"
	"github.com/meridianlabs/meridian-go/module/metrics"
	"github.com/meridianlabs/meridian-go/module/payloads"
	"github.com/meridianlabs/meridian-go/module/peers"
	"github.com/meridianlabs/meridian-go/module/pending"
	"github.com/meridianlabs/meridian-go/utils/unittest"
)

func TestObserverEngine(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

type EngineSuite struct {
	suite.Suite

	engine   *Engine
	monitor  *peers.Monitor
	rpc      *ackingRPC
	consumer *consumerStub

	upstream meridian.Identifier
}

func (s *EngineSuite) SetupTest() {
	cfg := config.DefaultObserverConfig()
	cfg.MaxConcurrentSubscriptions = 1
	cfg.SubscriptionCheckInterval = 10 * time.Millisecond

	log := unittest.Logger()
	collector := metrics.NewNoopCollector()

	s.rpc = &ackingRPC{}
	s.consumer = newConsumerStub()
	s.monitor = peers.NewMonitor(log, cfg.PingWindow)

	pendingBlocks := pending.NewBlockStore(log, collector, cfg.MaxNumPendingBlocks)
	payloadStore := payloads.NewPayloadStore(log, collector, cfg.MaxNumPayloads)
	selector := subscription.NewSelector(log, collector, s.rpc, cfg.NetworkRequestTimeout, cfg.MaxSubscriptionSyncTimeout)

	var err error
	s.engine, err = New(log, collector, cfg,
		pendingBlocks, payloadStore, selector, s.monitor,
		&publisherStub{}, s.consumer)
	require.NoError(s.T(), err)

	s.upstream = unittest.IdentifierFixture()
	s.monitor.PeerConnected(s.upstream, []meridian.Protocol{
		meridian.ProtocolObserverStream,
		meridian.ProtocolObserverRPC,
	})

	<-s.engine.Ready()
	s.waitForSubscription()
}

func (s *EngineSuite) TearDownTest() {
	<-s.engine.Done()
}

// waitForSubscription blocks until the subscription loop established the
// upstream subscription.
func (s *EngineSuite) waitForSubscription() {
	require.Eventually(s.T(), func() bool {
		for _, peerID := range s.engine.ActiveSubscriptionPeers() {
			if peerID == s.upstream {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond, "subscription was never established")
}

type ackingRPC struct{}

func (r *ackingRPC) SendSubscribeRequest(_ context.Context, _ meridian.Identifier, _ time.Duration) (*messages.SubscribeResponse, error) {
	return &messages.SubscribeResponse{Kind: messages.SubscribeAck}, nil
}

type publisherStub struct{}

func (p *publisherStub) Subscribers() map[meridian.Identifier]struct{} {
	return nil
}

// consumerStub collects forwarded blocks.
type consumerStub struct {
	mu     sync.Mutex
	blocks []*meridian.ObservedOrderedBlock
}

func newConsumerStub() *consumerStub {
	return &consumerStub{}
}

func (c *consumerStub) OnOrderedBlockReady(block *meridian.ObservedOrderedBlock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks = append(c.blocks, block)
}

func (c *consumerStub) forwarded() []*meridian.ObservedOrderedBlock {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*meridian.ObservedOrderedBlock(nil), c.blocks...)
}

// TestOrderedBlockWaitsForPayloads tests that an ordered block arriving
// before its payloads is buffered, and forwarded once the payloads arrive.
func (s *EngineSuite) TestOrderedBlockWaitsForPayloads() {
	ordered := unittest.OrderedBlockFixture(1, 5, 6)

	s.engine.Process(s.upstream, &messages.OrderedBlockMessage{OrderedBlock: ordered})
	s.engine.Process(s.upstream, &messages.BlockPayloadMessage{Payload: unittest.BlockPayloadFixture(1, 5)})

	// first payload alone does not complete the window
	require.Never(s.T(), func() bool {
		return len(s.consumer.forwarded()) > 0
	}, 50*time.Millisecond, 10*time.Millisecond)

	s.engine.Process(s.upstream, &messages.BlockPayloadMessage{Payload: unittest.BlockPayloadFixture(1, 6)})

	require.Eventually(s.T(), func() bool {
		forwarded := s.consumer.forwarded()
		return len(forwarded) == 1 && forwarded[0].OrderedBlock() == ordered
	}, time.Second, 5*time.Millisecond)
}

// TestPayloadCompleteBlockForwardsImmediately tests that a block whose
// payloads are already known skips the buffer.
func (s *EngineSuite) TestPayloadCompleteBlockForwardsImmediately() {
	s.engine.Process(s.upstream, &messages.BlockPayloadMessage{Payload: unittest.BlockPayloadFixture(1, 7)})
	ordered := unittest.OrderedBlockFixture(1, 7)

	s.engine.Process(s.upstream, &messages.OrderedBlockMessage{OrderedBlock: ordered})

	require.Eventually(s.T(), func() bool {
		forwarded := s.consumer.forwarded()
		return len(forwarded) == 1 && forwarded[0].OrderedBlock() == ordered
	}, time.Second, 5*time.Millisecond)
}

// TestMessagesFromUnknownPeersDropped tests that only subscribed peers feed
// the block stream.
func (s *EngineSuite) TestMessagesFromUnknownPeersDropped() {
	stranger := unittest.IdentifierFixture()
	s.engine.Process(stranger, &messages.BlockPayloadMessage{Payload: unittest.BlockPayloadFixture(1, 8)})
	s.engine.Process(stranger, &messages.OrderedBlockMessage{OrderedBlock: unittest.OrderedBlockFixture(1, 8)})

	require.Never(s.T(), func() bool {
		return len(s.consumer.forwarded()) > 0
	}, 50*time.Millisecond, 10*time.Millisecond)
}

// TestDuplicateBlockForwardedOnce tests the forwarded-block dedup.
func (s *EngineSuite) TestDuplicateBlockForwardedOnce() {
	s.engine.Process(s.upstream, &messages.BlockPayloadMessage{Payload: unittest.BlockPayloadFixture(1, 9)})
	ordered := unittest.OrderedBlockFixture(1, 9)

	s.engine.Process(s.upstream, &messages.OrderedBlockMessage{OrderedBlock: ordered})
	s.engine.Process(s.upstream, &messages.OrderedBlockMessage{OrderedBlock: ordered})

	require.Eventually(s.T(), func() bool {
		return len(s.consumer.forwarded()) == 1
	}, time.Second, 5*time.Millisecond)
	require.Never(s.T(), func() bool {
		return len(s.consumer.forwarded()) > 1
	}, 50*time.Millisecond, 10*time.Millisecond)
}

// TestUnhealthySubscriptionReplaced tests that a disconnected upstream peer
// is torn down by the health check.
func (s *EngineSuite) TestUnhealthySubscriptionReplaced() {
	s.monitor.PeerDisconnected(s.upstream)

	require.Eventually(s.T(), func() bool {
		return len(s.engine.ActiveSubscriptionPeers()) == 0
	}, time.Second, 5*time.Millisecond)
}

// TestReset tests that fallback recovery clears state and subscriptions.
func (s *EngineSuite) TestReset() {
	s.engine.Process(s.upstream, &messages.OrderedBlockMessage{OrderedBlock: unittest.OrderedBlockFixture(1, 11)})

	// keep the subscription loop from re-establishing the subscription
	s.monitor.PeerDisconnected(s.upstream)
	s.engine.Reset()

	require.Never(s.T(), func() bool {
		return len(s.engine.ActiveSubscriptionPeers()) > 0
	}, 50*time.Millisecond, 10*time.Millisecond)
}
