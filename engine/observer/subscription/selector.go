package subscription

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/meridianlabs/meridian-go/model/meridian"
	"github.com/meridianlabs/meridian-go/model/messages"
	"github.com/meridianlabs/meridian-go/module"
	"github.com/meridianlabs/meridian-go/network"
)

const (
	// maxDistanceFromValidators sorts peers with an unknown distance behind
	// every measured peer.
	maxDistanceFromValidators = uint64(math.MaxUint64)

	// maxPingLatencySecs sorts peers with an unknown ping latency behind
	// every measured peer within their distance group.
	maxPingLatencySecs = float64(10_000)
)

// Selector chooses the upstream peers to subscribe to. Ranking is a pure
// function of the peer health snapshot passed into each call; the selector
// keeps no state between invocations.
type Selector struct {
	log            zerolog.Logger
	metrics        module.ObserverMetrics
	rpc            network.SubscriptionRPC
	requestTimeout time.Duration
	maxSyncTimeout time.Duration
}

func NewSelector(
	log zerolog.Logger,
	metrics module.ObserverMetrics,
	rpc network.SubscriptionRPC,
	requestTimeout time.Duration,
	maxSyncTimeout time.Duration,
) *Selector {
	return &Selector{
		log:            log.With().Str("component", "subscription_selector").Logger(),
		metrics:        metrics,
		rpc:            rpc,
		requestTimeout: requestTimeout,
		maxSyncTimeout: maxSyncTimeout,
	}
}

// RankPeers orders the given peers from most to least optimal. Peers that do
// not advertise both observer protocols are excluded entirely. The remaining
// peers order by ascending distance from the validator set, then by ascending
// average ping latency, then by peer identifier to make ties deterministic.
// Missing measurements sort behind measured ones via sentinel defaults.
func (s *Selector) RankPeers(peers map[meridian.Identifier]meridian.PeerHealth) []meridian.Identifier {

	// peers without the required protocols are never ranked
	unsupported := 0
	groups := make(map[uint64][]meridian.Identifier)
	for peerID, health := range peers {
		if !health.SupportsObserver() {
			unsupported++
			continue
		}
		distance := maxDistanceFromValidators
		if health.DistanceFromValidators != nil {
			distance = *health.DistanceFromValidators
		}
		groups[distance] = append(groups[distance], peerID)
	}
	if unsupported > 0 {
		s.log.Info().
			Int("count", unsupported).
			Msg("excluded peers without observer protocol support from ranking")
	}

	latency := func(peerID meridian.Identifier) float64 {
		if health := peers[peerID]; health.AveragePingLatency != nil {
			return *health.AveragePingLatency
		}
		return maxPingLatencySecs
	}

	distances := maps.Keys(groups)
	slices.Sort(distances)

	ranked := make([]meridian.Identifier, 0, len(peers))
	for _, distance := range distances {
		group := groups[distance]
		slices.SortFunc(group, func(a, b meridian.Identifier) int {
			latencyA, latencyB := latency(a), latency(b)
			if latencyA < latencyB {
				return -1
			}
			if latencyA > latencyB {
				return 1
			}
			return bytes.Compare(a.Bytes(), b.Bytes())
		})
		ranked = append(ranked, group...)
	}
	return ranked
}

// SelectCandidates removes peers we cannot or should not subscribe to and
// ranks the rest: peers already serving us, peers previously marked
// unhealthy, and peers that are themselves subscribed to us (we never pull
// from a peer that is pulling from us).
func (s *Selector) SelectCandidates(
	connected map[meridian.Identifier]meridian.PeerHealth,
	activeSubscriptions map[meridian.Identifier]struct{},
	unhealthySubscriptions map[meridian.Identifier]struct{},
	reverseSubscribers map[meridian.Identifier]struct{},
) []meridian.Identifier {

	candidates := make(map[meridian.Identifier]meridian.PeerHealth, len(connected))
	for peerID, health := range connected {
		if _, active := activeSubscriptions[peerID]; active {
			continue
		}
		if _, unhealthy := unhealthySubscriptions[peerID]; unhealthy {
			continue
		}
		if _, reverse := reverseSubscribers[peerID]; reverse {
			continue
		}
		candidates[peerID] = health
	}

	return s.RankPeers(candidates)
}

// CreateNewSubscriptions attempts to establish up to targetCount
// subscriptions, consuming the ranked candidate list destructively: peers
// that fail an attempt are never retried within this invocation, and each
// successful subscription targets a different peer. Fewer than targetCount
// subscriptions (including none) is a valid outcome once the candidates are
// exhausted.
func (s *Selector) CreateNewSubscriptions(ctx context.Context, targetCount uint64, candidates []meridian.Identifier) []*Subscription {

	var subscriptions []*Subscription
	var errs *multierror.Error

	for uint64(len(subscriptions)) < targetCount {
		if len(candidates) == 0 {
			break
		}

		sub, failedPeers, attemptErrs := s.createSingleSubscription(ctx, candidates)
		errs = multierror.Append(errs, attemptErrs)

		consumed := make(map[meridian.Identifier]struct{}, len(failedPeers)+1)
		for _, peerID := range failedPeers {
			consumed[peerID] = struct{}{}
			s.metrics.SubscriptionFailed()
		}
		if sub != nil {
			consumed[sub.Peer()] = struct{}{}
			subscriptions = append(subscriptions, sub)
			s.metrics.SubscriptionCreated()
			s.log.Info().
				Str("peer", sub.Peer().String()).
				Msg("created new subscription")
		}

		remaining := candidates[:0]
		for _, peerID := range candidates {
			if _, gone := consumed[peerID]; !gone {
				remaining = append(remaining, peerID)
			}
		}
		candidates = remaining
	}

	if err := errs.ErrorOrNil(); err != nil {
		s.log.Warn().Err(err).
			Int("created", len(subscriptions)).
			Uint64("target", targetCount).
			Msg("some subscription attempts failed")
	}

	return subscriptions
}

// createSingleSubscription scans the candidates strictly in rank order and
// returns the first successfully established subscription, together with the
// peers that failed before it. A slow or unreachable peer only costs its own
// attempt; the scan continues with the next candidate.
func (s *Selector) createSingleSubscription(ctx context.Context, candidates []meridian.Identifier) (*Subscription, []meridian.Identifier, *multierror.Error) {

	var failedPeers []meridian.Identifier
	var errs *multierror.Error

	for _, peerID := range candidates {
		res, err := s.rpc.SendSubscribeRequest(ctx, peerID, s.requestTimeout)
		if err != nil {
			failedPeers = append(failedPeers, peerID)
			errs = multierror.Append(errs, fmt.Errorf("subscribe to %s failed: %w", peerID, err))
			continue
		}
		if res.Kind != messages.SubscribeAck {
			failedPeers = append(failedPeers, peerID)
			errs = multierror.Append(errs, fmt.Errorf("subscribe to %s answered with %s", peerID, res.Kind))
			continue
		}
		return NewSubscription(peerID, s.maxSyncTimeout), failedPeers, errs
	}

	return nil, failedPeers, errs
}
