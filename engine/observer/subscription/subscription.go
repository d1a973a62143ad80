package subscription

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/atomic"

	"github.com/meridianlabs/meridian-go/model/meridian"
)

var (
	// ErrSubscriptionTimeout indicates that no message arrived on the
	// subscription within the configured inactivity window.
	ErrSubscriptionTimeout = errors.New("subscription timed out")
	// ErrPeerDisconnected indicates that the subscribed peer is no longer
	// connected.
	ErrPeerDisconnected = errors.New("subscribed peer disconnected")
)

// Subscription is a logical pull-stream session with one upstream peer. It is
// created on a successful subscribe handshake and owned by the observer
// engine; the selector only constructs and returns it.
//
// Message bookkeeping is updated from the engine's processing loops while the
// health check runs on the ticker loop, hence the atomic fields.
type Subscription struct {
	peerID         meridian.Identifier
	createdAt      time.Time
	maxSyncTimeout time.Duration

	lastMessageTime    atomic.Time
	highestSyncedRound atomic.Uint64
}

// NewSubscription records a freshly established subscription to peerID.
func NewSubscription(peerID meridian.Identifier, maxSyncTimeout time.Duration) *Subscription {
	s := &Subscription{
		peerID:         peerID,
		createdAt:      time.Now(),
		maxSyncTimeout: maxSyncTimeout,
	}
	s.lastMessageTime.Store(s.createdAt)
	return s
}

// Peer returns the subscribed peer.
func (s *Subscription) Peer() meridian.Identifier {
	return s.peerID
}

// CreatedAt returns the handshake completion time.
func (s *Subscription) CreatedAt() time.Time {
	return s.createdAt
}

// RecordMessage notes that a message for the given round arrived on this
// subscription.
func (s *Subscription) RecordMessage(round uint64) {
	s.lastMessageTime.Store(time.Now())
	for {
		highest := s.highestSyncedRound.Load()
		if round <= highest {
			return
		}
		if s.highestSyncedRound.CompareAndSwap(highest, round) {
			return
		}
	}
}

// HighestSyncedRound returns the highest round seen on this subscription.
func (s *Subscription) HighestSyncedRound() uint64 {
	return s.highestSyncedRound.Load()
}

// CheckHealth returns nil if the subscription is still serviceable, or a
// typed sentinel error describing why it should be torn down.
func (s *Subscription) CheckHealth(peerConnected bool) error {
	if !peerConnected {
		return fmt.Errorf("peer %s: %w", s.peerID, ErrPeerDisconnected)
	}
	if elapsed := time.Since(s.lastMessageTime.Load()); elapsed > s.maxSyncTimeout {
		return fmt.Errorf("peer %s idle for %s: %w", s.peerID, elapsed, ErrSubscriptionTimeout)
	}
	return nil
}
