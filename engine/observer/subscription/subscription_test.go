package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridianlabs/meridian-go/utils/unittest"
)

// TestRecordMessageTracksHighestRound tests that the highest synced round
// never decreases.
func TestRecordMessageTracksHighestRound(t *testing.T) {
	sub := NewSubscription(unittest.IdentifierFixture(), time.Minute)

	sub.RecordMessage(10)
	sub.RecordMessage(5)
	sub.RecordMessage(12)

	require.Equal(t, uint64(12), sub.HighestSyncedRound())
}

// TestCheckHealthDisconnected tests that a disconnected peer fails the
// health check with the sentinel error.
func TestCheckHealthDisconnected(t *testing.T) {
	sub := NewSubscription(unittest.IdentifierFixture(), time.Minute)

	err := sub.CheckHealth(false)
	require.ErrorIs(t, err, ErrPeerDisconnected)
}

// TestCheckHealthTimeout tests that message inactivity beyond the sync
// timeout fails the health check.
func TestCheckHealthTimeout(t *testing.T) {
	sub := NewSubscription(unittest.IdentifierFixture(), time.Nanosecond)
	time.Sleep(time.Millisecond)

	err := sub.CheckHealth(true)
	require.ErrorIs(t, err, ErrSubscriptionTimeout)

	// a fresh message restores health
	sub2 := NewSubscription(unittest.IdentifierFixture(), time.Minute)
	sub2.RecordMessage(1)
	require.NoError(t, sub2.CheckHealth(true))
}
