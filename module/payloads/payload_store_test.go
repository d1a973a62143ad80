package payloads

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/meridianlabs/meridian-go/model/meridian"
	"github.com/meridianlabs/meridian-go/module/metrics"
	"github.com/meridianlabs/meridian-go/utils/unittest"
)

func TestPayloadStore(t *testing.T) {
	suite.Run(t, new(PayloadStoreSuite))
}

type PayloadStoreSuite struct {
	suite.Suite

	store *PayloadStore
}

func (s *PayloadStoreSuite) SetupTest() {
	s.store = NewPayloadStore(unittest.Logger(), metrics.NewNoopCollector(), 10)
}

// TestVerifiedPayloadsSatisfyReadiness tests that only verified payloads
// count towards block readiness.
func (s *PayloadStoreSuite) TestVerifiedPayloadsSatisfyReadiness() {
	ordered := unittest.OrderedBlockFixture(1, 5, 6)

	s.store.InsertBlockPayload(unittest.BlockPayloadFixture(1, 5), true)
	s.store.InsertBlockPayload(unittest.BlockPayloadFixture(1, 6), false)

	require.False(s.T(), s.store.AllPayloadsExist(ordered.Blocks))
	require.True(s.T(), s.store.ExistsPayload(meridian.EpochRound{Epoch: 1, Round: 6}))

	s.store.InsertBlockPayload(unittest.BlockPayloadFixture(1, 6), true)
	require.True(s.T(), s.store.AllPayloadsExist(ordered.Blocks))
}

// TestUnverifiedNeverDowngrades tests that an unverified payload does not
// replace an already verified entry.
func (s *PayloadStoreSuite) TestUnverifiedNeverDowngrades() {
	ordered := unittest.OrderedBlockFixture(1, 5)

	s.store.InsertBlockPayload(unittest.BlockPayloadFixture(1, 5), true)
	s.store.InsertBlockPayload(unittest.BlockPayloadFixture(1, 5), false)

	require.True(s.T(), s.store.AllPayloadsExist(ordered.Blocks))
}

// TestVerifyPayloadsForEpoch tests that unverified payloads of the new epoch
// are upgraded and unverified payloads of other epochs dropped.
func (s *PayloadStoreSuite) TestVerifyPayloadsForEpoch() {
	s.store.InsertBlockPayload(unittest.BlockPayloadFixture(2, 1), false)
	s.store.InsertBlockPayload(unittest.BlockPayloadFixture(2, 2), false)
	s.store.InsertBlockPayload(unittest.BlockPayloadFixture(3, 1), false)

	verified := s.store.VerifyPayloadsForEpoch(2)

	require.Equal(s.T(), 2, verified)
	require.True(s.T(), s.store.AllPayloadsExist(unittest.OrderedBlockFixture(2, 1, 2).Blocks))
	require.False(s.T(), s.store.ExistsPayload(meridian.EpochRound{Epoch: 3, Round: 1}))
}

// TestPruneForCommit tests that payloads at or below the commit frontier are
// removed.
func (s *PayloadStoreSuite) TestPruneForCommit() {
	for round := uint64(1); round <= 5; round++ {
		s.store.InsertBlockPayload(unittest.BlockPayloadFixture(1, round), true)
	}

	s.store.PruneForCommit(1, 3)

	require.Equal(s.T(), uint(2), s.store.Size())
	require.False(s.T(), s.store.ExistsPayload(meridian.EpochRound{Epoch: 1, Round: 3}))
	require.True(s.T(), s.store.ExistsPayload(meridian.EpochRound{Epoch: 1, Round: 4}))
}

// TestCapacityEviction tests that the oldest payloads are evicted once the
// store is full.
func (s *PayloadStoreSuite) TestCapacityEviction() {
	s.store = NewPayloadStore(unittest.Logger(), metrics.NewNoopCollector(), 3)

	for round := uint64(1); round <= 5; round++ {
		s.store.InsertBlockPayload(unittest.BlockPayloadFixture(1, round), true)
	}

	require.Equal(s.T(), uint(3), s.store.Size())
	require.False(s.T(), s.store.ExistsPayload(meridian.EpochRound{Epoch: 1, Round: 1}))
	require.False(s.T(), s.store.ExistsPayload(meridian.EpochRound{Epoch: 1, Round: 2}))
	require.True(s.T(), s.store.ExistsPayload(meridian.EpochRound{Epoch: 1, Round: 5}))
}

// TestClear tests that Clear empties the store.
func (s *PayloadStoreSuite) TestClear() {
	s.store.InsertBlockPayload(unittest.BlockPayloadFixture(1, 1), true)

	s.store.Clear()

	require.Equal(s.T(), uint(0), s.store.Size())
}
