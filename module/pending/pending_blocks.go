package pending

import (
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/rs/zerolog"

	"github.com/meridianlabs/meridian-go/model/meridian"
	"github.com/meridianlabs/meridian-go/module"
)

// btreeDegree is the branching factor of the ordered index.
const btreeDegree = 16

// BlockWithMetadata is an ordered block annotated with where and when the
// observer received it. It is created once at insertion time and shared
// read-only between both store indices; it is never mutated afterwards.
type BlockWithMetadata struct {
	PeerID      meridian.Identifier
	ReceiptTime time.Time
	Block       *meridian.ObservedOrderedBlock
}

// NewBlockWithMetadata annotates an observed ordered block with its source
// peer and the current time.
func NewBlockWithMetadata(peerID meridian.Identifier, block *meridian.ObservedOrderedBlock) *BlockWithMetadata {
	return &BlockWithMetadata{
		PeerID:      peerID,
		ReceiptTime: time.Now(),
		Block:       block,
	}
}

// OrderedBlock returns the wrapped ordered block.
func (b *BlockWithMetadata) OrderedBlock() *meridian.OrderedBlock {
	return b.Block.OrderedBlock()
}

// entry keys a shared block record by the (epoch, round) of its first block.
type entry struct {
	key   meridian.EpochRound
	block *BlockWithMetadata
}

func lessEntry(a, b entry) bool {
	return a.key.Less(b.key)
}

// BlockStore buffers ordered blocks whose transaction payloads have not all
// arrived yet. Blocks are indexed twice: ordered by the (epoch, round) of
// their first block, and by the first block's content hash. Both indices
// share the same immutable records.
//
// The store holds at most maxPendingBlocks entries; inserting beyond the
// capacity evicts the oldest entries. BlockStore is safe for concurrent use.
type BlockStore struct {
	log              zerolog.Logger
	metrics          module.ObserverMetrics
	maxPendingBlocks uint64

	mu           sync.Mutex
	byEpochRound *btree.BTreeG[entry]
	byID         map[meridian.Identifier]*BlockWithMetadata
}

// NewBlockStore creates an empty store with the given capacity.
func NewBlockStore(log zerolog.Logger, metrics module.ObserverMetrics, maxPendingBlocks uint64) *BlockStore {
	return &BlockStore{
		log:              log.With().Str("component", "pending_block_store").Logger(),
		metrics:          metrics,
		maxPendingBlocks: maxPendingBlocks,
		byEpochRound:     btree.NewG(btreeDegree, lessEntry),
		byID:             make(map[meridian.Identifier]*BlockWithMetadata),
	}
}

// Insert adds a pending block to both indices. A block whose first-block
// (epoch, round) or hash collides with an existing entry is dropped and the
// existing entry is kept. If the insert pushes the store past its capacity,
// the entries with the lowest (epoch, round) keys are evicted.
func (s *BlockStore) Insert(block *BlockWithMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ordered := block.OrderedBlock()
	key := ordered.FirstEpochRound()
	blockID := ordered.FirstBlock().ID()

	if s.byEpochRound.Has(entry{key: key}) {
		s.log.Warn().
			Str("epoch_round", key.String()).
			Str("block_id", blockID.String()).
			Msg("duplicate pending block for epoch and round, keeping existing entry")
		return
	}
	if _, exists := s.byID[blockID]; exists {
		s.log.Warn().
			Str("epoch_round", key.String()).
			Str("block_id", blockID.String()).
			Msg("duplicate pending block for block ID, keeping existing entry")
		return
	}

	s.byEpochRound.ReplaceOrInsert(entry{key: key, block: block})
	s.byID[blockID] = block

	// bound memory against an upstream flooding ordered-block notifications
	for uint64(s.byEpochRound.Len()) > s.maxPendingBlocks {
		evicted, ok := s.byEpochRound.DeleteMin()
		if !ok {
			break
		}
		delete(s.byID, evicted.block.OrderedBlock().FirstBlock().ID())
		s.log.Warn().
			Str("epoch_round", evicted.key.String()).
			Msg("pending block store is full, evicting oldest entry")
		s.metrics.PendingBlockEvicted()
	}

	s.checkIndexParity()
	s.reportSize()
}

// Exists returns true if a pending block with the same first-block
// (epoch, round) is buffered.
func (s *BlockStore) Exists(block *meridian.OrderedBlock) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.byEpochRound.Has(entry{key: block.FirstEpochRound()})
}

// GetByID returns the pending block whose first block has the given hash.
func (s *BlockStore) GetByID(blockID meridian.Identifier) (*BlockWithMetadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	block, ok := s.byID[blockID]
	return block, ok
}

// RemoveReadyBlock extracts the single pending block (if any) that became
// payload complete now that payloads are known for all rounds up to
// payloadRound in payloadEpoch. Because blocks are totally ordered by round
// and payload knowledge only grows, the only possible candidate is the most
// recent entry at or below the payload frontier.
//
// All entries strictly older than the candidate are dropped as stale: their
// payloads can no longer arrive through this path. A candidate whose window
// extends past the frontier is not yet decidable and stays buffered.
//
// Returns nil if no block became ready.
func (s *BlockStore) RemoveReadyBlock(payloadEpoch uint64, payloadRound uint64, payloads module.PayloadOracle) *BlockWithMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()

	// partition at (payloadEpoch, payloadRound + 1): everything below the
	// split stays under consideration, everything at or above remains
	// buffered untouched
	split := meridian.EpochRound{Epoch: payloadEpoch, Round: payloadRound + 1}
	var lower []entry
	s.byEpochRound.AscendLessThan(entry{key: split}, func(e entry) bool {
		lower = append(lower, e)
		return true
	})
	for _, e := range lower {
		s.byEpochRound.Delete(e)
	}

	var readyBlock *BlockWithMetadata
	staleCount := uint(0)

	if len(lower) > 0 {
		candidate := lower[len(lower)-1]
		staleCount = uint(len(lower) - 1)

		ordered := candidate.block.OrderedBlock()
		last := ordered.LastBlock()
		lastKey := meridian.EpochRound{Epoch: last.Epoch(), Round: last.Round()}
		frontier := meridian.EpochRound{Epoch: payloadEpoch, Round: payloadRound}

		switch {
		case payloads.AllPayloadsExist(ordered.Blocks):
			readyBlock = candidate.block
			s.metrics.ReadyBlockExtracted()
		case frontier.Less(lastKey):
			// the window extends past the payload frontier, keep waiting
			s.byEpochRound.ReplaceOrInsert(candidate)
		default:
			// payloads for the candidate's rounds will never arrive here
			staleCount++
			s.log.Info().
				Str("epoch_round", candidate.key.String()).
				Msg("dropping incomplete pending block below the payload frontier")
		}
	}

	if staleCount > 0 {
		s.log.Info().
			Uint("count", staleCount).
			Uint64("payload_epoch", payloadEpoch).
			Uint64("payload_round", payloadRound).
			Msg("dropped stale pending blocks below the payload frontier")
		s.metrics.StaleBlocksDropped(staleCount)
	}

	// rebuild the hash index from the surviving ordered index
	byID := make(map[meridian.Identifier]*BlockWithMetadata, s.byEpochRound.Len())
	s.byEpochRound.Ascend(func(e entry) bool {
		byID[e.block.OrderedBlock().FirstBlock().ID()] = e.block
		return true
	})
	s.byID = byID

	s.checkIndexParity()
	s.reportSize()

	return readyBlock
}

// Clear empties both indices. Used on subscription reset and epoch change
// recovery.
func (s *BlockStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byEpochRound.Clear(false)
	s.byID = make(map[meridian.Identifier]*BlockWithMetadata)
	s.reportSize()
}

// Size returns the number of buffered blocks.
func (s *BlockStore) Size() uint {
	s.mu.Lock()
	defer s.mu.Unlock()

	return uint(s.byEpochRound.Len())
}

// checkIndexParity verifies that both indices track the same set of blocks.
// A mismatch indicates an internal bug but is not fatal: the store favors
// availability over strict consistency of its secondary index.
func (s *BlockStore) checkIndexParity() {
	if s.byEpochRound.Len() != len(s.byID) {
		s.log.Error().
			Int("by_epoch_round", s.byEpochRound.Len()).
			Int("by_id", len(s.byID)).
			Msg("pending block indices have diverged")
	}
}

func (s *BlockStore) reportSize() {
	highestRound := uint64(0)
	if max, ok := s.byEpochRound.Max(); ok {
		highestRound = max.key.Round
	}
	s.metrics.PendingBlocksStored(uint(s.byEpochRound.Len()), highestRound)
}
