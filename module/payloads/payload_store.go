package payloads

import (
	"sync"

	"github.com/google/btree"
	"github.com/rs/zerolog"

	"github.com/meridianlabs/meridian-go/model/meridian"
	"github.com/meridianlabs/meridian-go/model/messages"
	"github.com/meridianlabs/meridian-go/module"
)

const btreeDegree = 16

// payloadStatus tracks whether a stored payload has been verified against
// epoch state.
type payloadStatus int

const (
	statusUnverified payloadStatus = iota
	statusVerified
)

type payloadEntry struct {
	key     meridian.EpochRound
	payload *messages.BlockPayload
	status  payloadStatus
}

func lessPayloadEntry(a, b payloadEntry) bool {
	return a.key.Less(b.key)
}

// PayloadStore holds the transaction payloads disseminated alongside block
// ordering metadata. Payloads received from verified subscriptions are stored
// as verified; payloads received around an epoch boundary are buffered
// unverified until the epoch state to check them arrives.
//
// Only verified payloads count towards block readiness. The store is bounded:
// inserting beyond the capacity evicts the payloads with the lowest
// (epoch, round) keys. PayloadStore is safe for concurrent use.
type PayloadStore struct {
	log            zerolog.Logger
	metrics        module.ObserverMetrics
	maxNumPayloads uint64

	mu       sync.Mutex
	payloads *btree.BTreeG[payloadEntry]
}

var _ module.PayloadStore = (*PayloadStore)(nil)

// NewPayloadStore creates an empty payload store with the given capacity.
func NewPayloadStore(log zerolog.Logger, metrics module.ObserverMetrics, maxNumPayloads uint64) *PayloadStore {
	return &PayloadStore{
		log:            log.With().Str("component", "payload_store").Logger(),
		metrics:        metrics,
		maxNumPayloads: maxNumPayloads,
		payloads:       btree.NewG(btreeDegree, lessPayloadEntry),
	}
}

// AllPayloadsExist returns true if a verified payload is stored for every
// block in the given window.
func (s *PayloadStore) AllPayloadsExist(blocks []*meridian.PipelinedBlock) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, block := range blocks {
		key := meridian.EpochRound{Epoch: block.Epoch(), Round: block.Round()}
		stored, ok := s.payloads.Get(payloadEntry{key: key})
		if !ok || stored.status != statusVerified {
			return false
		}
	}
	return true
}

// ExistsPayload returns true if any payload (verified or not) is stored for
// the given key.
func (s *PayloadStore) ExistsPayload(key meridian.EpochRound) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.payloads.Has(payloadEntry{key: key})
}

// InsertBlockPayload stores a payload for the block it names. An unverified
// payload never downgrades an already verified one.
func (s *PayloadStore) InsertBlockPayload(payload *messages.BlockPayload, verified bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := payload.EpochRound()
	status := statusUnverified
	if verified {
		status = statusVerified
	}

	if stored, ok := s.payloads.Get(payloadEntry{key: key}); ok {
		if stored.status == statusVerified && status == statusUnverified {
			s.log.Warn().
				Str("epoch_round", key.String()).
				Msg("ignoring unverified payload for already verified entry")
			return
		}
	}
	s.payloads.ReplaceOrInsert(payloadEntry{key: key, payload: payload, status: status})

	for uint64(s.payloads.Len()) > s.maxNumPayloads {
		evicted, ok := s.payloads.DeleteMin()
		if !ok {
			break
		}
		s.log.Warn().
			Str("epoch_round", evicted.key.String()).
			Msg("payload store is full, evicting oldest payload")
	}

	s.reportSize()
}

// VerifyPayloadsForEpoch upgrades buffered unverified payloads for the given
// epoch once the epoch state to check them is available. Unverified payloads
// from other epochs are dropped. Returns the number of upgraded payloads.
func (s *PayloadStore) VerifyPayloadsForEpoch(epoch uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var unverified []payloadEntry
	s.payloads.Ascend(func(e payloadEntry) bool {
		if e.status == statusUnverified {
			unverified = append(unverified, e)
		}
		return true
	})

	verifiedCount := 0
	for _, e := range unverified {
		if e.key.Epoch == epoch {
			e.status = statusVerified
			s.payloads.ReplaceOrInsert(e)
			verifiedCount++
			continue
		}
		s.payloads.Delete(e)
		s.log.Info().
			Str("epoch_round", e.key.String()).
			Uint64("current_epoch", epoch).
			Msg("dropping unverified payload from another epoch")
	}

	s.reportSize()
	return verifiedCount
}

// PruneForCommit removes all payloads at or below the given commit frontier.
func (s *PayloadStore) PruneForCommit(epoch uint64, round uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	split := meridian.EpochRound{Epoch: epoch, Round: round + 1}
	var pruned []payloadEntry
	s.payloads.AscendLessThan(payloadEntry{key: split}, func(e payloadEntry) bool {
		pruned = append(pruned, e)
		return true
	})
	for _, e := range pruned {
		s.payloads.Delete(e)
	}

	if len(pruned) > 0 {
		s.log.Debug().
			Int("count", len(pruned)).
			Uint64("epoch", epoch).
			Uint64("round", round).
			Msg("pruned committed payloads")
	}
	s.reportSize()
}

// Clear empties the store.
func (s *PayloadStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.payloads.Clear(false)
	s.reportSize()
}

// Size returns the number of stored payloads.
func (s *PayloadStore) Size() uint {
	s.mu.Lock()
	defer s.mu.Unlock()

	return uint(s.payloads.Len())
}

func (s *PayloadStore) reportSize() {
	verified := uint(0)
	unverified := uint(0)
	s.payloads.Ascend(func(e payloadEntry) bool {
		if e.status == statusVerified {
			verified++
		} else {
			unverified++
		}
		return true
	})
	s.metrics.PayloadsStored(verified, unverified)
}
