package unittest

import (
	"math/rand"
	"time"

	"github.com/meridianlabs/meridian-go/model/meridian"
	"github.com/meridianlabs/meridian-go/model/messages"
)

// IdentifierFixture returns a random identifier.
func IdentifierFixture() meridian.Identifier {
	var id meridian.Identifier
	rand.Read(id[:])
	return id
}

// IdentifierListFixture returns a list of random identifiers.
func IdentifierListFixture(n int) []meridian.Identifier {
	list := make([]meridian.Identifier, 0, n)
	for i := 0; i < n; i++ {
		list = append(list, IdentifierFixture())
	}
	return list
}

// PipelinedBlockFixture returns a pipelined block at the given coordinates.
func PipelinedBlockFixture(epoch uint64, round uint64) *meridian.PipelinedBlock {
	return &meridian.PipelinedBlock{
		Info: meridian.BlockInfo{
			Epoch:     epoch,
			Round:     round,
			BlockID:   IdentifierFixture(),
			Timestamp: time.Now().UTC(),
		},
		PayloadHash: IdentifierFixture(),
	}
}

// OrderedBlockFixture returns an ordered block whose window covers the given
// rounds of the given epoch, with a matching order proof.
func OrderedBlockFixture(epoch uint64, rounds ...uint64) *meridian.OrderedBlock {
	if len(rounds) == 0 {
		panic("ordered block fixture requires at least one round")
	}
	blocks := make([]*meridian.PipelinedBlock, 0, len(rounds))
	for _, round := range rounds {
		blocks = append(blocks, PipelinedBlockFixture(epoch, round))
	}
	return &meridian.OrderedBlock{
		Blocks: blocks,
		Proof: meridian.OrderProof{
			Epoch:               epoch,
			HighestRound:        rounds[len(rounds)-1],
			CommitID:            IdentifierFixture(),
			AggregatedSignature: []byte("aggregated-signature-fixture"),
		},
	}
}

// ObservedOrderedBlockFixture returns a verified observed wrapper around an
// ordered block fixture.
func ObservedOrderedBlockFixture(epoch uint64, rounds ...uint64) *meridian.ObservedOrderedBlock {
	return meridian.NewObservedOrderedBlock(OrderedBlockFixture(epoch, rounds...))
}

// BlockPayloadFixture returns a payload for the given block coordinates.
func BlockPayloadFixture(epoch uint64, round uint64) *messages.BlockPayload {
	return &messages.BlockPayload{
		Info: meridian.BlockInfo{
			Epoch:     epoch,
			Round:     round,
			BlockID:   IdentifierFixture(),
			Timestamp: time.Now().UTC(),
		},
		Transactions: [][]byte{[]byte("transaction-fixture")},
		PayloadProof: []byte("payload-proof-fixture"),
	}
}

// PeerHealthFixture returns a health view advertising both observer
// protocols, with the given measurements.
func PeerHealthFixture(distance uint64, latency float64) meridian.PeerHealth {
	return meridian.PeerHealth{
		DistanceFromValidators: &distance,
		AveragePingLatency:     &latency,
		Protocols: []meridian.Protocol{
			meridian.ProtocolObserverStream,
			meridian.ProtocolObserverRPC,
		},
	}
}

// PeerHealthWithProtocolsFixture returns a health view with the given
// protocol set and no measurements.
func PeerHealthWithProtocolsFixture(protocols ...meridian.Protocol) meridian.PeerHealth {
	return meridian.PeerHealth{Protocols: protocols}
}
