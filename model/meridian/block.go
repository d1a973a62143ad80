package meridian

import (
	"encoding/binary"
	"fmt"
	"time"
)

// BlockInfo carries the ordering coordinates of a single pipelined block:
// the epoch it was proposed in, its round within the epoch (monotonically
// increasing per epoch) and its content hash.
type BlockInfo struct {
	Epoch     uint64
	Round     uint64
	BlockID   Identifier
	Timestamp time.Time
}

// PipelinedBlock is one block inside the window of an ordered block. The
// observer never executes pipelined blocks itself; it only tracks their
// ordering coordinates and whether their transaction payload has arrived.
type PipelinedBlock struct {
	Info        BlockInfo
	PayloadHash Identifier
}

func (b *PipelinedBlock) Epoch() uint64 {
	return b.Info.Epoch
}

func (b *PipelinedBlock) Round() uint64 {
	return b.Info.Round
}

// ID returns the content hash of the block.
func (b *PipelinedBlock) ID() Identifier {
	return b.Info.BlockID
}

// EpochRound is the ordering key of a pipelined block. Keys compare by epoch
// first and round second.
type EpochRound struct {
	Epoch uint64
	Round uint64
}

// Less returns true if k orders strictly before other.
func (k EpochRound) Less(other EpochRound) bool {
	if k.Epoch != other.Epoch {
		return k.Epoch < other.Epoch
	}
	return k.Round < other.Round
}

func (k EpochRound) String() string {
	return fmt.Sprintf("(%d, %d)", k.Epoch, k.Round)
}

// Bytes returns a big-endian encoding that preserves the key ordering.
func (k EpochRound) Bytes() []byte {
	out := make([]byte, 16)
	binary.BigEndian.PutUint64(out[:8], k.Epoch)
	binary.BigEndian.PutUint64(out[8:], k.Round)
	return out
}

// OrderProof attests that upstream consensus finalized the order of a block
// window. The observer treats the signature material as opaque; verification
// happens upstream of the block feed.
type OrderProof struct {
	Epoch               uint64
	HighestRound        uint64
	CommitID            Identifier
	AggregatedSignature []byte
}

// OrderedBlock is a non-empty window of pipelined blocks whose order has been
// finalized by upstream consensus, together with the proof of that ordering.
type OrderedBlock struct {
	Blocks []*PipelinedBlock
	Proof  OrderProof
}

// FirstBlock returns the first block of the window.
// The window is guaranteed non-empty by construction.
func (ob *OrderedBlock) FirstBlock() *PipelinedBlock {
	return ob.Blocks[0]
}

// LastBlock returns the last block of the window.
func (ob *OrderedBlock) LastBlock() *PipelinedBlock {
	return ob.Blocks[len(ob.Blocks)-1]
}

// FirstEpochRound returns the ordering key of the first block in the window.
func (ob *OrderedBlock) FirstEpochRound() EpochRound {
	first := ob.FirstBlock()
	return EpochRound{Epoch: first.Epoch(), Round: first.Round()}
}

// Provenance records how the observer came to hold an ordered block.
type Provenance int

const (
	// ProvenanceVerified marks blocks whose order proof was checked against
	// the current epoch state before entering the feed.
	ProvenanceVerified Provenance = iota
	// ProvenanceOpportunistic marks blocks accepted ahead of epoch state
	// verification, e.g. around an epoch boundary.
	ProvenanceOpportunistic
)

func (p Provenance) String() string {
	switch p {
	case ProvenanceVerified:
		return "verified"
	case ProvenanceOpportunistic:
		return "opportunistic"
	default:
		return "unknown"
	}
}

// ObservedOrderedBlock wraps an ordered block with observer-local provenance.
// The block feed passes the wrapper through unchanged.
type ObservedOrderedBlock struct {
	Block      *OrderedBlock
	Provenance Provenance
}

// NewObservedOrderedBlock wraps an ordered block as verified.
func NewObservedOrderedBlock(block *OrderedBlock) *ObservedOrderedBlock {
	return &ObservedOrderedBlock{Block: block, Provenance: ProvenanceVerified}
}

// NewOpportunisticOrderedBlock wraps an ordered block observed ahead of epoch
// state verification.
func NewOpportunisticOrderedBlock(block *OrderedBlock) *ObservedOrderedBlock {
	return &ObservedOrderedBlock{Block: block, Provenance: ProvenanceOpportunistic}
}

func (ob *ObservedOrderedBlock) OrderedBlock() *OrderedBlock {
	return ob.Block
}
