package messages

import (
	"github.com/meridianlabs/meridian-go/model/meridian"
)

// OrderedBlockMessage is pushed by an upstream peer when consensus finalizes
// the order of a new block window.
type OrderedBlockMessage struct {
	OrderedBlock *meridian.OrderedBlock
}

// BlockPayload carries the transaction data for a single pipelined block,
// disseminated separately from the ordering metadata.
type BlockPayload struct {
	Info         meridian.BlockInfo
	Transactions [][]byte
	PayloadProof []byte
}

// EpochRound returns the ordering key of the block the payload belongs to.
func (p *BlockPayload) EpochRound() meridian.EpochRound {
	return meridian.EpochRound{Epoch: p.Info.Epoch, Round: p.Info.Round}
}

// BlockPayloadMessage is pushed by an upstream peer when the transaction
// payload for a block becomes available.
type BlockPayloadMessage struct {
	Payload *BlockPayload
}

// SubscribeRequest asks a peer to add us to its observer push stream.
type SubscribeRequest struct {
	Nonce uint64
}

// SubscribeResponseKind discriminates the possible subscribe handshake
// outcomes.
type SubscribeResponseKind uint8

const (
	SubscribeAck SubscribeResponseKind = iota + 1
	UnsubscribeAck
	SubscribeError
)

func (k SubscribeResponseKind) String() string {
	switch k {
	case SubscribeAck:
		return "subscribe_ack"
	case UnsubscribeAck:
		return "unsubscribe_ack"
	case SubscribeError:
		return "subscribe_error"
	default:
		return "unknown"
	}
}

// SubscribeResponse answers a SubscribeRequest.
type SubscribeResponse struct {
	Nonce uint64
	Kind  SubscribeResponseKind
}

// UnsubscribeRequest asks a peer to remove us from its push stream.
type UnsubscribeRequest struct {
	Nonce uint64
}
