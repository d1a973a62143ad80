package codec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridianlabs/meridian-go/model/messages"
	"github.com/meridianlabs/meridian-go/utils/unittest"
)

// TestEncodeDecodeOrderedBlock tests the envelope round trip for the push
// stream's main message.
func TestEncodeDecodeOrderedBlock(t *testing.T) {
	msg := &messages.OrderedBlockMessage{
		OrderedBlock: unittest.OrderedBlockFixture(3, 7, 8),
	}

	data, err := Encode(msg)
	require.NoError(t, err)
	require.Equal(t, CodeOrderedBlock, data[0])

	v, err := Decode(data)
	require.NoError(t, err)
	decoded, ok := v.(*messages.OrderedBlockMessage)
	require.True(t, ok)
	require.Equal(t, msg.OrderedBlock.FirstEpochRound(), decoded.OrderedBlock.FirstEpochRound())
	require.Equal(t, msg.OrderedBlock.FirstBlock().ID(), decoded.OrderedBlock.FirstBlock().ID())
	require.Len(t, decoded.OrderedBlock.Blocks, 2)
}

// TestEncodeDecodeHandshake tests the envelope round trip for the subscribe
// handshake pair.
func TestEncodeDecodeHandshake(t *testing.T) {
	req := &messages.SubscribeRequest{Nonce: 42}
	data, err := Encode(req)
	require.NoError(t, err)

	v, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, req, v)

	res := &messages.SubscribeResponse{Nonce: 42, Kind: messages.SubscribeAck}
	data, err = Encode(res)
	require.NoError(t, err)

	v, err = Decode(data)
	require.NoError(t, err)
	require.Equal(t, res, v)
}

// TestDecodeInvalidEnvelope tests that malformed envelopes are rejected.
func TestDecodeInvalidEnvelope(t *testing.T) {
	_, err := Decode(nil)
	require.Error(t, err)

	_, err = Decode([]byte{CodeMax, 0x00})
	require.Error(t, err)
}

// TestEncodeUnknownType tests that unregistered message types are rejected.
func TestEncodeUnknownType(t *testing.T) {
	_, err := Encode(struct{}{})
	require.Error(t, err)
}
