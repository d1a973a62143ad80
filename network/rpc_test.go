package network

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridianlabs/meridian-go/model/meridian"
	"github.com/meridianlabs/meridian-go/model/messages"
	"github.com/meridianlabs/meridian-go/network/codec"
	"github.com/meridianlabs/meridian-go/utils/unittest"
)

// ackingConduit answers every subscribe request with an ack echoing the
// request nonce, optionally mangling it.
type ackingConduit struct {
	mangleNonce bool
}

func (c *ackingConduit) SendRequest(_ context.Context, _ meridian.Identifier, payload []byte) ([]byte, error) {
	v, err := codec.Decode(payload)
	if err != nil {
		return nil, err
	}
	req := v.(*messages.SubscribeRequest)
	nonce := req.Nonce
	if c.mangleNonce {
		nonce++
	}
	return codec.Encode(&messages.SubscribeResponse{Nonce: nonce, Kind: messages.SubscribeAck})
}

// blockingConduit never answers until the context is cancelled.
type blockingConduit struct{}

func (c *blockingConduit) SendRequest(ctx context.Context, _ meridian.Identifier, _ []byte) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// TestSendSubscribeRequest tests a successful handshake through the codec.
func TestSendSubscribeRequest(t *testing.T) {
	client := NewRPCClient(unittest.Logger(), &ackingConduit{})

	res, err := client.SendSubscribeRequest(context.Background(), unittest.IdentifierFixture(), time.Second)
	require.NoError(t, err)
	require.Equal(t, messages.SubscribeAck, res.Kind)
}

// TestSendSubscribeRequestNonceMismatch tests that a response carrying the
// wrong nonce is rejected.
func TestSendSubscribeRequestNonceMismatch(t *testing.T) {
	client := NewRPCClient(unittest.Logger(), &ackingConduit{mangleNonce: true})

	_, err := client.SendSubscribeRequest(context.Background(), unittest.IdentifierFixture(), time.Second)
	require.Error(t, err)
}

// TestSendSubscribeRequestTimeout tests that an unresponsive peer fails the
// attempt within the timeout.
func TestSendSubscribeRequestTimeout(t *testing.T) {
	client := NewRPCClient(unittest.Logger(), &blockingConduit{})

	start := time.Now()
	_, err := client.SendSubscribeRequest(context.Background(), unittest.IdentifierFixture(), 50*time.Millisecond)
	require.Error(t, err)
	require.Less(t, time.Since(start), time.Second)
}
