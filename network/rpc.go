package network

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianlabs/meridian-go/model/meridian"
	"github.com/meridianlabs/meridian-go/model/messages"
	"github.com/meridianlabs/meridian-go/network/codec"
)

// SubscriptionRPC performs the subscribe handshake with a single peer.
type SubscriptionRPC interface {
	// SendSubscribeRequest asks the peer to add us to its observer push
	// stream, waiting at most timeout for the response.
	SendSubscribeRequest(ctx context.Context, peerID meridian.Identifier, timeout time.Duration) (*messages.SubscribeResponse, error)
}

// RPCClient frames subscribe requests through the envelope codec and an
// underlying conduit.
type RPCClient struct {
	log     zerolog.Logger
	conduit Conduit
}

var _ SubscriptionRPC = (*RPCClient)(nil)

func NewRPCClient(log zerolog.Logger, conduit Conduit) *RPCClient {
	return &RPCClient{
		log:     log.With().Str("component", "subscription_rpc").Logger(),
		conduit: conduit,
	}
}

// SendSubscribeRequest implements SubscriptionRPC. A response carrying a
// different nonce than the request is treated as a transport error.
func (c *RPCClient) SendSubscribeRequest(ctx context.Context, peerID meridian.Identifier, timeout time.Duration) (*messages.SubscribeResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := &messages.SubscribeRequest{Nonce: rand.Uint64()}
	payload, err := codec.Encode(req)
	if err != nil {
		return nil, fmt.Errorf("could not encode subscribe request: %w", err)
	}

	data, err := c.conduit.SendRequest(ctx, peerID, payload)
	if err != nil {
		return nil, fmt.Errorf("subscribe request to %s failed: %w", peerID, err)
	}

	v, err := codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("could not decode subscribe response: %w", err)
	}
	res, ok := v.(*messages.SubscribeResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type %T to subscribe request", v)
	}
	if res.Nonce != req.Nonce {
		return nil, fmt.Errorf("subscribe response nonce mismatch (sent %d, got %d)", req.Nonce, res.Nonce)
	}

	return res, nil
}
