package network

import (
	"context"

	"github.com/meridianlabs/meridian-go/model/meridian"
)

// Conduit is the request/response surface of the underlying transport. The
// observer core owns no wire protocol below this abstraction; the enclosing
// node provides the implementation.
type Conduit interface {
	// SendRequest sends an encoded request to the given peer and blocks until
	// the response arrives, the context is cancelled, or the transport fails.
	SendRequest(ctx context.Context, peerID meridian.Identifier, payload []byte) ([]byte, error)
}
