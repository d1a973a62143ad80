package meridian

// Protocol identifies a network capability a peer may advertise.
type Protocol string

const (
	// ProtocolObserverStream is the direct-send protocol used by upstream
	// peers to push ordered blocks and payloads to their subscribers.
	ProtocolObserverStream Protocol = "observer-stream"
	// ProtocolObserverRPC is the request/response protocol used for the
	// subscribe handshake.
	ProtocolObserverRPC Protocol = "observer-rpc"
)

// PeerHealth is a read-only snapshot of per-peer metadata maintained by the
// peer monitor. Missing measurements are represented by nil pointers; the
// subscription selector substitutes sentinel values when ranking.
type PeerHealth struct {
	// DistanceFromValidators is a hop-count proximity metric. Peers directly
	// connected to the validator set report 0. Nil when unknown.
	DistanceFromValidators *uint64
	// AveragePingLatency is the average ping round trip in seconds over the
	// monitor's sample window. Nil when no samples have been recorded.
	AveragePingLatency *float64
	// Protocols lists the capabilities the peer advertised at handshake.
	Protocols []Protocol
}

// Supports returns true if the peer advertised the given protocol.
func (p PeerHealth) Supports(protocol Protocol) bool {
	for _, supported := range p.Protocols {
		if supported == protocol {
			return true
		}
	}
	return false
}

// SupportsObserver returns true if the peer advertised both protocols the
// block feed requires: the ordered-block stream and the subscribe RPC.
func (p PeerHealth) SupportsObserver() bool {
	return p.Supports(ProtocolObserverStream) && p.Supports(ProtocolObserverRPC)
}
