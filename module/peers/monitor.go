package peers

import (
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog"

	"github.com/meridianlabs/meridian-go/model/meridian"
)

// DefaultPingWindow is the number of ping samples retained per peer.
const DefaultPingWindow = 10

// peerRecord is the mutable monitoring state for one connected peer.
type peerRecord struct {
	distanceFromValidators *uint64
	pingSamples            []float64 // ring of most recent ping round trips, seconds
	protocols              []meridian.Protocol
	connectedAt            time.Time
}

// Monitor tracks connected peers and aggregates their health measurements
// into the read-only snapshot the subscription selector ranks. Monitor is
// safe for concurrent use.
type Monitor struct {
	log        zerolog.Logger
	pingWindow int

	mu    sync.RWMutex
	peers map[meridian.Identifier]*peerRecord
}

// NewMonitor creates a peer monitor retaining pingWindow samples per peer.
func NewMonitor(log zerolog.Logger, pingWindow int) *Monitor {
	if pingWindow <= 0 {
		pingWindow = DefaultPingWindow
	}
	return &Monitor{
		log:        log.With().Str("component", "peer_monitor").Logger(),
		pingWindow: pingWindow,
		peers:      make(map[meridian.Identifier]*peerRecord),
	}
}

// PeerConnected registers a peer and the protocols it advertised.
func (m *Monitor) PeerConnected(peerID meridian.Identifier, protocols []meridian.Protocol) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.peers[peerID]; exists {
		return
	}
	m.peers[peerID] = &peerRecord{
		protocols:   protocols,
		connectedAt: time.Now(),
	}
	m.log.Debug().Str("peer", peerID.String()).Msg("peer connected")
}

// PeerDisconnected drops all monitoring state for a peer.
func (m *Monitor) PeerDisconnected(peerID meridian.Identifier) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.peers, peerID)
	m.log.Debug().Str("peer", peerID.String()).Msg("peer disconnected")
}

// RecordPing appends a ping round-trip sample for a peer, evicting the oldest
// sample once the window is full. Samples for unknown peers are ignored.
func (m *Monitor) RecordPing(peerID meridian.Identifier, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.peers[peerID]
	if !ok {
		return
	}
	record.pingSamples = append(record.pingSamples, latency.Seconds())
	if len(record.pingSamples) > m.pingWindow {
		record.pingSamples = record.pingSamples[len(record.pingSamples)-m.pingWindow:]
	}
}

// SetDistanceFromValidators records the latest hop-count proximity metric
// reported by a peer.
func (m *Monitor) SetDistanceFromValidators(peerID meridian.Identifier, distance uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.peers[peerID]
	if !ok {
		return
	}
	record.distanceFromValidators = &distance
}

// IsConnected returns true if the peer is currently registered.
func (m *Monitor) IsConnected(peerID meridian.Identifier) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.peers[peerID]
	return ok
}

// HealthSnapshot returns the current health view for all connected peers.
// The returned map is a copy the caller may retain.
func (m *Monitor) HealthSnapshot() map[meridian.Identifier]meridian.PeerHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := make(map[meridian.Identifier]meridian.PeerHealth, len(m.peers))
	for peerID, record := range m.peers {
		health := meridian.PeerHealth{
			Protocols: record.protocols,
		}
		if record.distanceFromValidators != nil {
			distance := *record.distanceFromValidators
			health.DistanceFromValidators = &distance
		}
		if len(record.pingSamples) > 0 {
			average, err := stats.Mean(record.pingSamples)
			if err != nil {
				m.log.Warn().Err(err).
					Str("peer", peerID.String()).
					Msg("could not aggregate ping samples")
			} else {
				health.AveragePingLatency = &average
			}
		}
		snapshot[peerID] = health
	}
	return snapshot
}
