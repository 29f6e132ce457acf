package server

import (
	"encoding/json"
	"sync"
)

type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newWSPeer(encoder *json.Encoder) *wsPeer {
	return &wsPeer{encoder: encoder}
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

// peerHub tracks connected peers and is the coordinator's event sink.
// Frame writes happen outside the hub lock; per-peer locks keep
// concurrent encodes from interleaving on one socket.
type peerHub struct {
	mu    sync.Mutex
	peers map[string]*wsPeer
}

func newPeerHub() *peerHub {
	return &peerHub{peers: make(map[string]*wsPeer)}
}

func (h *peerHub) add(connID string, peer *wsPeer) {
	h.mu.Lock()
	h.peers[connID] = peer
	h.mu.Unlock()
}

func (h *peerHub) remove(connID string) {
	h.mu.Lock()
	delete(h.peers, connID)
	h.mu.Unlock()
}

func (h *peerHub) peer(connID string) (*wsPeer, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	peer, ok := h.peers[connID]
	return peer, ok
}

func (h *peerHub) peersExcept(excludedConnID string) []*wsPeer {
	h.mu.Lock()
	defer h.mu.Unlock()
	peers := make([]*wsPeer, 0, len(h.peers))
	for connID, peer := range h.peers {
		if connID == excludedConnID {
			continue
		}
		peers = append(peers, peer)
	}
	return peers
}

// Broadcast sends an event frame to every connected peer.
func (h *peerHub) Broadcast(event string, payload any) {
	frame := wsFrame{Type: event, Payload: mustJSON(payload)}
	for _, peer := range h.peersExcept("") {
		_ = peer.writeFrame(frame)
	}
}

// BroadcastExcept sends an event frame to everyone but one connection.
func (h *peerHub) BroadcastExcept(excludedConnID string, event string, payload any) {
	frame := wsFrame{Type: event, Payload: mustJSON(payload)}
	for _, peer := range h.peersExcept(excludedConnID) {
		_ = peer.writeFrame(frame)
	}
}

// SendTo sends an event frame to a single connection, if still present.
func (h *peerHub) SendTo(connID string, event string, payload any) {
	peer, ok := h.peer(connID)
	if !ok {
		return
	}
	_ = peer.writeFrame(wsFrame{Type: event, Payload: mustJSON(payload)})
}
