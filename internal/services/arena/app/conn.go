package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"golang.org/x/net/websocket"

	"github.com/pennyrush/arena/internal/platform/id"
	"github.com/pennyrush/arena/internal/services/arena/domain"
)

// Voice signaling frames are relayed verbatim between peers; the server
// never inspects the SDP or ICE contents.
const (
	eventVoiceOffer     = "voice_offer"
	eventVoiceAnswer    = "voice_answer"
	eventVoiceCandidate = "voice_candidate"
)

type joinLobbyPayload struct {
	WalletAddress string `json:"walletAddress"`
}

type playerMovePayload struct {
	Position domain.Vec3     `json:"position"`
	Rotation domain.Rotation `json:"rotation"`
}

type collectPennyPayload struct {
	PennyID string `json:"pennyId"`
}

type voicePayload struct {
	Target string          `json:"target"`
	Data   json.RawMessage `json:"data"`
}

type voiceRelayPayload struct {
	From string          `json:"from"`
	Data json.RawMessage `json:"data"`
}

func handleWSConn(conn *websocket.Conn, coordinator *domain.Coordinator, hub *peerHub) {
	connID, err := id.NewID()
	if err != nil {
		connID = fmt.Sprintf("conn_%d", time.Now().UnixNano())
	}

	peer := newWSPeer(json.NewEncoder(conn))
	hub.add(connID, peer)
	coordinator.Connect(connID)
	defer func() {
		coordinator.RemoveConnection(connID)
		hub.remove(connID)
		_ = conn.Close()
	}()

	decoder := json.NewDecoder(conn)
	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = writeWSError(peer, "", "INVALID_ARGUMENT", "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "payload too large")
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = writeWSError(peer, frame.RequestID, "RESOURCE_EXHAUSTED", "rate limit exceeded")
			return
		}

		switch frame.Type {
		case domain.EventJoinLobby:
			handleJoinLobbyFrame(coordinator, connID, peer, frame)
		case domain.EventJoinSpectator:
			coordinator.JoinSpectator(connID)
		case domain.EventPlayerMove:
			handlePlayerMoveFrame(coordinator, connID, peer, frame)
		case domain.EventCollectPenny:
			handleCollectPennyFrame(coordinator, connID, peer, frame)
		case eventVoiceOffer, eventVoiceAnswer, eventVoiceCandidate:
			handleVoiceFrame(hub, connID, peer, frame)
		default:
			_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "unsupported frame type")
		}
	}
}

func handleJoinLobbyFrame(coordinator *domain.Coordinator, connID string, peer *wsPeer, frame wsFrame) {
	var payload joinLobbyPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "invalid join payload")
		return
	}
	reply := coordinator.JoinLobby(connID, payload.WalletAddress)
	if !reply.Success {
		log.Printf("arena: lobby join rejected for conn=%s: %s", connID, reply.Reason)
	}
}

func handlePlayerMoveFrame(coordinator *domain.Coordinator, connID string, peer *wsPeer, frame wsFrame) {
	var payload playerMovePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "invalid move payload")
		return
	}
	coordinator.UpdatePosition(connID, payload.Position, payload.Rotation)
}

func handleCollectPennyFrame(coordinator *domain.Coordinator, connID string, peer *wsPeer, frame wsFrame) {
	var payload collectPennyPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "invalid collect payload")
		return
	}
	if strings.TrimSpace(payload.PennyID) == "" {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "pennyId is required")
		return
	}
	// A lost race is not an error; the penny_collected broadcast tells
	// everyone who won.
	coordinator.CollectPenny(connID, payload.PennyID)
}

// handleVoiceFrame relays a signaling frame to its target with the
// sender's id attached. Unknown targets are dropped silently: the peer
// likely disconnected between signaling steps.
func handleVoiceFrame(hub *peerHub, connID string, peer *wsPeer, frame wsFrame) {
	var payload voicePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "invalid voice payload")
		return
	}
	target := strings.TrimSpace(payload.Target)
	if target == "" {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "target is required")
		return
	}
	hub.SendTo(target, frame.Type, voiceRelayPayload{From: connID, Data: payload.Data})
}
