package domain

import "github.com/pennyrush/arena/internal/services/arena/payout"

// Client intent event names.
const (
	EventJoinLobby     = "join_lobby"
	EventJoinSpectator = "join_spectator"
	EventPlayerMove    = "player_move"
	EventCollectPenny  = "collect_penny"
)

// Server broadcast and reply event names.
const (
	EventLobbyJoined        = "lobby_joined"
	EventLobbyUpdate        = "lobby_update"
	EventLobbyTimer         = "lobby_timer"
	EventLobbyMessage       = "lobby_message"
	EventSpectatorJoined    = "spectator_joined"
	EventGameStart          = "game_start"
	EventGameTimer          = "game_timer"
	EventPlayerMoved        = "player_moved"
	EventPennyCollected     = "penny_collected"
	EventScoresUpdate       = "scores_update"
	EventGameEnd            = "game_end"
	EventRewardsDistributed = "rewards_distributed"
	EventGameReset          = "game_reset"
	EventPlayerLeft         = "player_left"
)

// Sink delivers coordinator events to connected clients. Implementations
// must be safe for concurrent use; the coordinator may call them while
// holding its own lock, so they must never call back into it.
type Sink interface {
	Broadcast(event string, payload any)
	BroadcastExcept(excludedConnID string, event string, payload any)
	SendTo(connID string, event string, payload any)
}

// Vec3 is a world position.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Rotation is a player's view orientation.
type Rotation struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
}

// PlayerState is the broadcast form of an active player.
type PlayerState struct {
	PlayerID string   `json:"playerId"`
	Wallet   string   `json:"walletAddress"`
	Position Vec3     `json:"position"`
	Rotation Rotation `json:"rotation"`
	Score    int      `json:"score"`
}

// PennyState is the broadcast form of a collectible penny.
type PennyState struct {
	PennyID   string `json:"pennyId"`
	Position  Vec3   `json:"position"`
	Collected bool   `json:"collected"`
}

// LobbyEntryState is one waiting wallet in the lobby snapshot.
type LobbyEntryState struct {
	Wallet   string `json:"walletAddress"`
	JoinedAt int64  `json:"joinedAt"`
}

// LobbyState is the lobby snapshot broadcast on membership changes.
type LobbyState struct {
	Entries  []LobbyEntryState `json:"entries"`
	Capacity int               `json:"capacity"`
}

// LobbyJoined is the admission reply sent to the requesting connection.
type LobbyJoined struct {
	Success  bool        `json:"success"`
	PlayerID string      `json:"playerId,omitempty"`
	Lobby    *LobbyState `json:"lobbyState,omitempty"`
	Reason   string      `json:"reason,omitempty"`
}

// CountdownState carries per-second timer broadcasts.
type CountdownState struct {
	Remaining int `json:"remaining"`
	Total     int `json:"total"`
}

// LobbyMessage is an informational lobby broadcast.
type LobbyMessage struct {
	Message string `json:"message"`
}

// GameState is the live snapshot handed to joining spectators.
type GameState struct {
	Phase     Phase         `json:"phase"`
	Players   []PlayerState `json:"players"`
	Pennies   []PennyState  `json:"pennies"`
	Remaining int           `json:"remaining"`
	Duration  int           `json:"duration"`
}

// SpectatorJoined replies to a spectator admission.
type SpectatorJoined struct {
	GameState GameState `json:"gameState"`
}

// GameStart announces a new round to everyone.
type GameStart struct {
	Players  []PlayerState `json:"players"`
	Pennies  []PennyState  `json:"pennies"`
	Duration int           `json:"duration"`
}

// PlayerMoved relays a self-reported pose to the other connections.
type PlayerMoved struct {
	PlayerID string   `json:"playerId"`
	Position Vec3     `json:"position"`
	Rotation Rotation `json:"rotation"`
}

// PennyCollected announces a successful collection arbitration.
type PennyCollected struct {
	PennyID     string `json:"pennyId"`
	PlayerID    string `json:"playerId"`
	PlayerScore int    `json:"playerScore"`
}

// ScoreEntry is one row of the leaderboard.
type ScoreEntry struct {
	PlayerID string `json:"playerId"`
	Wallet   string `json:"walletAddress"`
	Score    int    `json:"score"`
}

// ScoresUpdate is the leaderboard broadcast, sorted by score descending.
type ScoresUpdate struct {
	Scores []ScoreEntry `json:"scores"`
}

// RankingEntry is one row of the final standings.
type RankingEntry struct {
	Place    int    `json:"place"`
	PlayerID string `json:"playerId"`
	Wallet   string `json:"walletAddress"`
	Score    int    `json:"score"`
}

// WinnerEntry is a reward-eligible finisher with its pool share.
type WinnerEntry struct {
	Place        int     `json:"place"`
	PlayerID     string  `json:"playerId"`
	Wallet       string  `json:"walletAddress"`
	Score        int     `json:"score"`
	SharePercent float64 `json:"sharePercent"`
}

// GameEnd concludes a round.
type GameEnd struct {
	Rankings      []RankingEntry `json:"rankings"`
	Winners       []WinnerEntry  `json:"winners"`
	TotalTopCoins int            `json:"totalTop3Coins"`
}

// RewardsDistributed reports the payout outcome per winner.
type RewardsDistributed struct {
	Winners []payout.Result `json:"winners"`
	Success bool            `json:"success"`
}

// GameReset sends everyone back to the lobby.
type GameReset struct {
	Message string `json:"message"`
}

// PlayerLeft announces a disconnect.
type PlayerLeft struct {
	PlayerID string `json:"playerId"`
}
