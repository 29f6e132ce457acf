// Package arena implements the authoritative session coordinator for the
// penny-collecting minigame: lobby admission, phase transitions, spawn and
// collection arbitration, scoring, reward-eligible ranking, and the
// realtime transport those decisions are broadcast through.
//
// The coordinator owns all game state; the transport layer, payout
// gateway, and round-history store only ever see snapshots it hands out.
package arena
