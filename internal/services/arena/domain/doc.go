// Package domain holds the game session state machine and its supporting
// types. Everything here is transport-agnostic: intents come in as method
// calls, outcomes leave through the Sink interface as named events.
package domain
