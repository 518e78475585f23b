package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Observation is a single timestamped price sample. It is immutable once
// created: the tick loop constructs it, the history evicts it, nothing
// mutates it in between.
type Observation struct {
	At         time.Time       `json:"at"`
	Price      decimal.Decimal `json:"price"`
	MarketOpen bool            `json:"market_open"`
}

// LiveState is the process-wide view of the watcher. The tick loop is the
// single writer and publishes a fresh value per tick; readers always get a
// complete value, never a half-updated one.
type LiveState struct {
	Running         bool         `json:"running"`
	Iteration       int64        `json:"iteration"`
	GateOpen        bool         `json:"gate_open"`
	LastObservation *Observation `json:"last_observation,omitempty"`
}

// Conversation roles understood by the completion backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationTurn is one utterance in a chat session's rolling memory.
type ConversationTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}
