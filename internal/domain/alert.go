package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PriceAlert is a target-price cross alert armed from the chat surface.
// Direction is inferred from the price at arm time:
// - UP: target above current, waiting for the index to rise
// - DOWN: target below current, waiting for it to fall
type PriceAlert struct {
	ID         string          `json:"id"`
	ChatID     int64           `json:"chat_id"`
	Target     decimal.Decimal `json:"target"`
	Direction  string          `json:"direction"` // "UP" or "DOWN"
	Persistent bool            `json:"persistent"`
	CreatedAt  time.Time       `json:"created_at"`
	active     bool
}

// NewPriceAlert arms an alert for chatID at the given target price.
func NewPriceAlert(chatID int64, target, currentPrice decimal.Decimal, persistent bool) *PriceAlert {
	direction := "UP"
	if target.LessThan(currentPrice) {
		direction = "DOWN"
	}
	return &PriceAlert{
		ID:         uuid.NewString(),
		ChatID:     chatID,
		Target:     target,
		Direction:  direction,
		Persistent: persistent,
		CreatedAt:  time.Now(),
		active:     true,
	}
}

// IsActive returns whether the alert is armed.
func (a *PriceAlert) IsActive() bool {
	return a.active
}

// Disarm deactivates the alert.
func (a *PriceAlert) Disarm() {
	a.active = false
}

// Check reports whether the alert condition is met at currentPrice.
// Returns true when:
// - Direction is UP and currentPrice >= target
// - Direction is DOWN and currentPrice <= target
func (a *PriceAlert) Check(currentPrice decimal.Decimal) bool {
	if !a.active {
		return false
	}
	switch a.Direction {
	case "UP":
		return currentPrice.GreaterThanOrEqual(a.Target)
	case "DOWN":
		return currentPrice.LessThanOrEqual(a.Target)
	default:
		return false
	}
}
