package service

import (
	"sync"

	"indexwatch/internal/domain"

	"github.com/shopspring/decimal"
)

// AlertBook holds armed price alerts. The listener arms and lists, the
// tick loop checks; both go through the mutex.
type AlertBook struct {
	mu     sync.Mutex
	alerts []*domain.PriceAlert
}

// NewAlertBook creates an empty book.
func NewAlertBook() *AlertBook {
	return &AlertBook{}
}

// Arm registers an alert.
func (b *AlertBook) Arm(a *domain.PriceAlert) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alerts = append(b.alerts, a)
}

// Active returns copies of the armed alerts for chatID (all chats when
// chatID is 0).
func (b *AlertBook) Active(chatID int64) []domain.PriceAlert {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []domain.PriceAlert
	for _, a := range b.alerts {
		if !a.IsActive() {
			continue
		}
		if chatID != 0 && a.ChatID != chatID {
			continue
		}
		out = append(out, *a)
	}
	return out
}

// Clear disarms every alert for chatID and returns how many it disarmed.
func (b *AlertBook) Clear(chatID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, a := range b.alerts {
		if a.IsActive() && a.ChatID == chatID {
			a.Disarm()
			n++
		}
	}
	b.compactLocked()
	return n
}

// Fire checks every armed alert against price and returns the ones that
// triggered. Non-persistent alerts are disarmed once fired.
func (b *AlertBook) Fire(price decimal.Decimal) []domain.PriceAlert {
	b.mu.Lock()
	defer b.mu.Unlock()

	var fired []domain.PriceAlert
	for _, a := range b.alerts {
		if !a.Check(price) {
			continue
		}
		fired = append(fired, *a)
		if !a.Persistent {
			a.Disarm()
		}
	}
	b.compactLocked()
	return fired
}

// compactLocked drops disarmed alerts. Caller holds the mutex.
func (b *AlertBook) compactLocked() {
	kept := b.alerts[:0]
	for _, a := range b.alerts {
		if a.IsActive() {
			kept = append(kept, a)
		}
	}
	b.alerts = kept
}
