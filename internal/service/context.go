package service

import (
	"fmt"
	"strings"

	"indexwatch/internal/domain"

	"github.com/shopspring/decimal"
)

// ContextSnapshot is the bounded, self-describing picture of live state
// handed to the assistant (and to /status). Recent is capped so downstream
// prompt size stays bounded no matter how large the history grows;
// TotalObservations always reflects the true history length.
type ContextSnapshot struct {
	CurrentPrice      *decimal.Decimal     `json:"current_price,omitempty"`
	GateOpen          bool                 `json:"gate_open"`
	Running           bool                 `json:"running"`
	Iteration         int64                `json:"iteration"`
	TotalObservations int                  `json:"total_observations"`
	Recent            []domain.Observation `json:"recent"`
}

// BuildContext assembles a snapshot from the published live state and the
// history. Deterministic given its inputs; maxEntries bounds Recent.
func BuildContext(live domain.LiveState, hist *History, maxEntries int) ContextSnapshot {
	if maxEntries < 0 {
		maxEntries = 0
	}
	snap := ContextSnapshot{
		GateOpen:          live.GateOpen,
		Running:           live.Running,
		Iteration:         live.Iteration,
		TotalObservations: hist.Len(),
		Recent:            hist.Snapshot(maxEntries),
	}
	if live.LastObservation != nil {
		p := live.LastObservation.Price
		snap.CurrentPrice = &p
	}
	return snap
}

// Render produces the structured text embedded into the assistant's system
// instruction. Plain key: value lines, one observation per line.
func (s ContextSnapshot) Render() string {
	var b strings.Builder

	b.WriteString("running: ")
	b.WriteString(fmt.Sprintf("%v\n", s.Running))
	b.WriteString("market_open: ")
	b.WriteString(fmt.Sprintf("%v\n", s.GateOpen))
	b.WriteString(fmt.Sprintf("iteration: %d\n", s.Iteration))
	if s.CurrentPrice != nil {
		b.WriteString("current_price: ")
		b.WriteString(s.CurrentPrice.String())
		b.WriteByte('\n')
	} else {
		b.WriteString("current_price: none yet\n")
	}
	b.WriteString(fmt.Sprintf("total_observations: %d\n", s.TotalObservations))

	if len(s.Recent) > 0 {
		b.WriteString(fmt.Sprintf("recent_samples (%d, oldest first):\n", len(s.Recent)))
		for _, obs := range s.Recent {
			b.WriteString(fmt.Sprintf("  %s  %s  open=%v\n",
				obs.At.Format("2006-01-02 15:04:05"), obs.Price.String(), obs.MarketOpen))
		}
	} else {
		b.WriteString("recent_samples: none\n")
	}

	return b.String()
}
