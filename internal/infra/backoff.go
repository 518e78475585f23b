package infra

import "time"

const (
	backoffBase = 1 * time.Second
	backoffMax  = 60 * time.Second
)

// CalculateBackoff returns the exponential reconnect delay for the given
// retry count: 1s, 2s, 4s, ... capped at 60s.
func CalculateBackoff(retry int) time.Duration {
	if retry <= 0 {
		return backoffBase
	}
	d := backoffBase << uint(retry)
	if d <= 0 || d > backoffMax {
		return backoffMax
	}
	return d
}
