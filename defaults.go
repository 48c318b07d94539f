package cascheck

import "time"

// Settle defaults.
const (
	DefaultSettleInterval = 2 * time.Second
	DefaultSettleTimeout  = 10 * time.Second
	DefaultPollEvery      = 100 * time.Millisecond
)

// defaultMaxAttempts bounds a Runner when neither the options nor the call
// say otherwise.
const defaultMaxAttempts = 32

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
