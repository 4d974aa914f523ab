// Package clock provides an injectable timer service so Queue
// implementations can be driven by real wall-clock ticks in production and
// by deterministic, test-controlled ticks in unit tests (spec §9 Design
// Notes).
package clock

import "time"

// Ticker emits a tick on C every time its period elapses, until Stop is
// called. The real implementation wraps time.Ticker; the Fake
// implementation is advanced explicitly by tests.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock constructs Tickers. QueueLocal and QueueRemoteSSH take a Clock
// instead of calling time.NewTicker directly, so tests can substitute a
// Fake.
type Clock interface {
	NewTicker(period time.Duration) Ticker
}

// Real is a Clock backed by the standard library's time.Ticker.
type Real struct{}

func (Real) NewTicker(period time.Duration) Ticker {
	t := time.NewTicker(period)
	return realTicker{t}
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }
