package clock

import (
	"sync"
	"time"
)

// Fake is a Clock whose Tickers only fire when the test calls Advance,
// letting §8-style scenarios assert on exact tick boundaries without
// sleeping.
type Fake struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

// NewFake returns an idle Fake clock.
func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) NewTicker(period time.Duration) Ticker {
	ft := &fakeTicker{period: period, c: make(chan time.Time, 1)}
	f.mu.Lock()
	f.tickers = append(f.tickers, ft)
	f.mu.Unlock()
	return ft
}

// Advance fires every still-running Ticker once, whatever its period,
// sending the current time plus d. A ticker whose previous tick has not
// been received yet keeps that one buffered tick and gets no second one.
// This is sufficient to drive a Queue's tick-consumption loop
// deterministically in tests; tests needing one tick per period should
// call Advance once per expected tick instead of accumulating a large
// duration.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().Add(d)
	for _, t := range f.tickers {
		if t.stopped {
			continue
		}
		select {
		case t.c <- now:
		default:
		}
	}
}

type fakeTicker struct {
	period  time.Duration
	c       chan time.Time
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }
func (t *fakeTicker) Stop()               { t.stopped = true }
