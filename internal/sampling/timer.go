package sampling

import "time"

const (
	// DefaultInterval is the tick period in milliseconds until configured.
	DefaultInterval = 1000
	// MinInterval is the exclusive lower bound for a configured interval.
	MinInterval = 100
)

// Timer is the single periodic clock driving ticks.
type Timer interface {
	Start()
	Stop()
	Active() bool
	// SetInterval sets the period in milliseconds, effective on next Start.
	SetInterval(ms int)
	Interval() int
}

// TickerTimer is a Timer backed by time.Ticker. Its channel is read by the
// owning event loop; C returns nil while stopped so a select never fires.
type TickerTimer struct {
	interval int
	ticker   *time.Ticker
}

// NewTickerTimer returns a stopped timer with the given period in ms.
func NewTickerTimer(ms int) *TickerTimer {
	if ms <= 0 {
		ms = DefaultInterval
	}

	return &TickerTimer{interval: ms}
}

func (t *TickerTimer) Start() {
	if t.ticker != nil {
		return
	}
	t.ticker = time.NewTicker(time.Duration(t.interval) * time.Millisecond)
}

func (t *TickerTimer) Stop() {
	if t.ticker == nil {
		return
	}
	t.ticker.Stop()
	t.ticker = nil
}

func (t *TickerTimer) Active() bool {
	return t.ticker != nil
}

func (t *TickerTimer) SetInterval(ms int) {
	t.interval = ms
}

func (t *TickerTimer) Interval() int {
	return t.interval
}

// C returns the tick channel, or nil while the timer is stopped.
func (t *TickerTimer) C() <-chan time.Time {
	if t.ticker == nil {
		return nil
	}

	return t.ticker.C
}

// Stopwatch measures wall time between consecutive Restart calls.
type Stopwatch struct {
	now   func() time.Time
	start time.Time
}

// NewStopwatch returns a stopwatch reading time from now.
func NewStopwatch(now func() time.Time) *Stopwatch {
	return &Stopwatch{now: now, start: now()}
}

// Start resets the reference point.
func (s *Stopwatch) Start() {
	s.start = s.now()
}

// Restart returns the milliseconds elapsed since the last Start or Restart
// and resets the reference point.
func (s *Stopwatch) Restart() int64 {
	now := s.now()
	elapsed := now.Sub(s.start).Milliseconds()
	s.start = now

	return elapsed
}
