package infologger_test

import (
	"context"
	"errors"
	"time"

	"codeberg.org/mutker/infologger/internal/archive"
	"codeberg.org/mutker/infologger/internal/datamodel"
	"codeberg.org/mutker/infologger/internal/source"
)

// fakeTimer also implements infologger.Ticker; C only yields while active.
type fakeTimer struct {
	active   bool
	interval int
	starts   int
	ticks    chan time.Time
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{interval: 1000, ticks: make(chan time.Time)}
}

func (t *fakeTimer) Start() {
	t.active = true
	t.starts++
}

func (t *fakeTimer) Stop()              { t.active = false }
func (t *fakeTimer) Active() bool       { return t.active }
func (t *fakeTimer) SetInterval(ms int) { t.interval = ms }
func (t *fakeTimer) Interval() int      { return t.interval }

func (t *fakeTimer) C() <-chan time.Time {
	if !t.active {
		return nil
	}
	return t.ticks
}

// fakeSource reports cpu and advances it by step on every read.
type fakeSource struct {
	cpu  float64
	step float64
	heap int64
	gpu  source.GPUMemory
}

func (s *fakeSource) CPUTime() float64 {
	v := s.cpu
	s.cpu += s.step
	return v
}

func (s *fakeSource) HeapSize() int64             { return s.heap }
func (s *fakeSource) GPUMemory() source.GPUMemory { return s.gpu }

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, time.March, 4, 5, 6, 7, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fakeArchive struct {
	sessions []archive.Session
	err      error
}

func (a *fakeArchive) Record(ctx context.Context, s *archive.Session) error {
	if a.err != nil {
		return a.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	a.sessions = append(a.sessions, *s)
	return nil
}

func (a *fakeArchive) List(_ context.Context, _ int) ([]archive.Session, error) {
	return a.sessions, nil
}

func (a *fakeArchive) Close() error { return nil }

type failingSerializer struct{}

func (failingSerializer) Serialize(_ *datamodel.Model) ([]byte, error) {
	return nil, errors.New("encoder broke")
}
