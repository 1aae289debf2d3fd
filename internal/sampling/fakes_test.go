package sampling_test

import (
	"errors"
	"time"

	"codeberg.org/mutker/infologger/internal/source"
)

type fakeTimer struct {
	active   bool
	interval int
	starts   int
	stops    int
}

func newFakeTimer() *fakeTimer { return &fakeTimer{interval: 1000} }

func (t *fakeTimer) Start() {
	t.active = true
	t.starts++
}

func (t *fakeTimer) Stop() {
	t.active = false
	t.stops++
}

func (t *fakeTimer) Active() bool       { return t.active }
func (t *fakeTimer) SetInterval(ms int) { t.interval = ms }
func (t *fakeTimer) Interval() int      { return t.interval }

// fakeSource returns scripted CPU readings in order; the last one repeats.
type fakeSource struct {
	cpu  []float64
	heap int64
	gpu  source.GPUMemory
}

func (s *fakeSource) CPUTime() float64 {
	v := s.cpu[0]
	if len(s.cpu) > 1 {
		s.cpu = s.cpu[1:]
	}
	return v
}

func (s *fakeSource) HeapSize() int64 { return s.heap }

func (s *fakeSource) GPUMemory() source.GPUMemory { return s.gpu }

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, time.January, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// failingBuffer accepts failAfter lines and rejects the rest; a negative
// failAfter accepts everything.
type failingBuffer struct {
	lines     []string
	failAfter int
	readErr   error
	removed   bool
}

func (b *failingBuffer) Path() string { return "memory" }

func (b *failingBuffer) Append(line string) error {
	if b.failAfter >= 0 && len(b.lines) >= b.failAfter {
		return errors.New("no space left on device")
	}
	b.lines = append(b.lines, line)
	return nil
}

func (b *failingBuffer) ReadAll() ([]string, error) {
	if b.readErr != nil {
		return nil, b.readErr
	}
	return b.lines, nil
}

func (b *failingBuffer) Close() error { return nil }

func (b *failingBuffer) Remove() error {
	b.removed = true
	return nil
}
