// Package sampling holds the per-channel logging state and the shared timer
// that drives periodic sampling.
package sampling

import (
	"fmt"
	"strconv"
	"time"

	"codeberg.org/mutker/infologger/internal/buffer"
	"codeberg.org/mutker/infologger/internal/datamodel"
	"codeberg.org/mutker/infologger/internal/errors"
	"codeberg.org/mutker/infologger/internal/logger"
	"codeberg.org/mutker/infologger/internal/record"
	"codeberg.org/mutker/infologger/internal/source"
)

const (
	entryName     = "LogEntry"
	entryType     = "logEntry"
	recordSetType = "logData"
	entryCount    = "entryCount"
)

// LogBuffer is the append log a channel writes to. *buffer.Buffer
// implements it.
type LogBuffer interface {
	Path() string
	Append(line string) error
	ReadAll() ([]string, error)
	Close() error
	Remove() error
}

// Opener creates or truncates the log buffer at path.
type Opener func(path string) (LogBuffer, error)

func openFile(path string) (LogBuffer, error) {
	buf, err := buffer.Open(path)
	if err != nil {
		return nil, err
	}

	return buf, nil
}

// channelState exists only while a channel is logging.
type channelState struct {
	buf           LogBuffer
	startedAt     time.Time
	lines         int
	writeFailures int
	writeErr      error
}

// Finalized is the outcome of stopping a channel.
type Finalized struct {
	Channel   record.Channel
	Record    *datamodel.Object
	Entries   int
	StartedAt time.Time
	StoppedAt time.Time
}

// State tracks which channels are logging, owns their buffers and keeps the
// timer running exactly while at least one channel is active.
//
// State is not safe for concurrent use. Directives and ticks must be
// delivered from the same goroutine.
type State struct {
	src      source.Source
	timer    Timer
	now      func() time.Time
	log      logger.Logger
	recorder Recorder
	open     Opener

	channels [len(record.Channels)]*channelState

	lastCPUTime float64
	cpuWatch    *Stopwatch
}

// Option configures a State.
type Option func(*State)

// WithClock replaces time.Now for timestamps and CPU load computation.
func WithClock(now func() time.Time) Option {
	return func(s *State) {
		s.now = now
	}
}

// WithRecorder attaches an activity recorder.
func WithRecorder(r Recorder) Option {
	return func(s *State) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithOpener replaces the file backed buffer implementation.
func WithOpener(open Opener) Option {
	return func(s *State) {
		if open != nil {
			s.open = open
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *State) {
		if l != nil {
			s.log = l
		}
	}
}

// New returns an idle State sampling src and driven by timer.
func New(src source.Source, timer Timer, opts ...Option) *State {
	s := &State{
		src:      src,
		timer:    timer,
		now:      time.Now,
		log:      logger.Nop(),
		recorder: nopRecorder{},
		open:     openFile,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cpuWatch = NewStopwatch(s.now)

	return s
}

// Active reports whether any channel is logging.
func (s *State) Active() bool {
	for _, ch := range s.channels {
		if ch != nil {
			return true
		}
	}

	return false
}

// IsActive reports whether ch is logging.
func (s *State) IsActive(ch record.Channel) bool {
	return s.slot(ch) != nil
}

// TimerActive reports whether the shared timer is running.
func (s *State) TimerActive() bool {
	return s.timer.Active()
}

// ConfigureInterval applies ms to the timer, but only while the timer is
// stopped and ms is above MinInterval. A running timer keeps its period
// until every channel has stopped. Reports whether the value was applied.
func (s *State) ConfigureInterval(ms int) bool {
	if s.timer.Active() || ms <= MinInterval {
		if ms > 0 && ms != s.timer.Interval() {
			s.log.Debug().
				Int("requested", ms).
				Int("current", s.timer.Interval()).
				Bool("timer_active", s.timer.Active()).
				Msg("Interval not applied")
		}
		return false
	}

	s.timer.SetInterval(ms)
	s.log.Debug().Int("interval", ms).Msg("Interval set")

	return true
}

// Start opens a fresh buffer at path and marks ch active. If ch was already
// logging, its buffer is closed and any unread samples are discarded. The
// timer is left to Reconcile.
func (s *State) Start(ch record.Channel, path string) error {
	errFactory := errors.New()

	if !validChannel(ch) {
		return errFactory.WithData(ErrUnknownChannel, int(ch))
	}

	buf, err := s.open(path)
	if err != nil {
		return errFactory.Wrap(errors.ErrIO, err)
	}

	if prev := s.slot(ch); prev != nil {
		s.log.Warn().
			Str("channel", ch.String()).
			Int("discarded_lines", prev.lines).
			Msg("Channel restarted, previous samples discarded")
		if err := prev.buf.Close(); err != nil {
			s.log.Debug().Err(err).Msg("Failed to close previous buffer")
		}
	}

	if ch == record.CPU {
		s.lastCPUTime = s.src.CPUTime()
		s.cpuWatch.Start()
	}

	s.channels[ch] = &channelState{buf: buf, startedAt: s.now()}
	s.recorder.ChannelActive(ch, true)
	s.log.Info().Str("channel", ch.String()).Str("path", path).Msg("Logging started")

	return nil
}

// Stop finalizes ch: the timer is paused, every buffered line is decoded
// into a child entry of the channel's record set and the buffer is deleted.
// The timer stays stopped until Reconcile.
//
// A channel that was never started yields errors.ErrNoData. If any sample
// write failed while logging, the record set is still returned together
// with an errors.ErrIO error.
func (s *State) Stop(ch record.Channel) (*Finalized, error) {
	errFactory := errors.New()

	slot := s.slot(ch)
	if slot == nil {
		return nil, errFactory.New(errors.ErrNoData)
	}

	s.timer.Stop()
	s.recorder.TimerActive(false)

	lines, readErr := slot.buf.ReadAll()

	s.channels[ch] = nil
	s.recorder.ChannelActive(ch, false)

	if readErr != nil {
		if err := slot.buf.Remove(); err != nil {
			s.log.Debug().Err(err).Msg("Failed to remove unreadable buffer")
		}
		return nil, errFactory.Wrap(errors.ErrIO, readErr)
	}

	parent := buildRecordSet(ch, lines)

	if err := slot.buf.Remove(); err != nil {
		s.log.Warn().Err(err).Str("path", slot.buf.Path()).Msg("Failed to delete log file")
	}

	s.recorder.Finalized(ch, len(lines))
	s.log.Info().Str("channel", ch.String()).Int("entries", len(lines)).Msg("Logging stopped")

	result := &Finalized{
		Channel:   ch,
		Record:    parent,
		Entries:   len(lines),
		StartedAt: slot.startedAt,
		StoppedAt: s.now(),
	}

	if slot.writeFailures > 0 {
		return result, errFactory.Wrap(errors.ErrIO, slot.writeErr).
			WithMessage(fmt.Sprintf("%d sample writes failed", slot.writeFailures))
	}

	return result, nil
}

// Reconcile starts the timer if a channel is active and stops it otherwise.
func (s *State) Reconcile() {
	if s.Active() {
		if !s.timer.Active() {
			s.timer.Start()
		}
	} else {
		s.timer.Stop()
	}
	s.recorder.TimerActive(s.timer.Active())
}

// Tick samples every active channel and appends one line to its buffer.
func (s *State) Tick() {
	s.recorder.Tick()

	for _, ch := range record.Channels {
		slot := s.slot(ch)
		if slot == nil {
			continue
		}

		if err := slot.buf.Append(record.Encode(s.sample(ch))); err != nil {
			slot.writeFailures++
			if slot.writeErr == nil {
				slot.writeErr = err
			}
			s.recorder.WriteFailed(ch)
			s.log.Error().Err(err).Str("channel", ch.String()).Msg("Failed to write sample")
			continue
		}

		slot.lines++
		s.recorder.LineWritten(ch)
	}
}

// Close stops the timer and releases every open buffer without finalizing.
func (s *State) Close() error {
	s.timer.Stop()
	s.recorder.TimerActive(false)

	var errs []error
	for _, ch := range record.Channels {
		slot := s.slot(ch)
		if slot == nil {
			continue
		}
		if err := slot.buf.Close(); err != nil {
			errs = append(errs, err)
		}
		s.channels[ch] = nil
		s.recorder.ChannelActive(ch, false)
	}

	return errors.Join(errs...)
}

func (s *State) slot(ch record.Channel) *channelState {
	if !validChannel(ch) {
		return nil
	}

	return s.channels[ch]
}

func validChannel(ch record.Channel) bool {
	return ch >= 0 && int(ch) < len(record.Channels)
}

func (s *State) sample(ch record.Channel) record.Fields {
	fields := record.NewSample(s.now())

	switch ch {
	case record.CPU:
		return fields.AddFloat("cpuLoad", s.cpuLoad())
	case record.Memory:
		return fields.AddInt("heapSize", s.src.HeapSize())
	case record.GPU:
		mem := s.src.GPUMemory()
		if !mem.Valid {
			mem = source.GPUMemory{
				Total:          record.Unsupported,
				Used:           record.Unsupported,
				Free:           record.Unsupported,
				ProcessPrivate: record.Unsupported,
				ProcessShared:  record.Unsupported,
			}
		}
		return fields.
			AddInt("totalMem", mem.Total).
			AddInt("usedMem", mem.Used).
			AddInt("freeMem", mem.Free).
			AddInt("processPrivateMem", mem.ProcessPrivate).
			AddInt("processSharedMem", mem.ProcessShared)
	}

	return fields
}

// cpuLoad is the CPU time consumed since the previous tick as a percentage
// of the wall time that passed. Unsupported readings leave the previous
// CPU time in place.
func (s *State) cpuLoad() float64 {
	elapsed := s.cpuWatch.Restart()

	current := s.src.CPUTime()
	if current == source.Unsupported {
		return record.Unsupported
	}

	diff := current - s.lastCPUTime
	s.lastCPUTime = current
	if elapsed <= 0 {
		return record.Unsupported
	}

	return diff / float64(elapsed) * 100
}

func buildRecordSet(ch record.Channel, lines []string) *datamodel.Object {
	parent := &datamodel.Object{
		ID:   "0",
		Name: ch.RecordName(),
		Type: recordSetType,
	}

	for i, line := range lines {
		entry := parent.AddObject()
		entry.ID = strconv.Itoa(i)
		entry.Name = entryName
		entry.Type = entryType
		for _, field := range record.Decode(line) {
			entry.AddAttribute(field.Name, field.Value)
		}
	}
	parent.AddIntAttribute(entryCount, len(lines))

	return parent
}
