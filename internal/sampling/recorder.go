package sampling

import "codeberg.org/mutker/infologger/internal/record"

// Recorder observes sampler activity. Implemented by telemetry.Metrics.
type Recorder interface {
	Tick()
	LineWritten(ch record.Channel)
	WriteFailed(ch record.Channel)
	Finalized(ch record.Channel, entries int)
	ChannelActive(ch record.Channel, active bool)
	TimerActive(active bool)
}

type nopRecorder struct{}

func (nopRecorder) Tick()                              {}
func (nopRecorder) LineWritten(record.Channel)         {}
func (nopRecorder) WriteFailed(record.Channel)         {}
func (nopRecorder) Finalized(record.Channel, int)      {}
func (nopRecorder) ChannelActive(record.Channel, bool) {}
func (nopRecorder) TimerActive(bool)                   {}
