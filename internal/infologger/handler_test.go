package infologger_test

import (
	"context"
	"encoding/xml"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "codeberg.org/mutker/infologger/internal/errors"
	"codeberg.org/mutker/infologger/internal/infologger"
	"codeberg.org/mutker/infologger/internal/record"
	"codeberg.org/mutker/infologger/internal/sampling"
	"codeberg.org/mutker/infologger/internal/source"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	handler *infologger.Handler
	state   *sampling.State
	timer   *fakeTimer
	src     *fakeSource
	clock   *fakeClock
	archive *fakeArchive
	dir     string
}

func newFixture(t *testing.T, opts ...infologger.HandlerOption) *fixture {
	t.Helper()

	f := &fixture{
		timer: newFakeTimer(),
		src: &fakeSource{
			cpu:  1000,
			step: 50,
			heap: 4096,
			gpu: source.GPUMemory{
				Valid: true, Total: 8000, Used: 3000, Free: 5000,
				ProcessPrivate: 700, ProcessShared: source.Unsupported,
			},
		},
		clock:   newFakeClock(),
		archive: &fakeArchive{},
		dir:     t.TempDir(),
	}
	f.state = sampling.New(f.src, f.timer, sampling.WithClock(f.clock.Now))

	base := []infologger.HandlerOption{
		infologger.WithAppName("app"),
		infologger.WithArchive(f.archive),
		infologger.WithHandlerClock(f.clock.Now),
	}
	f.handler = infologger.NewHandler(f.state, append(base, opts...)...)

	return f
}

func (f *fixture) handle(cmds map[record.Channel]infologger.Command) infologger.Response {
	return f.handler.Handle(context.Background(), infologger.Request{Commands: cmds})
}

func (f *fixture) start(t *testing.T, ch record.Channel) {
	t.Helper()

	resp := f.handle(map[record.Channel]infologger.Command{
		ch: {Action: infologger.ActionStart, Path: f.dir},
	})
	res, ok := resp.Result(ch)
	require.True(t, ok)
	require.NoError(t, res.Err)
}

func (f *fixture) stop(t *testing.T, ch record.Channel) infologger.Result {
	t.Helper()

	resp := f.handle(map[record.Channel]infologger.Command{
		ch: {Action: infologger.ActionStop},
	})
	res, ok := resp.Result(ch)
	require.True(t, ok)
	return res
}

func (f *fixture) tick(n int) {
	for i := 0; i < n; i++ {
		f.clock.Advance(100 * time.Millisecond)
		f.handler.Tick()
	}
}

func (f *fixture) bufferPath(ch record.Channel) string {
	return filepath.Join(f.dir, "app"+ch.String()+".log")
}

type xmlAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type xmlObject struct {
	ID         string      `xml:"id,attr"`
	Name       string      `xml:"name,attr"`
	Type       string      `xml:"type,attr"`
	Attributes []xmlAttr   `xml:"attr"`
	Children   []xmlObject `xml:"obj"`
}

func (o xmlObject) Attribute(name string) (string, bool) {
	for _, a := range o.Attributes {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

type xmlContainer struct {
	ID      string      `xml:"id,attr"`
	Name    string      `xml:"name,attr"`
	Type    string      `xml:"type,attr"`
	Objects []xmlObject `xml:"obj"`
}

// recordSet parses a stop payload and returns its single record set.
func recordSet(t *testing.T, payload []byte) (xmlContainer, xmlObject) {
	t.Helper()

	var msg struct {
		Containers []xmlContainer `xml:"tasInfo"`
	}
	require.NoError(t, xml.Unmarshal(payload, &msg))
	require.Len(t, msg.Containers, 1)
	container := msg.Containers[0]
	require.Len(t, container.Objects, 1)

	return container, container.Objects[0]
}

func TestStartTickStop(t *testing.T) {
	for _, ch := range record.Channels {
		t.Run(ch.String(), func(t *testing.T) {
			f := newFixture(t)

			f.start(t, ch)
			assert.FileExists(t, f.bufferPath(ch))
			assert.True(t, f.timer.Active())

			f.tick(2)

			res := f.stop(t, ch)
			require.NoError(t, res.Err)
			assert.Empty(t, res.Message())
			assert.False(t, f.timer.Active())
			assert.NoFileExists(t, f.bufferPath(ch))

			container, set := recordSet(t, res.Payload)
			assert.Equal(t, "1", container.ID)
			assert.Equal(t, "go", container.Type)
			assert.True(t, strings.HasPrefix(container.Name, "Go"))

			assert.Equal(t, ch.RecordName(), set.Name)
			assert.Equal(t, "logData", set.Type)
			require.Len(t, set.Children, 2)
			for i, entry := range set.Children {
				assert.Equal(t, []string{"0", "1"}[i], entry.ID)
				assert.Equal(t, "LogEntry", entry.Name)
				assert.Equal(t, "logEntry", entry.Type)
				_, ok := entry.Attribute(record.FieldTimeStamp)
				assert.True(t, ok)
			}
			count, ok := set.Attribute("entryCount")
			require.True(t, ok)
			assert.Equal(t, "2", count)
		})
	}
}

func TestSampleValues(t *testing.T) {
	f := newFixture(t)

	f.handle(map[record.Channel]infologger.Command{
		record.CPU:    {Action: infologger.ActionStart, Path: f.dir},
		record.Memory: {Action: infologger.ActionStart, Path: f.dir},
		record.GPU:    {Action: infologger.ActionStart, Path: f.dir},
	})
	f.tick(1)

	// 50ms of CPU time in 100ms of wall time
	_, cpu := recordSet(t, f.stop(t, record.CPU).Payload)
	load, _ := cpu.Children[0].Attribute("cpuLoad")
	assert.Equal(t, "50", load)

	_, mem := recordSet(t, f.stop(t, record.Memory).Payload)
	heap, _ := mem.Children[0].Attribute("heapSize")
	assert.Equal(t, "4096", heap)

	_, gpu := recordSet(t, f.stop(t, record.GPU).Payload)
	want := map[string]string{
		"totalMem":          "8000",
		"usedMem":           "3000",
		"freeMem":           "5000",
		"processPrivateMem": "700",
		"processSharedMem":  "-1",
	}
	for name, value := range want {
		got, ok := gpu.Children[0].Attribute(name)
		require.True(t, ok, name)
		assert.Equal(t, value, got, name)
	}
}

func TestStartWithoutPath(t *testing.T) {
	for _, ch := range record.Channels {
		t.Run(ch.String(), func(t *testing.T) {
			f := newFixture(t)

			resp := f.handle(map[record.Channel]infologger.Command{
				ch: {Action: infologger.ActionStart},
			})
			res, ok := resp.Result(ch)
			require.True(t, ok)
			require.Error(t, res.Err)
			assert.True(t, apperrors.HasCode(res.Err, apperrors.ErrConfig))
			assert.Equal(t, "File path must be defined for "+ch.String()+" logging!", res.Message())
			assert.False(t, f.state.Active())
			assert.False(t, f.timer.Active())
		})
	}
}

func TestStopWithoutStart(t *testing.T) {
	f := newFixture(t)

	res := f.stop(t, record.Memory)
	require.Error(t, res.Err)
	assert.True(t, apperrors.HasCode(res.Err, apperrors.ErrNoData))
	assert.Equal(t, "No data collected!", res.Message())
	assert.Nil(t, res.Payload)
	assert.Empty(t, f.archive.sessions)
}

func TestStopTwice(t *testing.T) {
	f := newFixture(t)

	f.start(t, record.CPU)
	require.NoError(t, f.stop(t, record.CPU).Err)

	res := f.stop(t, record.CPU)
	assert.True(t, apperrors.HasCode(res.Err, apperrors.ErrNoData))
}

func TestEmptyStop(t *testing.T) {
	f := newFixture(t)

	f.start(t, record.GPU)
	res := f.stop(t, record.GPU)
	require.NoError(t, res.Err)

	_, set := recordSet(t, res.Payload)
	assert.Empty(t, set.Children)
	count, _ := set.Attribute("entryCount")
	assert.Equal(t, "0", count)
}

func TestRestartDiscardsSamples(t *testing.T) {
	f := newFixture(t)

	f.start(t, record.Memory)
	f.tick(3)
	f.start(t, record.Memory)
	f.tick(1)

	_, set := recordSet(t, f.stop(t, record.Memory).Payload)
	assert.Len(t, set.Children, 1)
}

func TestChannelsProcessedIndependently(t *testing.T) {
	f := newFixture(t)

	resp := f.handle(map[record.Channel]infologger.Command{
		record.GPU:    {Action: infologger.ActionStop},
		record.CPU:    {Action: infologger.ActionStart},
		record.Memory: {Action: infologger.ActionStart, Path: f.dir},
	})

	require.Len(t, resp.Results, 3)
	assert.Equal(t, record.CPU, resp.Results[0].Channel)
	assert.Equal(t, record.Memory, resp.Results[1].Channel)
	assert.Equal(t, record.GPU, resp.Results[2].Channel)

	assert.True(t, apperrors.HasCode(resp.Results[0].Err, apperrors.ErrConfig))
	assert.NoError(t, resp.Results[1].Err)
	assert.True(t, apperrors.HasCode(resp.Results[2].Err, apperrors.ErrNoData))

	assert.False(t, f.state.IsActive(record.CPU))
	assert.True(t, f.state.IsActive(record.Memory))
	assert.True(t, f.timer.Active())
}

func TestUnknownActionIgnored(t *testing.T) {
	f := newFixture(t)

	resp := f.handle(map[record.Channel]infologger.Command{
		record.CPU: {Action: "pause", Path: f.dir},
	})

	assert.Empty(t, resp.Results)
	assert.False(t, f.state.Active())
	assert.False(t, f.timer.Active())
}

func TestIntervalConfiguration(t *testing.T) {
	f := newFixture(t)

	// Ignored: not above the minimum
	f.handler.Handle(context.Background(), infologger.Request{Interval: 100})
	assert.Equal(t, 1000, f.timer.Interval())

	// Applied before the channel starts the timer
	f.handler.Handle(context.Background(), infologger.Request{
		Interval: 500,
		Commands: map[record.Channel]infologger.Command{
			record.CPU: {Action: infologger.ActionStart, Path: f.dir},
		},
	})
	assert.Equal(t, 500, f.timer.Interval())
	assert.True(t, f.timer.Active())

	// Ignored while the timer runs
	f.handler.Handle(context.Background(), infologger.Request{
		Interval: 700,
		Commands: map[record.Channel]infologger.Command{
			record.Memory: {Action: infologger.ActionStart, Path: f.dir},
		},
	})
	assert.Equal(t, 500, f.timer.Interval())
}

func TestTimerStartedOncePerRequest(t *testing.T) {
	f := newFixture(t)

	f.handle(map[record.Channel]infologger.Command{
		record.CPU:    {Action: infologger.ActionStart, Path: f.dir},
		record.Memory: {Action: infologger.ActionStart, Path: f.dir},
		record.GPU:    {Action: infologger.ActionStart, Path: f.dir},
	})

	assert.Equal(t, 1, f.timer.starts)
}

func TestStopKeepsOtherChannelsSampling(t *testing.T) {
	f := newFixture(t)

	f.start(t, record.CPU)
	f.start(t, record.Memory)
	f.tick(1)

	require.NoError(t, f.stop(t, record.CPU).Err)
	assert.True(t, f.timer.Active())

	f.tick(2)
	_, set := recordSet(t, f.stop(t, record.Memory).Payload)
	assert.Len(t, set.Children, 3)
	assert.False(t, f.timer.Active())
}

func TestStartInMissingDirectory(t *testing.T) {
	f := newFixture(t)

	resp := f.handle(map[record.Channel]infologger.Command{
		record.CPU: {Action: infologger.ActionStart, Path: filepath.Join(f.dir, "missing")},
	})
	res, _ := resp.Result(record.CPU)
	assert.True(t, apperrors.HasCode(res.Err, apperrors.ErrIO))
	assert.False(t, f.state.Active())
	assert.False(t, f.timer.Active())
}

func TestFinalizedSessionsAreArchived(t *testing.T) {
	f := newFixture(t)

	f.start(t, record.CPU)
	f.tick(2)
	res := f.stop(t, record.CPU)
	require.NoError(t, res.Err)

	require.Len(t, f.archive.sessions, 1)
	session := f.archive.sessions[0]
	_, err := uuid.Parse(session.ID)
	assert.NoError(t, err)
	assert.Equal(t, "cpu", session.Channel)
	assert.Equal(t, 2, session.EntryCount)
	assert.Equal(t, res.Payload, session.Payload)
	assert.True(t, session.StoppedAt.After(session.StartedAt))
}

func TestStopArchivesAfterCallerCanceled(t *testing.T) {
	f := newFixture(t)
	f.start(t, record.CPU)
	f.tick(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := f.handler.Handle(ctx, infologger.Request{Commands: map[record.Channel]infologger.Command{
		record.CPU: {Action: infologger.ActionStop},
	}})
	res, ok := resp.Result(record.CPU)
	require.True(t, ok)
	require.NoError(t, res.Err)

	require.Len(t, f.archive.sessions, 1)
	assert.Equal(t, 1, f.archive.sessions[0].EntryCount)
}

func TestArchiveFailureIsNotReturned(t *testing.T) {
	f := newFixture(t)
	f.archive.err = errors.New("disk full")

	f.start(t, record.Memory)
	res := f.stop(t, record.Memory)

	assert.NoError(t, res.Err)
	assert.NotEmpty(t, res.Payload)
}

func TestSerializerFailure(t *testing.T) {
	f := newFixture(t, infologger.WithSerializer(failingSerializer{}))

	f.start(t, record.CPU)
	res := f.stop(t, record.CPU)

	assert.True(t, apperrors.HasCode(res.Err, apperrors.ErrInternal))
	assert.Nil(t, res.Payload)
	assert.False(t, f.state.Active())
	assert.Empty(t, f.archive.sessions)
}

func TestCloseKeepsBufferFiles(t *testing.T) {
	f := newFixture(t)

	f.start(t, record.GPU)
	f.tick(1)
	require.NoError(t, f.handler.Close())

	assert.FileExists(t, f.bufferPath(record.GPU))
	assert.False(t, f.state.Active())
	assert.False(t, f.timer.Active())

	res := f.stop(t, record.GPU)
	assert.True(t, apperrors.HasCode(res.Err, apperrors.ErrNoData))
}

func TestTrailingSeparatorInPath(t *testing.T) {
	f := newFixture(t)

	resp := f.handle(map[record.Channel]infologger.Command{
		record.Memory: {Action: infologger.ActionStart, Path: f.dir + string(os.PathSeparator)},
	})
	res, _ := resp.Result(record.Memory)
	require.NoError(t, res.Err)
	assert.FileExists(t, f.bufferPath(record.Memory))
}

// TestTimerFollowsChannelSet checks every two-request sequence of start,
// stop or no directive per channel: after each request the timer runs
// exactly while a channel is active, and stop results match the model.
func TestTimerFollowsChannelSet(t *testing.T) {
	actions := []infologger.Action{"", infologger.ActionStart, infologger.ActionStop}

	var steps []map[record.Channel]infologger.Action
	for _, cpu := range actions {
		for _, mem := range actions {
			for _, gpu := range actions {
				steps = append(steps, map[record.Channel]infologger.Action{
					record.CPU: cpu, record.Memory: mem, record.GPU: gpu,
				})
			}
		}
	}

	for _, first := range steps {
		for _, second := range steps {
			f := newFixture(t)
			model := map[record.Channel]bool{}

			for _, step := range []map[record.Channel]infologger.Action{first, second} {
				cmds := map[record.Channel]infologger.Command{}
				for ch, action := range step {
					if action != "" {
						cmds[ch] = infologger.Command{Action: action, Path: f.dir}
					}
				}

				resp := f.handle(cmds)

				for _, res := range resp.Results {
					switch step[res.Channel] {
					case infologger.ActionStart:
						require.NoError(t, res.Err)
						model[res.Channel] = true
					case infologger.ActionStop:
						if model[res.Channel] {
							require.NoError(t, res.Err)
							require.NotEmpty(t, res.Payload)
						} else {
							require.True(t, apperrors.HasCode(res.Err, apperrors.ErrNoData))
						}
						model[res.Channel] = false
					}
				}

				anyActive := false
				for _, ch := range record.Channels {
					require.Equal(t, model[ch], f.state.IsActive(ch))
					anyActive = anyActive || model[ch]
				}
				require.Equal(t, anyActive, f.timer.Active(), "steps %v then %v", first, second)

				f.tick(1)
			}
		}
	}
}
