// Package infologger interprets start and stop directives for the sampled
// channels and turns finalized buffers into serialized record sets.
package infologger

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/mutker/infologger/internal/archive"
	"codeberg.org/mutker/infologger/internal/buffer"
	"codeberg.org/mutker/infologger/internal/datamodel"
	"codeberg.org/mutker/infologger/internal/errors"
	"codeberg.org/mutker/infologger/internal/logger"
	"codeberg.org/mutker/infologger/internal/record"
	"codeberg.org/mutker/infologger/internal/sampling"
	"github.com/google/uuid"
)

const (
	DefaultAppName = "infologger"

	containerID   = "1"
	containerType = "go"
)

// Handler applies directives to a sampling.State. It is not safe for
// concurrent use; Service serializes access to it.
type Handler struct {
	state      *sampling.State
	serializer datamodel.Serializer
	archive    archive.Archive
	appName    string
	now        func() time.Time
	log        logger.Logger

	sessions [len(record.Channels)]string
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithSerializer replaces the XML serializer.
func WithSerializer(s datamodel.Serializer) HandlerOption {
	return func(h *Handler) {
		if s != nil {
			h.serializer = s
		}
	}
}

// WithArchive records every finalized record set in a.
func WithArchive(a archive.Archive) HandlerOption {
	return func(h *Handler) {
		if a != nil {
			h.archive = a
		}
	}
}

// WithAppName sets the application name used in buffer file names.
func WithAppName(name string) HandlerOption {
	return func(h *Handler) {
		if name != "" {
			h.appName = name
		}
	}
}

// WithHandlerClock replaces time.Now for the serialized model timestamp.
func WithHandlerClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.now = now
	}
}

// WithHandlerLogger sets the logger.
func WithHandlerLogger(l logger.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// NewHandler returns a Handler driving state.
func NewHandler(state *sampling.State, opts ...HandlerOption) *Handler {
	h := &Handler{
		state:      state,
		serializer: datamodel.XMLSerializer{},
		archive:    archive.Noop(),
		appName:    DefaultAppName,
		now:        time.Now,
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Handle applies the interval, then the CPU, memory and GPU directives in
// that order. A failing channel does not prevent the others from being
// processed. The timer is reconciled once after all channels.
func (h *Handler) Handle(ctx context.Context, req Request) Response {
	if req.Interval != 0 {
		h.state.ConfigureInterval(req.Interval)
	}

	var resp Response
	for _, ch := range record.Channels {
		cmd, ok := req.Commands[ch]
		if !ok {
			continue
		}

		switch cmd.Action {
		case ActionStart:
			resp.Results = append(resp.Results, h.start(ch, cmd.Path))
		case ActionStop:
			resp.Results = append(resp.Results, h.stop(ctx, ch))
		default:
			h.log.Debug().
				Str("channel", ch.String()).
				Str("action", string(cmd.Action)).
				Msg("Ignoring unknown action")
		}
	}

	h.state.Reconcile()

	return resp
}

// Tick samples every active channel.
func (h *Handler) Tick() {
	h.state.Tick()
}

// Close releases every open buffer without finalizing it.
func (h *Handler) Close() error {
	for i := range h.sessions {
		h.sessions[i] = ""
	}

	return h.state.Close()
}

func (h *Handler) start(ch record.Channel, dir string) Result {
	errFactory := errors.New()

	if dir == "" {
		return Result{
			Channel: ch,
			Err: errFactory.WithMessage(errors.ErrConfig,
				fmt.Sprintf("File path must be defined for %s logging!", ch)),
		}
	}

	if err := h.state.Start(ch, buffer.FileName(dir, h.appName, ch.String())); err != nil {
		h.log.Error().Err(err).Str("channel", ch.String()).Msg("Failed to start logging")
		return Result{Channel: ch, Err: err}
	}
	h.sessions[ch] = uuid.NewString()

	return Result{Channel: ch}
}

func (h *Handler) stop(ctx context.Context, ch record.Channel) Result {
	errFactory := errors.New()

	fin, err := h.state.Stop(ch)
	sessionID := h.sessions[ch]
	h.sessions[ch] = ""
	if fin == nil {
		return Result{Channel: ch, Err: err}
	}

	model := datamodel.New(h.now())
	container := model.AddContainer(containerID, "Go"+model.Version, containerType)
	container.AddObject(fin.Record)

	payload, serr := h.serializer.Serialize(model)
	if serr != nil {
		h.log.Error().Err(serr).Str("channel", ch.String()).Msg("Failed to serialize record set")
		return Result{Channel: ch, Err: errFactory.Wrap(errors.ErrInternal, serr)}
	}

	session := &archive.Session{
		ID:         sessionID,
		Channel:    ch.String(),
		StartedAt:  fin.StartedAt,
		StoppedAt:  fin.StoppedAt,
		EntryCount: fin.Entries,
		Payload:    payload,
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	// Archived even if the caller has gone away
	if aerr := h.archive.Record(context.WithoutCancel(ctx), session); aerr != nil {
		h.log.Warn().Err(aerr).Str("session", session.ID).Msg("Failed to archive record set")
	}

	return Result{Channel: ch, Payload: payload, Err: err}
}
