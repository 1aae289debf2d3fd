package infologger

import (
	"context"
	"time"

	"codeberg.org/mutker/infologger/internal/errors"
	"codeberg.org/mutker/infologger/internal/logger"
)

// Ticker exposes the channel the sampling timer fires on. A nil channel
// means the timer is stopped. *sampling.TickerTimer implements it.
type Ticker interface {
	C() <-chan time.Time
}

type call struct {
	ctx  context.Context
	req  Request
	resp chan Response
}

// Service owns a Handler and runs every directive and tick on a single
// goroutine.
type Service struct {
	handler  *Handler
	ticker   Ticker
	log      logger.Logger
	requests chan call
	done     chan struct{}
}

// NewService returns a Service. Run must be called before Submit can
// make progress.
func NewService(h *Handler, ticker Ticker, log logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}

	return &Service{
		handler:  h,
		ticker:   ticker,
		log:      log,
		requests: make(chan call),
		done:     make(chan struct{}),
	}
}

// Run processes requests and ticks until ctx is canceled. On return every
// open buffer has been closed without being finalized.
func (s *Service) Run(ctx context.Context) error {
	errFactory := errors.New()

	defer close(s.done)

	s.log.Debug().Msg("Service loop started")

	for {
		select {
		case <-ctx.Done():
			s.log.Debug().Msg("Service loop stopping")
			if err := s.handler.Close(); err != nil {
				return errFactory.Wrap(errors.ErrShutdownFailed, err)
			}
			return nil
		case c := <-s.requests:
			c.resp <- s.handler.Handle(c.ctx, c.req)
		case <-s.ticker.C():
			s.handler.Tick()
		}
	}
}

// Submit hands req to the loop and waits for its response.
func (s *Service) Submit(ctx context.Context, req Request) (Response, error) {
	errFactory := errors.New()

	c := call{ctx: ctx, req: req, resp: make(chan Response, 1)}

	select {
	case s.requests <- c:
	case <-s.done:
		return Response{}, errFactory.New(errors.ErrServiceStopped)
	case <-ctx.Done():
		return Response{}, errFactory.Wrap(errors.ErrTimeout, ctx.Err())
	}

	select {
	case resp := <-c.resp:
		return resp, nil
	case <-s.done:
		return Response{}, errFactory.New(errors.ErrServiceStopped)
	case <-ctx.Done():
		return Response{}, errFactory.Wrap(errors.ErrTimeout, ctx.Err())
	}
}

// Done is closed once Run has returned.
func (s *Service) Done() <-chan struct{} {
	return s.done
}
