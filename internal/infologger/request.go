package infologger

import (
	"codeberg.org/mutker/infologger/internal/errors"
	"codeberg.org/mutker/infologger/internal/record"
)

// Action is the directive carried for one channel.
type Action string

const (
	ActionStart Action = "start"
	ActionStop  Action = "stop"
)

// Command is the directive for a single channel. Path is the directory the
// channel buffer is created in and is required for ActionStart.
type Command struct {
	Action Action
	Path   string
}

// Request carries the directives of one call. Interval is optional (zero
// means unset) and is applied before any channel is processed.
type Request struct {
	Interval int
	Commands map[record.Channel]Command
}

// Result is the outcome of one start or stop directive. Payload is only set
// by a stop that produced a record set; it may accompany a non-nil Err when
// samples were lost while logging.
type Result struct {
	Channel record.Channel
	Payload []byte
	Err     error
}

// Message returns the caller facing error text, or "" on success.
func (r Result) Message() string {
	if r.Err == nil {
		return ""
	}

	return errors.MessageOf(r.Err)
}

// Response collects the results of a request in channel order.
type Response struct {
	Results []Result
}

// Result returns the result for ch, if the request carried a directive for it.
func (r Response) Result(ch record.Channel) (Result, bool) {
	for _, res := range r.Results {
		if res.Channel == ch {
			return res, true
		}
	}

	return Result{}, false
}
