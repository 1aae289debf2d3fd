package server

import (
	"time"

	"codeberg.org/mutker/infologger/internal/archive"
	"codeberg.org/mutker/infologger/internal/errors"
	"codeberg.org/mutker/infologger/internal/infologger"
	"codeberg.org/mutker/infologger/internal/record"
)

// commandMessage is the per channel directive of a log request.
type commandMessage struct {
	Action string `json:"action"`
	Path   string `json:"path,omitempty"`
}

// logRequest is the body of POST /api/log.
type logRequest struct {
	Interval int             `json:"interval,omitempty"`
	CPU      *commandMessage `json:"cpu,omitempty"`
	Mem      *commandMessage `json:"mem,omitempty"`
	GPU      *commandMessage `json:"gpu,omitempty"`
}

func (m logRequest) toRequest() infologger.Request {
	req := infologger.Request{
		Interval: m.Interval,
		Commands: make(map[record.Channel]infologger.Command, len(record.Channels)),
	}

	for ch, cmd := range map[record.Channel]*commandMessage{
		record.CPU:    m.CPU,
		record.Memory: m.Mem,
		record.GPU:    m.GPU,
	} {
		if cmd == nil {
			continue
		}
		req.Commands[ch] = infologger.Command{
			Action: infologger.Action(cmd.Action),
			Path:   cmd.Path,
		}
	}

	return req
}

type resultMessage struct {
	Data  string `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

type logResponse struct {
	Results map[string]resultMessage `json:"results"`
}

func newLogResponse(resp infologger.Response) logResponse {
	out := logResponse{Results: make(map[string]resultMessage, len(resp.Results))}

	for _, res := range resp.Results {
		msg := resultMessage{Data: string(res.Payload)}
		if res.Err != nil {
			msg.Error = res.Message()
			msg.Code = string(errors.CodeOf(res.Err))
		}
		out.Results[res.Channel.String()] = msg
	}

	return out
}

type sessionMessage struct {
	ID         string    `json:"id"`
	Channel    string    `json:"channel"`
	StartedAt  time.Time `json:"started_at"`
	StoppedAt  time.Time `json:"stopped_at"`
	EntryCount int       `json:"entry_count"`
	Data       string    `json:"data,omitempty"`
}

func newSessionMessage(s archive.Session, withData bool) sessionMessage {
	msg := sessionMessage{
		ID:         s.ID,
		Channel:    s.Channel,
		StartedAt:  s.StartedAt,
		StoppedAt:  s.StoppedAt,
		EntryCount: s.EntryCount,
	}
	if withData {
		msg.Data = string(s.Payload)
	}

	return msg
}
