// ABOUTME: Wire types for research progress frames: agents, statuses and events.
// ABOUTME: Decodes JSON frames and exposes typed accessors for the details map.

package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
)

// Agent names the backend component an event is about.
type Agent string

const (
	AgentResearcher  Agent = "Researcher"
	AgentReviewer    Agent = "Reviewer"
	AgentSynthesizer Agent = "Synthesizer"
	AgentSystem      Agent = "System"
)

// Workers returns the agents that carry per-agent UI state, in pipeline order.
func Workers() []Agent {
	return []Agent{AgentResearcher, AgentReviewer, AgentSynthesizer}
}

// IsWorker reports whether a is one of the three pipeline agents.
func (a Agent) IsWorker() bool {
	switch a {
	case AgentResearcher, AgentReviewer, AgentSynthesizer:
		return true
	}
	return false
}

// Status is the wire status vocabulary.
type Status string

const (
	StatusStarted   Status = "started"
	StatusThinking  Status = "thinking"
	StatusWorking   Status = "working"
	StatusDone      Status = "done"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusRetry     Status = "retry"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusConnected Status = "connected"
	StatusPing      Status = "ping"
	StatusPong      Status = "pong"
)

// IsHeartbeat reports whether the status is a keepalive with no business meaning.
func (s Status) IsHeartbeat() bool {
	return s == StatusPing || s == StatusPong
}

// Detail keys with meaning to the client.
const (
	DetailFinalReport   = "final_report"
	DetailReportContent = "report_content"
)

// ErrMissingStatus is returned by Decode for frames without a status field.
var ErrMissingStatus = errors.New("frame has no status")

// Event is one inbound progress frame.
type Event struct {
	Agent     Agent          `json:"agent"`
	Status    Status         `json:"status"`
	Message   string         `json:"message"`
	Timestamp string         `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
	Iteration *int           `json:"iteration,omitempty"`
}

// New builds an event without details or iteration.
func New(agent Agent, status Status, message string) Event {
	return Event{Agent: agent, Status: status, Message: message}
}

// WithIteration returns a copy of e carrying iteration n.
func (e Event) WithIteration(n int) Event {
	e.Iteration = &n
	return e
}

// WithDetail returns a copy of e with key set in its details.
func (e Event) WithDetail(key string, value any) Event {
	details := make(map[string]any, len(e.Details)+1)
	maps.Copy(details, e.Details)
	details[key] = value
	e.Details = details
	return e
}

// IterationValue returns the event's iteration when present and positive.
func (e Event) IterationValue() (int, bool) {
	if e.Iteration == nil || *e.Iteration < 1 {
		return 0, false
	}
	return *e.Iteration, true
}

// DetailString returns details[key] when it is a string, else "".
func (e Event) DetailString(key string) string {
	if e.Details == nil {
		return ""
	}
	s, _ := e.Details[key].(string)
	return s
}

// FinalReport returns details.final_report.
func (e Event) FinalReport() string {
	return e.DetailString(DetailFinalReport)
}

// ReportContent returns details.report_content.
func (e Event) ReportContent() string {
	return e.DetailString(DetailReportContent)
}

// String renders a short form for logs.
func (e Event) String() string {
	if n, ok := e.IterationValue(); ok {
		return fmt.Sprintf("%s/%s#%d", e.Agent, e.Status, n)
	}
	return fmt.Sprintf("%s/%s", e.Agent, e.Status)
}

// DecodeError reports a frame that could not be turned into an Event.
type DecodeError struct {
	Frame string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding progress frame %q: %v", e.Frame, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// maxFramePreview bounds how much of a bad frame ends up in errors and logs.
const maxFramePreview = 120

// Decode parses one JSON frame.
func Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, &DecodeError{Frame: preview(data), Err: err}
	}
	if e.Status == "" {
		return Event{}, &DecodeError{Frame: preview(data), Err: ErrMissingStatus}
	}
	return e, nil
}

func preview(data []byte) string {
	if len(data) <= maxFramePreview {
		return string(data)
	}
	return string(data[:maxFramePreview-3]) + "..."
}
