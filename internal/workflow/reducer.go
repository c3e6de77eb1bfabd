// ABOUTME: Pure reducer folding progress events into workflow state
// ABOUTME: Emits effects for delayed stage changes, toasts and report resolution

package workflow

import (
	"fmt"
	"time"

	"github.com/2389/research-flow/internal/progress"
)

// Default delays for the transient approved and rejected stages.
const (
	DefaultApproveDelay = time.Second
	DefaultRejectDelay  = 2 * time.Second
)

// DetailApproved is the reviewer verdict key in event details.
const DetailApproved = "approved"

// Effect is a side effect requested by Reduce.
type Effect interface {
	isEffect()
}

// ScheduleStage asks the caller to call Advance(state, From, To) after After.
type ScheduleStage struct {
	After time.Duration
	From  Stage
	To    Stage
}

// Level is the severity of a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notify asks the caller to show a transient notification.
type Notify struct {
	Level   Level
	Title   string
	Message string
}

// Complete marks a terminal event that may carry or imply the final report.
type Complete struct {
	Event progress.Event
}

func (ScheduleStage) isEffect() {}
func (Notify) isEffect()        {}
func (Complete) isEffect()      {}

// Policy holds the tunables of the stage policy.
type Policy struct {
	ApproveDelay time.Duration
	RejectDelay  time.Duration
}

// DefaultPolicy returns the backend-matching delays.
func DefaultPolicy() Policy {
	return Policy{ApproveDelay: DefaultApproveDelay, RejectDelay: DefaultRejectDelay}
}

// Reduce applies e to s using DefaultPolicy.
func Reduce(s State, e progress.Event) (State, []Effect) {
	return DefaultPolicy().Reduce(s, e)
}

// Reduce returns the state after e and the effects the caller must perform.
// Events for unknown agents and heartbeat statuses leave s unchanged.
func (p Policy) Reduce(s State, e progress.Event) (State, []Effect) {
	if e.Status.IsHeartbeat() {
		return s, nil
	}
	if !e.Agent.IsWorker() && e.Agent != progress.AgentSystem {
		return s, nil
	}

	prev := s
	if n, ok := e.IterationValue(); ok {
		s.Iteration = n
	}

	var effects []Effect
	if e.Agent == progress.AgentSystem {
		s, effects = p.reduceSystem(s, e)
	} else {
		s = applyAgent(s, e)
		s, effects = p.reduceStage(s, e)
	}

	// Stage toasts go first so they are shown before the report lands
	return s, append(stageEntered(prev, s), effects...)
}

// Advance applies a scheduled stage change. It only moves the stage when the
// workflow is still in from; ok reports whether it did.
func (p Policy) Advance(s State, from, to Stage) (State, []Effect, bool) {
	if s.Stage != from {
		return s, nil, false
	}
	prev := s
	s.Stage = to
	return s, stageEntered(prev, s), true
}

func applyAgent(s State, e progress.Event) State {
	cur, _ := s.Agents.Get(e.Agent)
	if status, ok := MapStatus(e.Status); ok {
		cur.Status = status
	}
	if e.Message != "" {
		cur.Message = e.Message
	}
	s.Agents = s.Agents.with(e.Agent, cur)
	return s
}

func (p Policy) reduceStage(s State, e progress.Event) (State, []Effect) {
	switch e.Agent {
	case progress.AgentResearcher:
		if e.Status == progress.StatusDone {
			s.Stage = StageReviewDecision
		}

	case progress.AgentReviewer:
		switch e.Status {
		case progress.StatusThinking, progress.StatusWorking:
			s.Stage = StageReviewDecision
		case progress.StatusDone:
			if !approvedVerdict(e) {
				s.Agents.Reviewer.Status = AgentRejected
				return s, []Effect{Notify{
					Level:   LevelWarning,
					Title:   "Review finished without approval",
					Message: "The reviewer finished but did not approve; waiting for the next update.",
				}}
			}
			s.Stage = StageApproved
			return s, []Effect{ScheduleStage{After: p.ApproveDelay, From: StageApproved, To: StageSynthesizer}}
		case progress.StatusRetry, progress.StatusRejected:
			s.Stage = StageRejected
			return s, []Effect{ScheduleStage{After: p.RejectDelay, From: StageRejected, To: StageResearcher}}
		}

	case progress.AgentSynthesizer:
		switch e.Status {
		case progress.StatusThinking, progress.StatusWorking:
			s.Stage = StageSynthesizer
		case progress.StatusDone, progress.StatusCompleted:
			s.Stage = StageComplete
			if e.Status == progress.StatusDone {
				return s, []Effect{Complete{Event: e}}
			}
		}
	}
	return s, nil
}

// approvedVerdict decides a reviewer done event. An explicit boolean verdict
// in the details wins; otherwise the mapped status decides.
func approvedVerdict(e progress.Event) bool {
	if v, ok := e.Details[DetailApproved].(bool); ok {
		return v
	}
	status, ok := MapStatus(e.Status)
	return ok && status == AgentApproved
}

func (p Policy) reduceSystem(s State, e progress.Event) (State, []Effect) {
	switch e.Status {
	case progress.StatusCompleted:
		s.Stage = StageComplete
		return s, []Effect{Complete{Event: e}}
	case progress.StatusError:
		return s, []Effect{Notify{Level: LevelError, Title: "Error", Message: e.Message}}
	case progress.StatusConnected:
		return s, []Effect{Notify{Level: LevelInfo, Title: "Connected", Message: e.Message}}
	}
	return s, nil
}

// stageEntered emits the toasts shown when the workflow enters complete or
// rejected.
func stageEntered(prev, next State) []Effect {
	if prev.Stage == next.Stage {
		return nil
	}
	switch next.Stage {
	case StageComplete:
		return []Effect{Notify{
			Level:   LevelSuccess,
			Title:   "Research finished",
			Message: "Your full report is available.",
		}}
	case StageRejected:
		return []Effect{Notify{
			Level:   LevelInfo,
			Title:   "Improving the research...",
			Message: fmt.Sprintf("New attempt (%d/%d)", next.Iteration, next.MaxIterations),
		}}
	}
	return nil
}
