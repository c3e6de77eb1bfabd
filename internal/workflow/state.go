// ABOUTME: Workflow state types: stages, local agent statuses and snapshots
// ABOUTME: Values are copied on every update so snapshots never alias

package workflow

import (
	"github.com/2389/research-flow/internal/progress"
)

// Stage is the coarse position of the workflow on the dashboard.
type Stage string

const (
	StageResearcher     Stage = "researcher"
	StageReviewDecision Stage = "review-decision"
	StageRejected       Stage = "rejected"
	StageApproved       Stage = "approved"
	StageSynthesizer    Stage = "synthesizer"
	StageComplete       Stage = "complete"
)

// AgentStatus is the local simplification of the wire status.
type AgentStatus string

const (
	AgentIdle     AgentStatus = "idle"
	AgentThinking AgentStatus = "thinking"
	AgentApproved AgentStatus = "approved"
	AgentRejected AgentStatus = "rejected"
)

// InitialAgentMessage is shown for an agent before it reports anything.
const InitialAgentMessage = "Waiting..."

// MapStatus maps a wire status to a local agent status. The second result is
// false for statuses that leave the agent's status unchanged.
func MapStatus(s progress.Status) (AgentStatus, bool) {
	switch s {
	case progress.StatusStarted, progress.StatusThinking, progress.StatusWorking:
		return AgentThinking, true
	case progress.StatusDone, progress.StatusApproved, progress.StatusCompleted:
		return AgentApproved, true
	case progress.StatusRejected, progress.StatusRetry:
		return AgentRejected, true
	default:
		return "", false
	}
}

// AgentState is what the dashboard shows for one worker agent.
type AgentState struct {
	Status  AgentStatus
	Message string
}

// Agents holds exactly one AgentState per worker agent.
type Agents struct {
	Researcher  AgentState
	Reviewer    AgentState
	Synthesizer AgentState
}

// Get returns the state for a worker agent.
func (a Agents) Get(agent progress.Agent) (AgentState, bool) {
	switch agent {
	case progress.AgentResearcher:
		return a.Researcher, true
	case progress.AgentReviewer:
		return a.Reviewer, true
	case progress.AgentSynthesizer:
		return a.Synthesizer, true
	default:
		return AgentState{}, false
	}
}

func (a Agents) with(agent progress.Agent, st AgentState) Agents {
	switch agent {
	case progress.AgentResearcher:
		a.Researcher = st
	case progress.AgentReviewer:
		a.Reviewer = st
	case progress.AgentSynthesizer:
		a.Synthesizer = st
	}
	return a
}

// State is one snapshot of a research session. It is a plain value; every
// update produces a new State.
type State struct {
	Stage     Stage
	Iteration int
	// MaxIterations is the backend's retry budget, shown as "n/max".
	MaxIterations int
	Agents        Agents
	Report        string
}

// DefaultMaxIterations matches the backend's review budget.
const DefaultMaxIterations = 3

// Initial returns the state at the start of a research session.
func Initial(maxIterations int) State {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	idle := AgentState{Status: AgentIdle, Message: InitialAgentMessage}
	return State{
		Stage:         StageResearcher,
		Iteration:     1,
		MaxIterations: maxIterations,
		Agents:        Agents{Researcher: idle, Reviewer: idle, Synthesizer: idle},
	}
}

// HasReport reports whether the report has been resolved.
func (s State) HasReport() bool {
	return s.Report != ""
}

// WithReport returns a copy of s carrying report.
func (s State) WithReport(report string) State {
	s.Report = report
	return s
}
