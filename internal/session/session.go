// ABOUTME: Per-research session owning the transport, workflow state and stage timers
// ABOUTME: Single writer of WorkflowState; publishes snapshots and delivers the report once

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/2389/research-flow/internal/metrics"
	"github.com/2389/research-flow/internal/notify"
	"github.com/2389/research-flow/internal/progress"
	"github.com/2389/research-flow/internal/report"
	"github.com/2389/research-flow/internal/transport"
	"github.com/2389/research-flow/internal/workflow"
)

// ErrClosed is returned by Wait when the session was closed before it
// finished.
var ErrClosed = errors.New("session closed")

// Kind says which field of an Update is meaningful. State is always set.
type Kind string

const (
	KindState      Kind = "state"
	KindToast      Kind = "toast"
	KindConnection Kind = "connection"
	KindReport     Kind = "report"
	KindFailed     Kind = "failed"
)

// Update is one message to dashboard subscribers.
type Update struct {
	Kind   Kind
	State  workflow.State
	Toast  notify.Toast
	Conn   transport.Change
	Report report.Result
	Err    error
}

// Options configures a Session.
type Options struct {
	// ID tags logs and the dashboard; a UUID is generated when empty.
	ID    string
	Topic string

	Transport     transport.Options
	Policy        workflow.Policy
	MaxIterations int
	Fetcher       report.Fetcher
	// ReportTimeout bounds the wait for a report after System/completed.
	// Zero waits indefinitely.
	ReportTimeout time.Duration

	Clock   clockwork.Clock
	Logger  *slog.Logger
	Metrics *metrics.Session
	Notify  notify.Options
}

// Session is one research run seen from the client.
type Session struct {
	id            string
	topic         string
	client        *transport.Client
	policy        workflow.Policy
	resolver      *report.Resolver
	reportTimeout time.Duration
	maxAttempts   int
	clock         clockwork.Clock
	logger        *slog.Logger
	metrics       *metrics.Session
	toasts        *notify.Queue
	updates       *Broadcaster

	mu        sync.Mutex
	state     workflow.State
	alive     bool
	timers    map[clockwork.Timer]struct{}
	delivered bool
	resolving bool
	conn      transport.State
	lost      bool // a reconnect is in progress

	finished chan struct{}
	result   report.Result
	err      error
}

// New creates a session and its transport. Nothing is dialed until Start.
func New(opts Options) (*Session, error) {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Policy == (workflow.Policy{}) {
		opts.Policy = workflow.DefaultPolicy()
	}

	logger := opts.Logger.With("component", "session", "session_id", opts.ID)

	s := &Session{
		id:            opts.ID,
		topic:         opts.Topic,
		policy:        opts.Policy,
		resolver:      report.NewResolver(opts.Fetcher, logger),
		reportTimeout: opts.ReportTimeout,
		clock:         opts.Clock,
		logger:        logger,
		metrics:       opts.Metrics,
		updates:       NewBroadcaster(logger),
		state:         workflow.Initial(opts.MaxIterations),
		alive:         true,
		timers:        make(map[clockwork.Timer]struct{}),
		finished:      make(chan struct{}),
	}

	notifyOpts := opts.Notify
	if notifyOpts.Clock == nil {
		notifyOpts.Clock = opts.Clock
	}
	if notifyOpts.Logger == nil {
		notifyOpts.Logger = logger
	}
	s.toasts = notify.NewQueue(notifyOpts)

	topts := opts.Transport
	if topts.Clock == nil {
		topts.Clock = opts.Clock
	}
	if topts.Logger == nil {
		topts.Logger = logger
	}
	topts.OnStateChange = s.handleConnChange
	client, err := transport.NewClient(topts)
	if err != nil {
		s.toasts.Close()
		return nil, fmt.Errorf("creating transport: %w", err)
	}
	s.client = client
	s.maxAttempts = topts.MaxReconnectAttempts
	if s.maxAttempts <= 0 {
		s.maxAttempts = transport.DefaultMaxReconnectAttempts
	}

	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Topic returns the research topic, if known.
func (s *Session) Topic() string { return s.topic }

// Start subscribes the session to the progress stream and connects. A failed
// first connect is returned but the transport keeps retrying in the
// background.
func (s *Session) Start(ctx context.Context) error {
	s.client.On(s)
	if err := s.client.Connect(ctx); err != nil {
		return fmt.Errorf("connecting progress stream: %w", err)
	}
	return nil
}

// State returns the current snapshot.
func (s *Session) State() workflow.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connection returns the last reported transport state.
func (s *Session) Connection() transport.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Toasts returns the notifications currently on screen.
func (s *Session) Toasts() []notify.Toast {
	return s.toasts.Active()
}

// Subscribe streams updates until ctx ends or the session closes.
func (s *Session) Subscribe(ctx context.Context) (<-chan Update, string) {
	return s.updates.Subscribe(ctx)
}

// Done is closed once the session has a report or has failed.
func (s *Session) Done() <-chan struct{} {
	return s.finished
}

// Wait blocks until the report is delivered, the session fails, or ctx ends.
func (s *Session) Wait(ctx context.Context) (report.Result, error) {
	select {
	case <-s.finished:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.result, s.err
	case <-ctx.Done():
		return report.Result{}, ctx.Err()
	}
}

// HandleEvent folds one progress event into the session. It is the
// session's transport listener and the only entry point for events.
func (s *Session) HandleEvent(e progress.Event) {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return
	}
	prev := s.state
	next, effects := s.policy.Reduce(prev, e)
	s.state = next
	s.updates.Publish(Update{Kind: KindState, State: next})
	s.mu.Unlock()

	s.metrics.EventApplied(string(e.Agent), string(e.Status))
	if next.Stage != prev.Stage {
		s.metrics.StageEntered(string(next.Stage))
		s.logger.Debug("stage changed", "from", prev.Stage, "to", next.Stage, "event", e.String())
	}

	s.run(effects)
}

// Close tears the session down: pending stage timers are cancelled, the
// transport is disconnected and subscribers are released. Safe to call more
// than once.
func (s *Session) Close() {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return
	}
	s.alive = false
	for t := range s.timers {
		t.Stop()
	}
	clear(s.timers)
	s.mu.Unlock()

	s.client.Disconnect()
	s.finish(report.Result{}, ErrClosed)
	s.toasts.Close()
	s.updates.Close()
	s.logger.Info("session closed")
}

// Notify shows a toast that did not come from the progress stream, such as
// upload results from the start flow.
func (s *Session) Notify(level workflow.Level, title, message string) {
	s.notify(level, title, message)
}

func (s *Session) run(effects []workflow.Effect) {
	for _, eff := range effects {
		switch eff := eff.(type) {
		case workflow.ScheduleStage:
			s.schedule(eff.After, func() { s.advance(eff) })
		case workflow.Notify:
			s.notify(eff.Level, eff.Title, eff.Message)
		case workflow.Complete:
			s.complete(eff.Event)
		}
	}
}

// schedule runs fn after d unless the session closes first.
func (s *Session) schedule(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive {
		return
	}

	var t clockwork.Timer
	t = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		_, pending := s.timers[t]
		delete(s.timers, t)
		alive := s.alive
		s.mu.Unlock()
		if !pending || !alive {
			return
		}
		fn()
	})
	s.timers[t] = struct{}{}
}

func (s *Session) advance(sch workflow.ScheduleStage) {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return
	}
	next, effects, ok := s.policy.Advance(s.state, sch.From, sch.To)
	if !ok {
		s.mu.Unlock()
		s.logger.Debug("scheduled stage change skipped", "from", sch.From, "to", sch.To)
		return
	}
	s.state = next
	s.updates.Publish(Update{Kind: KindState, State: next})
	s.mu.Unlock()

	s.metrics.StageEntered(string(next.Stage))
	s.run(effects)
}

func (s *Session) notify(level workflow.Level, title, message string) {
	t, ok := s.toasts.Push(level, title, message)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alive {
		s.updates.Publish(Update{Kind: KindToast, State: s.state, Toast: t})
	}
}

// complete resolves the report for a terminal event. The first terminal
// event that yields a report wins; later ones are ignored. An inline report
// is delivered even while a fallback read is in flight; only one fallback
// read runs at a time.
func (s *Session) complete(e progress.Event) {
	s.mu.Lock()
	if s.delivered || !s.alive {
		s.mu.Unlock()
		return
	}
	inline, hasInline := report.Inline(e)
	needsFallback := !hasInline && e.Agent == progress.AgentSystem
	if needsFallback {
		if s.resolving {
			s.mu.Unlock()
			return
		}
		s.resolving = true
	}
	s.mu.Unlock()

	if hasInline {
		s.deliver(inline)
		return
	}
	if !needsFallback {
		return
	}
	if s.reportTimeout > 0 {
		s.schedule(s.reportTimeout, s.reportTimedOut)
	}

	// The fallback read is network I/O; keep it off the transport read loop
	go func() {
		res, err := s.resolver.Resolve(context.Background(), e)

		s.mu.Lock()
		s.resolving = false
		s.mu.Unlock()

		if err != nil {
			if !errors.Is(err, report.ErrNoReport) {
				s.metrics.ReportResolved("unavailable")
			}
			return
		}
		s.deliver(res)
	}()
}

func (s *Session) deliver(res report.Result) {
	s.mu.Lock()
	if s.delivered || !s.alive {
		s.mu.Unlock()
		return
	}
	s.delivered = true
	s.state = s.state.WithReport(res.Markdown)
	s.updates.Publish(Update{Kind: KindReport, State: s.state, Report: res})
	s.mu.Unlock()

	s.metrics.ReportResolved(string(res.Source))
	s.logger.Info("report delivered", "source", res.Source, "length", len(res.Markdown))
	s.finish(res, nil)
}

func (s *Session) reportTimedOut() {
	s.mu.Lock()
	delivered := s.delivered
	s.mu.Unlock()
	if delivered {
		return
	}

	err := fmt.Errorf("%w: nothing arrived within %s", report.ErrReportUnavailable, s.reportTimeout)
	s.logger.Error("report timed out", "error", err)
	s.notify(workflow.LevelError, "Report unavailable", "The research finished but the report could not be loaded.")
	s.fail(err)
}

func (s *Session) handleConnChange(c transport.Change) {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return
	}
	s.conn = c.State
	recovered := c.State == transport.StateConnected && s.lost
	switch c.State {
	case transport.StateReconnecting:
		s.lost = true
	case transport.StateConnected:
		s.lost = false
	}
	s.updates.Publish(Update{Kind: KindConnection, State: s.state, Conn: c})
	s.mu.Unlock()

	switch {
	case c.State == transport.StateReconnecting:
		s.notify(workflow.LevelWarning, "Connection lost",
			fmt.Sprintf("Reconnecting (attempt %d/%d)", c.Attempt, s.maxAttempts))
	case recovered:
		s.notify(workflow.LevelSuccess, "Reconnected", "Progress updates resumed.")
	case c.State == transport.StateGaveUp:
		s.notify(workflow.LevelError, "Connection lost", "Could not reach the research server.")
		s.fail(c.Err)
	}
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	alive := s.alive
	if alive {
		s.updates.Publish(Update{Kind: KindFailed, State: s.state, Err: err})
	}
	s.mu.Unlock()

	s.finish(report.Result{}, err)
}

// finish records the first outcome and releases Wait.
func (s *Session) finish(res report.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.finished:
		return
	default:
	}
	s.result = res
	s.err = err
	close(s.finished)
}
