// ABOUTME: Package session runs one research workflow end to end on the client side
// ABOUTME: Owns the transport, the reducer state, stage timers and report delivery

// Package session is the explicit per-research controller.
//
// # Overview
//
// A Session is created for one research request and closed when the caller
// is done with it. It owns:
//
//   - the transport.Client connected to the progress stream
//   - the current workflow.State, written only through workflow.Policy
//   - timers for the delayed approved/rejected stage hand-offs
//   - the report.Resolver and the once-per-session report delivery
//   - a toast queue and a Broadcaster of Updates for front-ends
//
// # Ownership
//
// Events arrive on the transport read goroutine, scheduled stage changes
// arrive on timer goroutines. Both go through the session mutex and replace
// the state by value, so there is a single writer at any moment and
// snapshots handed to subscribers are never mutated afterwards.
//
// # Teardown
//
// Close stops every pending stage timer, disconnects the transport and
// closes subscriber channels. Timer callbacks that already fired check the
// session's liveness flag before touching state, so a finished session is
// never resurrected.
//
// # Usage
//
//	s, err := session.New(session.Options{Transport: transport.Options{URL: wsURL}, Fetcher: fetcher})
//	if err != nil { ... }
//	defer s.Close()
//	updates, _ := s.Subscribe(ctx)
//	go render(updates)
//	if err := s.Start(ctx); err != nil { ... }
//	res, err := s.Wait(ctx)
package session
