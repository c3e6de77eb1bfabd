// ABOUTME: Package workflow folds progress events into dashboard state
// ABOUTME: Pure reducer, status mapping, stage policy and node visibility

// Package workflow turns the progress event stream into the state the
// dashboard renders: one AgentState per worker agent, the current iteration,
// the coarse workflow Stage and, once resolved, the report.
//
// # Reducer
//
// Policy.Reduce is a pure function. It never mutates its input and never
// performs side effects; anything that has to happen later or outside the
// state (a delayed stage change, a toast, report resolution) is returned as
// an Effect for the caller to carry out:
//
//	next, effects := policy.Reduce(state, event)
//	for _, eff := range effects {
//	    switch eff := eff.(type) {
//	    case workflow.ScheduleStage:
//	        // after eff.After, call policy.Advance(current, eff.From, eff.To)
//	    case workflow.Notify:
//	        // show a toast
//	    case workflow.Complete:
//	        // hand eff.Event to the report resolver
//	    }
//	}
//
// # Status mapping
//
// The wire status vocabulary is wider than the four local agent statuses.
// MapStatus is the single total mapping between the two:
//
//	started, thinking, working  -> thinking
//	done, approved, completed   -> approved
//	rejected, retry             -> rejected
//	anything else               -> unchanged
//
// # Stages
//
// researcher -> review-decision -> approved -> synthesizer -> complete, with
// review-decision -> rejected -> researcher as the retry loop. The approved
// and rejected stages are transient: Reduce schedules the follow-up stage and
// Advance applies it only if nothing else moved the stage in the meantime.
package workflow
