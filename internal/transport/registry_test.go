// ABOUTME: Tests for the listener registry
// ABOUTME: Covers set semantics, ordering and panic isolation

package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/2389/research-flow/internal/progress"
)

type recorder struct {
	name string
	log  *[]string
}

func (r *recorder) HandleEvent(e progress.Event) {
	*r.log = append(*r.log, r.name+":"+e.String())
}

type funcTypeListener func(progress.Event)

func (f funcTypeListener) HandleEvent(e progress.Event) { f(e) }

func TestRegistry_AddIsIdempotent(t *testing.T) {
	reg := NewRegistry(nil, nil)
	var log []string
	l := &recorder{name: "a", log: &log}

	assert.True(t, reg.Add(l))
	assert.False(t, reg.Add(l))
	assert.Equal(t, 1, reg.Len())

	reg.Dispatch(progress.New(progress.AgentResearcher, progress.StatusDone, ""))
	assert.Equal(t, []string{"a:Researcher/done"}, log)
}

func TestRegistry_RemoveUnknownIsNoop(t *testing.T) {
	reg := NewRegistry(nil, nil)
	var log []string
	a := &recorder{name: "a", log: &log}
	b := &recorder{name: "b", log: &log}

	reg.Add(a)
	assert.False(t, reg.Remove(b))
	assert.True(t, reg.Remove(a))
	assert.False(t, reg.Remove(a))
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_DispatchInRegistrationOrder(t *testing.T) {
	reg := NewRegistry(nil, nil)
	var log []string
	for _, name := range []string{"first", "second", "third"} {
		reg.Add(&recorder{name: name, log: &log})
	}

	reg.Dispatch(progress.New(progress.AgentReviewer, progress.StatusThinking, ""))

	assert.Equal(t, []string{
		"first:Reviewer/thinking",
		"second:Reviewer/thinking",
		"third:Reviewer/thinking",
	}, log)
}

func TestRegistry_PanickingListenerDoesNotStopOthers(t *testing.T) {
	reg := NewRegistry(nil, nil)
	var log []string

	reg.Add(ListenerFunc(func(progress.Event) { panic("boom") }))
	reg.Add(&recorder{name: "after", log: &log})

	assert.NotPanics(t, func() {
		reg.Dispatch(progress.New(progress.AgentSystem, progress.StatusCompleted, ""))
	})
	assert.Equal(t, []string{"after:System/completed"}, log)
}

func TestRegistry_ListenerMayRemoveItselfDuringDispatch(t *testing.T) {
	reg := NewRegistry(nil, nil)
	calls := 0

	var self *FuncListener
	self = ListenerFunc(func(progress.Event) {
		calls++
		reg.Remove(self)
	})
	reg.Add(self)

	reg.Dispatch(progress.New(progress.AgentResearcher, progress.StatusThinking, ""))
	reg.Dispatch(progress.New(progress.AgentResearcher, progress.StatusThinking, ""))

	assert.Equal(t, 1, calls)
}

func TestRegistry_ListenerFuncHandlesAreDistinct(t *testing.T) {
	reg := NewRegistry(nil, nil)
	fn := func(progress.Event) {}

	assert.True(t, reg.Add(ListenerFunc(fn)))
	assert.True(t, reg.Add(ListenerFunc(fn)))
	assert.Equal(t, 2, reg.Len())
}

func TestRegistry_RejectsNonComparableListener(t *testing.T) {
	reg := NewRegistry(nil, nil)
	assert.Panics(t, func() {
		reg.Add(funcTypeListener(func(progress.Event) {}))
	})
}

func TestRegistry_Clear(t *testing.T) {
	reg := NewRegistry(nil, nil)
	var log []string
	reg.Add(&recorder{name: "a", log: &log})
	reg.Add(&recorder{name: "b", log: &log})

	reg.Clear()
	reg.Dispatch(progress.New(progress.AgentResearcher, progress.StatusDone, ""))

	assert.Equal(t, 0, reg.Len())
	assert.Empty(t, log)
}
