// Package report carries engine events to whatever renders them. The engine
// never writes to a terminal; it emits Events through a Reporter.
package report

import (
	"sync"
	"time"
)

// Level is the severity of an Event.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Step names the engine stage an Event belongs to.
type Step string

const (
	StepStart     Step = "start"
	StepResolve   Step = "resolve"
	StepInit      Step = "init"
	StepAttach    Step = "attach"
	StepFetch     Step = "fetch"
	StepPull      Step = "pull"
	StepTrack     Step = "track"
	StepSubmodule Step = "submodule"
	StepPush      Step = "push"
	StepDone      Step = "done"
)

// Event is one structured record emitted during a run.
type Event struct {
	Time    time.Time
	Level   Level
	Repo    string
	Step    Step
	Message string
}

// Reporter receives events. Implementations must be safe for concurrent use.
type Reporter interface {
	Report(Event)
}

// Func adapts a function to Reporter.
type Func func(Event)

func (f Func) Report(e Event) { f(e) }

// Nop discards every event.
var Nop Reporter = Func(func(Event) {})

// Recorder keeps every event in memory. It is the test double for engine runs.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Report(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events in arrival order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Messages returns the messages recorded at level.
func (r *Recorder) Messages(level Level) []string {
	var out []string
	for _, e := range r.Events() {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}

// ForRepo returns the events recorded for one repository.
func (r *Recorder) ForRepo(repo string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Repo == repo {
			out = append(out, e)
		}
	}
	return out
}
