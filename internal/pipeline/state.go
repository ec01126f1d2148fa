package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	rerrors "github.com/shanehull/resultalert/internal/errors"
	"github.com/shanehull/resultalert/internal/types"
)

type State string

const (
	Detected   State = "detected"
	Admitted   State = "admitted"
	Extracting State = "extracting"
	Extracted  State = "extracted"
	Analyzing  State = "analyzing"
	Analyzed   State = "analyzed"
	Dispatched State = "dispatched"
	Failed     State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Dispatched || s == Failed
}

var next = map[State]State{
	Detected:   Admitted,
	Admitted:   Extracting,
	Extracting: Extracted,
	Extracted:  Analyzing,
	Analyzing:  Analyzed,
	Analyzed:   Dispatched,
}

// Run is the record of one announcement's trip through the pipeline.
type Run struct {
	TraceID      string
	Announcement types.Announcement
	State        State
	History      []State
	FailedStage  string
	FailedKind   rerrors.Kind
	Err          error
	StartedAt    time.Time
	FinishedAt   time.Time
}

func newRun(ann types.Announcement, now time.Time) *Run {
	return &Run{
		TraceID:      uuid.NewString(),
		Announcement: ann,
		State:        Admitted,
		History:      []State{Detected, Admitted},
		StartedAt:    now,
	}
}

// advance moves the run to to. Only the next state in sequence is accepted;
// anything else is a programming error and marks the run failed. A terminal
// run is left as it is.
func (r *Run) advance(to State) bool {
	if r.State.Terminal() {
		return false
	}
	if next[r.State] != to {
		r.fail("pipeline", rerrors.Unknown, fmt.Errorf("invalid transition %s -> %s", r.State, to))
		return false
	}
	r.State = to
	r.History = append(r.History, to)
	return true
}

func (r *Run) fail(stage string, kind rerrors.Kind, err error) {
	if r.State.Terminal() {
		return
	}
	r.State = Failed
	r.History = append(r.History, Failed)
	r.FailedStage = stage
	r.FailedKind = kind
	r.Err = err
}
