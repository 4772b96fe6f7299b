// Package fallback decides which agent runs next for an input file and when
// a failure rotates to the next agent or ends the run.
package fallback

import (
	"errors"
	"strings"
)

var ErrEmptyQueue = errors.New("agent list is empty")

// Action is what the controller does after one attempt.
type Action int

const (
	ActionSucceed Action = iota // persist output, stop this file
	ActionRotate                // move agent to the back, try the next one
	ActionAbort                 // fatal failure, stop the run
)

func (a Action) String() string {
	switch a {
	case ActionSucceed:
		return "succeed"
	case ActionRotate:
		return "rotate"
	case ActionAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of one attempt.
type Outcome struct {
	ExitCode    int
	RateLimited bool
}

// Transition is the pure queue transition for one attempt against the front
// agent. The input slice is never modified.
func Transition(queue []string, o Outcome) ([]string, Action) {
	next := append([]string(nil), queue...)
	if o.ExitCode == 0 {
		return next, ActionSucceed
	}
	if !o.RateLimited {
		return next, ActionAbort
	}
	if len(next) > 1 {
		front := next[0]
		copy(next, next[1:])
		next[len(next)-1] = front
	}
	return next, ActionRotate
}

// Queue is the rotating agent order shared by every file in a run. Names are
// unique; rotation never adds or drops one.
type Queue struct {
	names []string
}

// NewQueue builds a queue, dropping blanks and later duplicates.
func NewQueue(names []string) (*Queue, error) {
	seen := make(map[string]bool, len(names))
	q := &Queue{}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		q.names = append(q.names, n)
	}
	if len(q.names) == 0 {
		return nil, ErrEmptyQueue
	}
	return q, nil
}

// Front returns the agent to try next without removing it.
func (q *Queue) Front() string { return q.names[0] }

func (q *Queue) Len() int { return len(q.names) }

// Names returns a copy of the current order.
func (q *Queue) Names() []string { return append([]string(nil), q.names...) }

// Apply runs Transition against the queue and stores the result.
func (q *Queue) Apply(o Outcome) Action {
	next, action := Transition(q.names, o)
	q.names = next
	return action
}
