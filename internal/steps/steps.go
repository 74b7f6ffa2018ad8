// Package steps declares the fixed, ordered onboarding sequence and the pure
// gate predicates over it. The order is the single source of truth for
// step-gating: it is built once at process start, injected by reference, and
// may only ever be appended to so sessions already in flight keep their
// position.
package steps

import (
	"errors"
	"fmt"
)

// Step is one stage in the onboarding sequence.
type Step string

const (
	Prequalification  Step = "prequalification"
	ApplicationPage1  Step = "application_page1"
	ApplicationPage2  Step = "application_page2"
	EmploymentHistory Step = "employment_history"
	LicenseUpload     Step = "license_upload"
	PoliciesConsents  Step = "policies_consents"
	DriveTest         Step = "drive_test"
	FlatbedTraining   Step = "flatbed_training"
)

// Progress is a session's monotonic progress marker. CurrentStep is the step
// the applicant is currently on; Completed flips only when the final step is
// done.
type Progress struct {
	CurrentStep Step `json:"current_step"`
	Completed   bool `json:"completed"`
}

// Order is an immutable ordered step list with O(1) index lookup.
type Order struct {
	list  []Step
	index map[Step]int
}

// NewOrder builds an Order from the given sequence. The sequence must be
// non-empty and free of duplicates.
func NewOrder(list ...Step) (*Order, error) {
	if len(list) == 0 {
		return nil, errors.New("steps: empty order")
	}

	index := make(map[Step]int, len(list))
	for i, s := range list {
		if _, ok := index[s]; ok {
			return nil, fmt.Errorf("steps: duplicate step %q", s)
		}
		index[s] = i
	}

	return &Order{list: append([]Step(nil), list...), index: index}, nil
}

// DefaultOrder returns the production onboarding sequence.
func DefaultOrder() *Order {
	o, err := NewOrder(
		Prequalification,
		ApplicationPage1,
		ApplicationPage2,
		EmploymentHistory,
		LicenseUpload,
		PoliciesConsents,
		DriveTest,
		FlatbedTraining,
	)
	if err != nil {
		panic(err)
	}
	return o
}

// Steps returns a copy of the ordered sequence.
func (o *Order) Steps() []Step {
	return append([]Step(nil), o.list...)
}

// Contains reports whether s is part of the order.
func (o *Order) Contains(s Step) bool {
	_, ok := o.index[s]
	return ok
}

// First returns the initial step of the sequence.
func (o *Order) First() Step { return o.list[0] }

// Last returns the final step of the sequence.
func (o *Order) Last() Step { return o.list[len(o.list)-1] }

// Next returns the step after s. ok is false for the last step and for steps
// outside the order.
func (o *Order) Next(s Step) (Step, bool) {
	i, ok := o.index[s]
	if !ok || i+1 >= len(o.list) {
		return "", false
	}
	return o.list[i+1], true
}

// Prev returns the step before s. ok is false for the first step and for
// steps outside the order.
func (o *Order) Prev(s Step) (Step, bool) {
	i, ok := o.index[s]
	if !ok || i == 0 {
		return "", false
	}
	return o.list[i-1], true
}

// HasReached reports whether progress p has reached step s, i.e. s is the
// current step or an earlier one. Reached steps may be re-viewed; later
// steps are gated off.
func (o *Order) HasReached(p Progress, s Step) bool {
	si, ok := o.index[s]
	if !ok {
		return false
	}
	ci, ok := o.index[p.CurrentStep]
	if !ok {
		return false
	}
	return ci >= si
}

// HasCompleted reports whether step s is behind the current step, or is the
// final step and the whole sequence is done.
func (o *Order) HasCompleted(p Progress, s Step) bool {
	si, ok := o.index[s]
	if !ok {
		return false
	}
	ci, ok := o.index[p.CurrentStep]
	if !ok {
		return false
	}
	if ci > si {
		return true
	}
	return ci == si && si == len(o.list)-1 && p.Completed
}

// Advance computes the progress value after completing justCompleted.
// CurrentStep only ever moves forward: completing a step that is behind the
// current one (an idempotent re-submission) returns the progress unchanged,
// as does completing a step the session has not reached. Completing the
// final step flips Completed.
func (o *Order) Advance(p Progress, justCompleted Step) Progress {
	ji, ok := o.index[justCompleted]
	if !ok {
		return p
	}
	ci, ok := o.index[p.CurrentStep]
	if !ok {
		return p
	}
	if ji != ci {
		return p
	}

	if next, ok := o.Next(justCompleted); ok {
		return Progress{CurrentStep: next, Completed: p.Completed}
	}
	return Progress{CurrentStep: justCompleted, Completed: true}
}
