package steps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrder_RejectsEmptyAndDuplicates(t *testing.T) {
	_, err := NewOrder()
	assert.Error(t, err)

	_, err = NewOrder(Prequalification, DriveTest, Prequalification)
	assert.Error(t, err)
}

func TestOrder_NextPrevEdges(t *testing.T) {
	o := DefaultOrder()

	next, ok := o.Next(Prequalification)
	require.True(t, ok)
	assert.Equal(t, ApplicationPage1, next)

	_, ok = o.Next(FlatbedTraining)
	assert.False(t, ok, "next of the last step must not exist")

	prev, ok := o.Prev(ApplicationPage1)
	require.True(t, ok)
	assert.Equal(t, Prequalification, prev)

	_, ok = o.Prev(Prequalification)
	assert.False(t, ok, "prev of the first step must not exist")

	_, ok = o.Next("bogus")
	assert.False(t, ok)
}

func TestHasReached(t *testing.T) {
	o := DefaultOrder()
	p := Progress{CurrentStep: LicenseUpload}

	assert.True(t, o.HasReached(p, Prequalification))
	assert.True(t, o.HasReached(p, LicenseUpload))
	assert.False(t, o.HasReached(p, DriveTest))
	assert.False(t, o.HasReached(p, "bogus"))
}

// Advancing progress never makes a previously-true HasReached become false.
func TestHasReached_MonotonicUnderAdvance(t *testing.T) {
	o := DefaultOrder()

	p := Progress{CurrentStep: o.First()}
	for {
		reachedBefore := make(map[Step]bool)
		for _, s := range o.Steps() {
			reachedBefore[s] = o.HasReached(p, s)
		}

		next := o.Advance(p, p.CurrentStep)
		for _, s := range o.Steps() {
			if reachedBefore[s] {
				assert.True(t, o.HasReached(next, s),
					"advance must not revoke reached step %q", s)
			}
		}

		if next == p {
			break
		}
		p = next
	}
	assert.True(t, p.Completed)
}

func TestHasCompleted(t *testing.T) {
	o := DefaultOrder()

	p := Progress{CurrentStep: DriveTest}
	assert.True(t, o.HasCompleted(p, PoliciesConsents))
	assert.False(t, o.HasCompleted(p, DriveTest))
	assert.False(t, o.HasCompleted(p, FlatbedTraining))

	done := Progress{CurrentStep: FlatbedTraining, Completed: true}
	assert.True(t, o.HasCompleted(done, FlatbedTraining))

	last := Progress{CurrentStep: FlatbedTraining, Completed: false}
	assert.False(t, o.HasCompleted(last, FlatbedTraining))
}

func TestAdvance_MovesForwardOnly(t *testing.T) {
	o := DefaultOrder()

	p := Progress{CurrentStep: EmploymentHistory}

	got := o.Advance(p, EmploymentHistory)
	assert.Equal(t, LicenseUpload, got.CurrentStep)
	assert.False(t, got.Completed)

	// re-submitting an already-completed step must not regress or error
	again := o.Advance(got, EmploymentHistory)
	assert.Equal(t, got, again)

	// completing a step the session has not reached is a no-op
	skipped := o.Advance(p, DriveTest)
	assert.Equal(t, p, skipped)

	// unknown step is a no-op
	assert.Equal(t, p, o.Advance(p, "bogus"))
}

func TestAdvance_Idempotent(t *testing.T) {
	o := DefaultOrder()
	p := Progress{CurrentStep: PoliciesConsents}

	once := o.Advance(p, PoliciesConsents)
	twice := o.Advance(once, PoliciesConsents)
	assert.Equal(t, once, twice)
}

func TestAdvance_FinalStepFlipsCompleted(t *testing.T) {
	o := DefaultOrder()
	p := Progress{CurrentStep: FlatbedTraining}

	got := o.Advance(p, FlatbedTraining)
	assert.Equal(t, FlatbedTraining, got.CurrentStep)
	assert.True(t, got.Completed)

	// advancing a completed session changes nothing
	assert.Equal(t, got, o.Advance(got, FlatbedTraining))
}
