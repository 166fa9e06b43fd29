package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewManagerStartsControllingAndEnabled(t *testing.T) {
	m := NewManager()
	assert.Equal(t, Controlling, m.State().Kind)
	assert.True(t, m.ControlGloballyEnabled())
	assert.True(t, m.FeedbackGloballyEnabled())
}

func TestSetStateFiresCallbacksInOrder(t *testing.T) {
	m := NewManager()
	var seen []Kind
	m.OnTransition(func(prev, next State) { seen = append(seen, next.Kind) })
	m.OnTransition(func(prev, next State) { seen = append(seen, next.Kind) })

	m.SetState(LearningSourceState(true, "1"))

	assert.Equal(t, []Kind{LearningSource, LearningSource}, seen)
	assert.True(t, m.IsLearning())
}

func TestDisabledOverridesGlobalEnables(t *testing.T) {
	m := NewManager()
	m.SetState(DisabledState)
	assert.False(t, m.ControlGloballyEnabled())
	assert.False(t, m.FeedbackGloballyEnabled())
}

func TestGlobalEnableFlagsIndependentOfState(t *testing.T) {
	m := NewManager()
	m.SetControlGloballyEnabled(false)
	assert.False(t, m.ControlGloballyEnabled())
	assert.True(t, m.FeedbackGloballyEnabled())
}
