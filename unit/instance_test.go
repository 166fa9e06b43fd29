package unit

import (
	"testing"

	"github.com/jdginn/controlcore/unitmodel"
	"github.com/jdginn/controlcore/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceSharesParameterArrayAcrossUnits(t *testing.T) {
	inst := NewInstance()
	require.NotEmpty(t, inst.ID)

	u1 := New("a", newFakeSink(), unitmodel.DefaultUnitSettings())
	u2 := New("b", newFakeSink(), unitmodel.DefaultUnitSettings())
	inst.AddUnit(u1)
	inst.AddUnit(u2)

	inst.SetParameter(3, value.UnitValue(0.42))

	got1, ok1 := u1.Proc.Params[3], true
	got2, ok2 := u2.Proc.Params[3], true
	assert.True(t, ok1)
	assert.True(t, ok2)
	assert.InDelta(t, 0.42, float64(got1), 1e-9)
	assert.InDelta(t, 0.42, float64(got2), 1e-9)
}

func TestInstanceParameterOutOfRangeIsSafe(t *testing.T) {
	inst := NewInstance()
	_, ok := inst.Parameter(-1)
	assert.False(t, ok)
	_, ok = inst.Parameter(paramCount + 1)
	assert.False(t, ok)
}
