package unit

import (
	"sync"

	"github.com/google/uuid"

	"github.com/jdginn/controlcore/value"
)

// paramCount bounds the shared parameter array every unit in an instance
// reads from. Large enough for any realistic mapping set;
// fixed-size so the backing array can be shared by reference across units
// without ever needing to grow.
const paramCount = 128

// Instance is a named group of units sharing one parameter array — the
// scope within which ActivationParameter conditions are indexed.
type Instance struct {
	ID string

	mu     sync.RWMutex
	units  map[string]*Unit
	params []value.UnitValue
}

// NewInstance builds an empty Instance with a fresh InstanceId.
func NewInstance() *Instance {
	return &Instance{
		ID:     uuid.NewString(),
		units:  make(map[string]*Unit),
		params: make([]value.UnitValue, paramCount),
	}
}

// AddUnit registers a unit and binds its main processor's parameter slice to
// this instance's shared array.
func (i *Instance) AddUnit(u *Unit) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.units[u.Name] = u
	u.Proc.Params = i.params
}

// Unit looks up a registered unit by name.
func (i *Instance) Unit(name string) (*Unit, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	u, ok := i.units[name]
	return u, ok
}

// Units returns every registered unit, in no particular order.
func (i *Instance) Units() []*Unit {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]*Unit, 0, len(i.units))
	for _, u := range i.units {
		out = append(out, u)
	}
	return out
}

// SetParameter updates one slot of the shared parameter array, visible to
// every unit's activation evaluation on their next sweep.
func (i *Instance) SetParameter(index int, v value.UnitValue) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if index < 0 || index >= len(i.params) {
		return
	}
	i.params[index] = v
}

// Parameter reads one slot of the shared parameter array.
func (i *Instance) Parameter(index int) (value.UnitValue, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if index < 0 || index >= len(i.params) {
		return 0, false
	}
	return i.params[index], true
}
