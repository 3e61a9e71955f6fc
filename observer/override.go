package observer

import (
	"github.com/sarchlab/cosim"
	"github.com/sarchlab/cosim/iocache"
)

// Subsimulator is the slice of slave.Subsimulator's surface the typed
// override helpers need: a way to reach the get-cache for a given type.
type Subsimulator interface {
	GetCache(typ cosim.Type) *iocache.GetCache
}

// OverrideRealVariable schedules sub's real ref to report value constantly,
// starting at the next StepCommencing.
func (m *OverrideManipulator) OverrideRealVariable(sub Subsimulator, ref int, value float64) {
	m.Override(sub.GetCache(cosim.Real), ref, Constant(cosim.NewReal(value)))
}

// OverrideIntegerVariable schedules sub's integer ref to report value
// constantly, starting at the next StepCommencing.
func (m *OverrideManipulator) OverrideIntegerVariable(sub Subsimulator, ref int, value int32) {
	m.Override(sub.GetCache(cosim.Integer), ref, Constant(cosim.NewInteger(value)))
}

// OverrideBooleanVariable schedules sub's boolean ref to report value
// constantly, starting at the next StepCommencing.
func (m *OverrideManipulator) OverrideBooleanVariable(sub Subsimulator, ref int, value bool) {
	m.Override(sub.GetCache(cosim.Boolean), ref, Constant(cosim.NewBoolean(value)))
}

// OverrideStringVariable schedules sub's string ref to report value
// constantly, starting at the next StepCommencing.
func (m *OverrideManipulator) OverrideStringVariable(sub Subsimulator, ref int, value string) {
	m.Override(sub.GetCache(cosim.String), ref, Constant(cosim.NewString(value)))
}

// ResetVariable schedules sub's ref of the given type to drop its installed
// modifier, starting at the next StepCommencing.
func (m *OverrideManipulator) ResetVariable(sub Subsimulator, typ cosim.Type, ref int) {
	m.Reset(sub.GetCache(typ), ref)
}
