package observer_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cosim"
	"github.com/sarchlab/cosim/iocache"
	"github.com/sarchlab/cosim/observer"
)

// fakeSub exposes a single get-cache per type, enough to exercise the
// override manipulator without a full slave.Subsimulator.
type fakeSub struct {
	caches [4]*iocache.GetCache
}

func newFakeSub() *fakeSub {
	f := &fakeSub{}
	for i := range f.caches {
		f.caches[i] = iocache.NewGetCache(cosim.Type(i))
		f.caches[i].Expose(0)
	}
	return f
}

func (f *fakeSub) GetCache(typ cosim.Type) *iocache.GetCache { return f.caches[typ] }

var _ = Describe("OverrideManipulator", func() {
	It("applies a real override only at the next StepCommencing", func() {
		sub := newFakeSub()
		m := observer.NewOverrideManipulator()

		m.OverrideRealVariable(sub, 0, 7.5)
		Expect(sub.caches[cosim.Real].HasModifier(0)).To(BeFalse())

		m.StepCommencing(0)
		Expect(sub.caches[cosim.Real].HasModifier(0)).To(BeTrue())

		sub.caches[cosim.Real].RunModifiers(0)
		v, err := sub.caches[cosim.Real].Get(0)
		Expect(err).NotTo(HaveOccurred())
		real, _ := v.Real()
		Expect(real).To(Equal(7.5))
	})

	It("clears a modifier on reset", func() {
		sub := newFakeSub()
		m := observer.NewOverrideManipulator()

		m.OverrideBooleanVariable(sub, 0, true)
		m.StepCommencing(0)
		Expect(sub.caches[cosim.Boolean].HasModifier(0)).To(BeTrue())

		m.ResetVariable(sub, cosim.Boolean, 0)
		m.StepCommencing(0)
		Expect(sub.caches[cosim.Boolean].HasModifier(0)).To(BeFalse())
	})

	It("supports string and integer overrides for symmetry with real", func() {
		sub := newFakeSub()
		m := observer.NewOverrideManipulator()

		m.OverrideIntegerVariable(sub, 0, 42)
		m.OverrideStringVariable(sub, 0, "hello")
		m.StepCommencing(0)

		sub.caches[cosim.Integer].RunModifiers(0)
		sub.caches[cosim.String].RunModifiers(0)

		iv, _ := sub.caches[cosim.Integer].Get(0)
		i, _ := iv.Integer()
		Expect(i).To(Equal(int32(42)))

		sv, _ := sub.caches[cosim.String].Get(0)
		s, _ := sv.StringValue()
		Expect(s).To(Equal("hello"))
	})
})
