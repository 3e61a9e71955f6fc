package iocache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cosim"
	"github.com/sarchlab/cosim/iocache"
	"github.com/sarchlab/cosim/simtime"
)

var _ = Describe("GetCache", func() {
	It("fails NotExposed for an un-exposed reference", func() {
		c := iocache.NewGetCache(cosim.Real)
		_, err := c.Get(0)
		Expect(err).To(HaveOccurred())
	})

	It("copies original through when no modifier is installed", func() {
		c := iocache.NewGetCache(cosim.Real)
		c.Expose(1)
		Expect(c.SetOriginal(1, cosim.NewReal(3.5))).To(Succeed())
		c.RunModifiers(0)
		v, err := c.Get(1)
		Expect(err).NotTo(HaveOccurred())
		r, _ := v.Real()
		Expect(r).To(Equal(3.5))
	})

	It("applies an installed modifier", func() {
		c := iocache.NewGetCache(cosim.Real)
		c.Expose(1)
		Expect(c.SetModifier(1, func(orig cosim.Value, dt simtime.Duration) cosim.Value {
			r, _ := orig.Real()
			return cosim.NewReal(r + 1)
		})).To(Succeed())
		Expect(c.SetOriginal(1, cosim.NewReal(3.5))).To(Succeed())
		c.RunModifiers(0)
		v, _ := c.Get(1)
		r, _ := v.Real()
		Expect(r).To(Equal(4.5))
	})
})

var _ = Describe("SetCache", func() {
	It("round-trips set_value through modify_and_get with no modifier", func() {
		c := iocache.NewSetCache(cosim.Real)
		c.Expose(1, cosim.NewReal(0))
		Expect(c.SetValue(1, cosim.NewReal(2.0))).To(Succeed())

		refs, values := c.ModifyAndGet(0, nil)
		Expect(refs).To(Equal([]int{1}))
		r, _ := values[0].Real()
		Expect(r).To(Equal(2.0))
	})

	It("applies the modifier when one is installed", func() {
		c := iocache.NewSetCache(cosim.Real)
		c.Expose(1, cosim.NewReal(0))
		Expect(c.SetModifier(1, func(orig cosim.Value, dt simtime.Duration) cosim.Value {
			r, _ := orig.Real()
			return cosim.NewReal(r * 2)
		})).To(Succeed())
		Expect(c.SetValue(1, cosim.NewReal(2.0))).To(Succeed())

		_, values := c.ModifyAndGet(0, nil)
		r, _ := values[0].Real()
		Expect(r).To(Equal(4.0))
	})

	It("is idempotent across repeated ModifyAndGet calls within a tick", func() {
		calls := 0
		c := iocache.NewSetCache(cosim.Real)
		c.Expose(1, cosim.NewReal(0))
		Expect(c.SetModifier(1, func(orig cosim.Value, dt simtime.Duration) cosim.Value {
			calls++
			r, _ := orig.Real()
			return cosim.NewReal(r + 1)
		})).To(Succeed())
		Expect(c.SetValue(1, cosim.NewReal(1.0))).To(Succeed())

		_, v1 := c.ModifyAndGet(0, nil)
		_, v2 := c.ModifyAndGet(0, nil)
		Expect(v1).To(Equal(v2))
		Expect(calls).To(Equal(1))
	})

	It("rejects SetValue once modifiers have run this tick", func() {
		c := iocache.NewSetCache(cosim.Real)
		c.Expose(1, cosim.NewReal(0))
		Expect(c.SetValue(1, cosim.NewReal(1.0))).To(Succeed())
		c.ModifyAndGet(0, nil)

		err := c.SetValue(1, cosim.NewReal(2.0))
		Expect(err).To(HaveOccurred())
	})

	It("clears the pending buffer and flag on Reset", func() {
		c := iocache.NewSetCache(cosim.Real)
		c.Expose(1, cosim.NewReal(0))
		Expect(c.SetValue(1, cosim.NewReal(1.0))).To(Succeed())
		c.ModifyAndGet(0, nil)
		c.Reset()

		refs, _ := c.ModifyAndGet(0, nil)
		Expect(refs).To(BeEmpty())
	})

	It("filters refs via the optional predicate", func() {
		c := iocache.NewSetCache(cosim.Real)
		c.Expose(1, cosim.NewReal(0))
		c.Expose(2, cosim.NewReal(0))
		Expect(c.SetValue(1, cosim.NewReal(1.0))).To(Succeed())
		Expect(c.SetValue(2, cosim.NewReal(2.0))).To(Succeed())

		refs, _ := c.ModifyAndGet(0, func(ref int) bool { return ref != 2 })
		Expect(refs).To(Equal([]int{1}))
	})
})
