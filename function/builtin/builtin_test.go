package builtin_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cosim"
	"github.com/sarchlab/cosim/function"
	"github.com/sarchlab/cosim/function/builtin"
)

var _ = Describe("LinearTransform", func() {
	It("computes out = in*factor + offset", func() {
		f := builtin.NewLinearTransform(3, 5)
		Expect(f.SetReal(function.IORef{Group: 0}, 10)).To(Succeed())
		Expect(f.Calculate()).To(Succeed())
		out, err := f.GetReal(function.IORef{Group: 1})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(53.0))
	})

	It("handles negative input", func() {
		f := builtin.NewLinearTransform(3, 5)
		Expect(f.SetReal(function.IORef{Group: 0}, -1)).To(Succeed())
		Expect(f.Calculate()).To(Succeed())
		out, err := f.GetReal(function.IORef{Group: 1})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(-2.0))
	})
})

var _ = Describe("VectorSum", func() {
	It("sums three 2-vectors elementwise", func() {
		f, err := builtin.NewVectorSum(3, 2, cosim.Integer)
		Expect(err).NotTo(HaveOccurred())

		inputs := [][2]int32{{1, 2}, {3, 5}, {7, 11}}
		for i, vec := range inputs {
			Expect(f.SetInteger(function.IORef{Group: 0, GroupInstance: i, IOInstance: 0}, vec[0])).To(Succeed())
			Expect(f.SetInteger(function.IORef{Group: 0, GroupInstance: i, IOInstance: 1}, vec[1])).To(Succeed())
		}
		Expect(f.Calculate()).To(Succeed())

		a, err := f.GetInteger(function.IORef{Group: 1, IOInstance: 0})
		Expect(err).NotTo(HaveOccurred())
		Expect(a).To(Equal(int32(11)))

		b, err := f.GetInteger(function.IORef{Group: 1, IOInstance: 1})
		Expect(err).NotTo(HaveOccurred())
		Expect(b).To(Equal(int32(18)))
	})

	It("rejects string operands at construction", func() {
		_, err := builtin.NewVectorSum(2, 1, cosim.String)
		Expect(err).To(HaveOccurred())
	})

	It("rejects a non-positive input count", func() {
		_, err := builtin.NewVectorSum(0, 1, cosim.Integer)
		Expect(err).To(HaveOccurred())
	})
})
