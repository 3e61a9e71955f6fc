package graph_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cosim"
	"github.com/sarchlab/cosim/function"
	"github.com/sarchlab/cosim/graph"
)

func subsimPort(index int, typ cosim.Type, ref int) graph.PortRef {
	return graph.PortRef{Kind: graph.SubsimEndpoint, Index: index, Type: typ, Reference: ref}
}

func functionPort(index int, typ cosim.Type, io function.IORef) graph.PortRef {
	return graph.PortRef{Kind: graph.FunctionEndpoint, Index: index, Type: typ, IO: io}
}

var _ = Describe("Graph", func() {
	It("connects compatible types and rejects a second incoming edge", func() {
		g := graph.New()
		a := subsimPort(0, cosim.Real, 1)
		b := subsimPort(1, cosim.Real, 2)
		c := subsimPort(2, cosim.Real, 3)

		_, err := g.Connect(graph.SubsimToSubsim, a, b)
		Expect(err).NotTo(HaveOccurred())

		_, err = g.Connect(graph.SubsimToSubsim, c, b)
		Expect(err).To(HaveOccurred())

		Expect(g.OutgoingEdges(a)).To(HaveLen(1))
	})

	It("rejects mismatched types", func() {
		g := graph.New()
		_, err := g.Connect(graph.SubsimToSubsim, subsimPort(0, cosim.Real, 1), subsimPort(1, cosim.Integer, 2))
		Expect(err).To(HaveOccurred())
	})

	It("rejects enumeration edges outright", func() {
		g := graph.New()
		_, err := g.Connect(graph.SubsimToSubsim, subsimPort(0, cosim.Enumeration, 1), subsimPort(1, cosim.Enumeration, 2))
		Expect(err).To(HaveOccurred())
	})

	It("rejects string edges that are not subsim-to-subsim", func() {
		g := graph.New()
		_, err := g.Connect(graph.SubsimToFunction, subsimPort(0, cosim.String, 1), functionPort(0, cosim.String, function.IORef{}))
		Expect(err).To(HaveOccurred())
	})

	It("allows string edges between subsimulators", func() {
		g := graph.New()
		_, err := g.Connect(graph.SubsimToSubsim, subsimPort(0, cosim.String, 1), subsimPort(1, cosim.String, 2))
		Expect(err).NotTo(HaveOccurred())
	})

	It("disconnects and frees the destination slot", func() {
		g := graph.New()
		a := subsimPort(0, cosim.Real, 1)
		b := subsimPort(1, cosim.Real, 2)
		_, err := g.Connect(graph.SubsimToSubsim, a, b)
		Expect(err).NotTo(HaveOccurred())

		g.Disconnect(b)
		Expect(g.HasIncoming(b)).To(BeFalse())
		Expect(g.OutgoingEdges(a)).To(BeEmpty())

		_, err = g.Connect(graph.SubsimToSubsim, a, b)
		Expect(err).NotTo(HaveOccurred())
	})

	DescribeTable("ShouldTransfer fires on lcm boundaries",
		func(tick, srcDF, dstDF int, expect bool) {
			Expect(graph.ShouldTransfer(tick, srcDF, dstDF)).To(Equal(expect))
		},
		Entry("tick 0 always fires", 0, 2, 3, true),
		Entry("tick 6 fires for df 2 and 3", 6, 2, 3, true),
		Entry("tick 4 does not fire for df 2 and 3", 4, 2, 3, false),
		Entry("tick 2 fires for equal df 2", 2, 2, 2, true),
	)

	It("computes a function's decimation factor as the lcm of its subsim consumers", func() {
		g := graph.New()
		fn := functionPort(0, cosim.Real, function.IORef{Group: 1})
		s1 := subsimPort(1, cosim.Real, 0)
		s2 := subsimPort(2, cosim.Real, 0)

		dfs := map[int]int{1: 2, 2: 3}
		Expect(graph.FunctionDecimationFactor(g, 0, func(i int) int { return dfs[i] })).To(Equal(1))

		_, err := g.Connect(graph.FunctionToSubsim, fn, s1)
		Expect(err).NotTo(HaveOccurred())
		Expect(graph.FunctionDecimationFactor(g, 0, func(i int) int { return dfs[i] })).To(Equal(2))

		_, err = g.Connect(graph.FunctionToSubsim, functionPort(0, cosim.Real, function.IORef{Group: 1, IOInstance: 1}), s2)
		Expect(err).NotTo(HaveOccurred())
		Expect(graph.FunctionDecimationFactor(g, 0, func(i int) int { return dfs[i] })).To(Equal(6))
	})
})
