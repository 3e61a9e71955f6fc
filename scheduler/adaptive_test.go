package scheduler_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cosim/scheduler"
	"github.com/sarchlab/cosim/simtime"
)

var _ = Describe("AdaptiveScheduler", func() {
	var (
		sched *scheduler.AdaptiveScheduler
		bond  *scheduler.PowerBond
	)

	BeforeEach(func() {
		var err error
		bond, err = scheduler.NewPowerBond(0, 1, []int{10, 11}, []int{12, 13})
		Expect(err).NotTo(HaveOccurred())
	})

	newScheduler := func(params scheduler.AdaptiveParams) *scheduler.AdaptiveScheduler {
		s := scheduler.NewAdaptiveScheduler(params, bond, 0)
		s.SetHorizon(0, nil)
		return s
	}

	Describe("construction", func() {
		It("panics when MinStepSize is not positive", func() {
			Expect(func() {
				newScheduler(scheduler.AdaptiveParams{
					StepSize: simtime.Second, MaxStepSize: simtime.Second, MinStepSize: 0,
				})
			}).To(Panic())
		})

		It("panics when the bounds are out of order", func() {
			Expect(func() {
				newScheduler(scheduler.AdaptiveParams{
					StepSize: 2 * simtime.Second, MaxStepSize: simtime.Second, MinStepSize: simtime.Millisecond,
				})
			}).To(Panic())
		})
	})

	Describe("step-size recompute", func() {
		BeforeEach(func() {
			sched = newScheduler(scheduler.AdaptiveParams{
				SafetyFactor:  0.9,
				StepSize:      simtime.Second,
				MinStepSize:   simtime.Millisecond,
				MaxStepSize:   10 * simtime.Second,
				MinChangeRate: 0.1,
				MaxChangeRate: 5.0,
				AbsTolerance:  1e-6,
				RelTolerance:  1e-3,
				PGain:         0.3,
				IGain:         0.7,
			})
		})

		It("keeps the step size unchanged while the bond is balanced", func() {
			subA, csA := newCountingSubsimulator(0, "a", 0, 1)
			subB, csB := newCountingSubsimulator(1, "b", 0, 1)
			exposeExtraReal(subA, csA, 10, 2.0)
			exposeExtraReal(subA, csA, 11, 3.0)
			exposeExtraReal(subB, csB, 12, 2.0)
			exposeExtraReal(subB, csB, 13, 3.0)

			sched.AddSubsimulator(subA)
			sched.AddSubsimulator(subB)

			Expect(sched.Initialize()).To(Succeed())

			before := sched.StepSize()
			_, _, err := sched.DoStep(0)
			Expect(err).NotTo(HaveOccurred())

			Expect(sched.StepSize()).To(Equal(before))
		})

		It("never proposes a step size outside [MinStepSize, MaxStepSize]", func() {
			subA, csA := newCountingSubsimulator(0, "a", 0, 1)
			subB, csB := newCountingSubsimulator(1, "b", 0, 1)
			exposeExtraReal(subA, csA, 10, 1000.0)
			exposeExtraReal(subA, csA, 11, 1000.0)
			exposeExtraReal(subB, csB, 12, 0.0)
			exposeExtraReal(subB, csB, 13, 0.0)

			sched.AddSubsimulator(subA)
			sched.AddSubsimulator(subB)

			Expect(sched.Initialize()).To(Succeed())

			for tick := 0; tick < 5; tick++ {
				_, _, err := sched.DoStep(simtime.TimePoint(tick) * simtime.Second)
				Expect(err).NotTo(HaveOccurred())
				Expect(sched.StepSize()).To(BeNumerically(">=", sched.MinStepSize()))
				Expect(sched.StepSize()).To(BeNumerically("<=", sched.MaxStepSize()))
			}
		})
	})
})
