package slave_test

import (
	"errors"

	"github.com/golang/mock/gomock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cosim"
	"github.com/sarchlab/cosim/cosimerr"
	"github.com/sarchlab/cosim/simtime"
	"github.com/sarchlab/cosim/slave"
)

var _ = Describe("Subsimulator", func() {
	var (
		ctrl      *gomock.Controller
		mockSlave *MockSlave
		desc      slave.ModelDescription
	)

	BeforeEach(func() {
		ctrl = gomock.NewController(GinkgoT())
		desc = slave.ModelDescription{
			Name: "fake",
			Variables: []cosim.VariableDescriptor{
				{Name: "in", Reference: 0, Type: cosim.Real, Causality: cosim.Input, Variability: cosim.Continuous},
				{Name: "local", Reference: 1, Type: cosim.Real, Causality: cosim.Local, Variability: cosim.Continuous},
				{Name: "out", Reference: 2, Type: cosim.Real, Causality: cosim.Output, Variability: cosim.Continuous},
				{Name: "gain", Reference: 0, Type: cosim.Integer, Causality: cosim.Parameter, Variability: cosim.Constant},
			},
		}
		mockSlave = NewMockSlave(ctrl)
		mockSlave.EXPECT().ModelDescription().Return(desc).AnyTimes()
	})

	Describe("lifecycle preconditions", func() {
		It("rejects StartSimulation before Setup", func() {
			sub := slave.NewSubsimulator(0, "m", mockSlave, 1)
			Expect(sub.State()).To(Equal(slave.Created))

			err := sub.StartSimulation()
			Expect(err).To(HaveOccurred())
			var invalid *cosimerr.InvalidState
			Expect(errors.As(err, &invalid)).To(BeTrue())
			Expect(sub.State()).To(Equal(slave.Created))
		})

		It("rejects DoStep before StartSimulation", func() {
			sub := slave.NewSubsimulator(0, "m", mockSlave, 1)
			mockSlave.EXPECT().Setup(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
			Expect(sub.Setup(0, nil, nil)).To(Succeed())

			_, err := sub.DoStep(0, simtime.Millisecond)
			Expect(err).To(HaveOccurred())
			Expect(sub.State()).To(Equal(slave.Initialisation))
		})

		It("advances Created -> Initialisation -> Simulation", func() {
			sub := slave.NewSubsimulator(0, "m", mockSlave, 1)
			mockSlave.EXPECT().Setup(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
			mockSlave.EXPECT().StartSimulation().Return(nil)

			Expect(sub.Setup(0, nil, nil)).To(Succeed())
			Expect(sub.State()).To(Equal(slave.Initialisation))
			Expect(sub.StartSimulation()).To(Succeed())
			Expect(sub.State()).To(Equal(slave.Simulation))
		})
	})

	Describe("DoStep", func() {
		var sub *slave.Subsimulator

		BeforeEach(func() {
			sub = slave.NewSubsimulator(0, "m", mockSlave, 1)
			mockSlave.EXPECT().Setup(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
			mockSlave.EXPECT().StartSimulation().Return(nil)
			Expect(sub.Setup(0, nil, nil)).To(Succeed())
			Expect(sub.StartSimulation()).To(Succeed())

			Expect(sub.ExposeForSetting(cosim.Real, 0, cosim.NewReal(0))).To(Succeed())
			Expect(sub.ExposeForGetting(cosim.Real, 2)).To(Succeed())
			Expect(sub.SetRealInitialValue(0, 3.5)).To(Succeed())
		})

		It("pushes pending sets, steps, and pulls outputs", func() {
			mockSlave.EXPECT().SetReal([]int{0}, []float64{3.5}).Return(nil)
			mockSlave.EXPECT().DoStep(simtime.TimePoint(0), simtime.Millisecond).Return(slave.Complete, nil)
			mockSlave.EXPECT().GetReal([]int{2}).Return([]float64{7.0}, nil)

			result, err := sub.DoStep(0, simtime.Millisecond)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(slave.Complete))
			Expect(sub.State()).To(Equal(slave.Simulation))

			v, err := sub.GetCache(cosim.Real).Get(2)
			Expect(err).NotTo(HaveOccurred())
			real, _ := v.Real()
			Expect(real).To(Equal(7.0))
		})

		It("transitions to Error when the slave step fails", func() {
			mockSlave.EXPECT().SetReal([]int{0}, []float64{3.5}).Return(nil)
			mockSlave.EXPECT().DoStep(gomock.Any(), gomock.Any()).Return(slave.Failed, nil)

			_, err := sub.DoStep(0, simtime.Millisecond)
			Expect(err).To(HaveOccurred())
			var modelErr *cosimerr.ModelError
			Expect(errors.As(err, &modelErr)).To(BeTrue())
			Expect(sub.State()).To(Equal(slave.Error))
		})

		It("transitions to Error when the underlying call returns an error", func() {
			mockSlave.EXPECT().SetReal([]int{0}, []float64{3.5}).Return(nil)
			mockSlave.EXPECT().DoStep(gomock.Any(), gomock.Any()).Return(slave.Failed, errors.New("solver diverged"))

			_, err := sub.DoStep(0, simtime.Millisecond)
			Expect(err).To(HaveOccurred())
			Expect(sub.State()).To(Equal(slave.Error))
		})
	})

	Describe("DoIteration", func() {
		It("excludes input-causality variables from the settling pass", func() {
			sub := slave.NewSubsimulator(0, "m", mockSlave, 1)
			mockSlave.EXPECT().Setup(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
			Expect(sub.Setup(0, nil, nil)).To(Succeed())

			Expect(sub.ExposeForSetting(cosim.Real, 0, cosim.NewReal(1))).To(Succeed())  // Input
			Expect(sub.ExposeForSetting(cosim.Real, 1, cosim.NewReal(2))).To(Succeed())  // Local
			Expect(sub.SetRealInitialValue(0, 9)).To(Succeed())
			Expect(sub.SetRealInitialValue(1, 4)).To(Succeed())

			mockSlave.EXPECT().SetReal([]int{1}, []float64{4}).Return(nil)

			Expect(sub.DoIteration()).To(Succeed())
			Expect(sub.State()).To(Equal(slave.Initialisation))
		})

		It("requires Initialisation", func() {
			sub := slave.NewSubsimulator(0, "m", mockSlave, 1)
			err := sub.DoIteration()
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ModifiedVariables", func() {
		It("reports sorted refs carrying an installed modifier", func() {
			sub := slave.NewSubsimulator(0, "m", mockSlave, 1)
			Expect(sub.ExposeForGetting(cosim.Real, 2)).To(Succeed())
			Expect(sub.ExposeForSetting(cosim.Real, 1, cosim.NewReal(0))).To(Succeed())
			Expect(sub.ExposeForSetting(cosim.Real, 0, cosim.NewReal(0))).To(Succeed())

			Expect(sub.GetCache(cosim.Real).SetModifier(2, func(v cosim.Value, _ simtime.Duration) cosim.Value { return v })).To(Succeed())
			Expect(sub.SetCache(cosim.Real).SetModifier(0, func(v cosim.Value, _ simtime.Duration) cosim.Value { return v })).To(Succeed())

			mods := sub.ModifiedVariables()
			Expect(mods).To(Equal([]slave.VariableRef{
				{Type: cosim.Real, Reference: 0},
				{Type: cosim.Real, Reference: 2},
			}))
		})
	})
})
