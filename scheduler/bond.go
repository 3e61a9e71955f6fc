package scheduler

import (
	"github.com/sarchlab/cosim"
	"github.com/sarchlab/cosim/cosimerr"
	"github.com/sarchlab/cosim/slave"
)

// PowerBond is a conservative (effort x flow) energy interface between two
// subsimulators, used by the adaptive scheduler to estimate a power
// residual. Each side's variable list is a flat sequence of real-valued
// references interpreted as consecutive (effort, flow) pairs; a side's
// list must therefore have even cardinality.
type PowerBond struct {
	SubA, SubB   int
	VarsA, VarsB []int
}

// NewPowerBond validates the even-cardinality invariant at registration
// time and returns InvalidSystemStructure otherwise.
func NewPowerBond(subA, subB int, varsA, varsB []int) (*PowerBond, error) {
	if len(varsA)%2 != 0 || len(varsB)%2 != 0 {
		return nil, &cosimerr.InvalidSystemStructure{
			Reason: "power bond variable lists must have even cardinality (effort, flow pairs)",
		}
	}
	if len(varsA) == 0 || len(varsB) == 0 {
		return nil, &cosimerr.InvalidSystemStructure{Reason: "power bond requires at least one effort/flow pair per side"}
	}
	return &PowerBond{SubA: subA, SubB: subB, VarsA: varsA, VarsB: varsB}, nil
}

// Power reads the current real values for both sides from their
// subsimulators' get-caches and returns power_a = sum(u*y) over side A,
// power_b likewise over side B.
func (b *PowerBond) Power(subs []*slave.Subsimulator) (powerA, powerB float64, err error) {
	powerA, err = sumPairs(subs[b.SubA], b.VarsA)
	if err != nil {
		return 0, 0, err
	}
	powerB, err = sumPairs(subs[b.SubB], b.VarsB)
	if err != nil {
		return 0, 0, err
	}
	return powerA, powerB, nil
}

func sumPairs(sub *slave.Subsimulator, refs []int) (float64, error) {
	cache := sub.GetCache(cosim.Real)
	var sum float64
	for i := 0; i+1 < len(refs); i += 2 {
		u, err := cache.Get(refs[i])
		if err != nil {
			return 0, err
		}
		y, err := cache.Get(refs[i+1])
		if err != nil {
			return 0, err
		}
		uv, _ := u.Real()
		yv, _ := y.Real()
		sum += uv * yv
	}
	return sum, nil
}
