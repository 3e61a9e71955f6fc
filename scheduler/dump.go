package scheduler

import (
	"github.com/jedib0t/go-pretty/v6/table"
)

// DumpState renders a human-readable snapshot of every registered
// subsimulator's lifecycle state, decimation factor, and the tick counter,
// in the same spirit as the teacher's own state table dump.
func (b *base) DumpState() string {
	t := table.NewWriter()
	t.SetTitle("Scheduler State")
	t.AppendHeader(table.Row{"Index", "Name", "State", "Decimation Factor"})
	for i, sub := range b.subs {
		t.AppendRow(table.Row{i, sub.Name, sub.State().String(), sub.DecimationFactor()})
	}
	t.AppendSeparator()
	t.AppendFooter(table.Row{"", "", "Step counter", b.stepCounter})
	return t.Render()
}

// DumpState renders s's scheduler state table.
func (s *FixedStepScheduler) DumpState() string { return s.base.DumpState() }

// DumpState renders s's scheduler state table, including the current
// adaptive step size.
func (s *AdaptiveScheduler) DumpState() string {
	return s.base.DumpState() + "\ncurrent step size (ns): " + itoa64(int64(s.stepSize))
}

func itoa64(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
