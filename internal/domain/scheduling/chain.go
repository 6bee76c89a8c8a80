package scheduling

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// SlotChain is the ordered run of a schedule's slots. Slot n sits at index
// n-first, so neighbours are found by index arithmetic.
type SlotChain struct {
	first int
	slots []*Slot
}

// NewSlotChain orders slots and checks they are one contiguous run inside a
// single shift of a single schedule.
func NewSlotChain(slots []*Slot) (*SlotChain, error) {
	if len(slots) == 0 {
		return &SlotChain{}, nil
	}
	ordered := make([]*Slot, len(slots))
	copy(ordered, slots)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Number < ordered[j].Number })

	head := ordered[0]
	for i, s := range ordered {
		if s.ScheduleID != head.ScheduleID {
			return nil, fmt.Errorf("slot %d belongs to schedule %s, expected %s", s.Number, s.ScheduleID, head.ScheduleID)
		}
		if s.Number != head.Number+i {
			return nil, fmt.Errorf("slot chain of schedule %s has a gap before slot %d", head.ScheduleID, s.Number)
		}
		if ShiftOf(s.Number) != ShiftOf(head.Number) {
			return nil, fmt.Errorf("slot chain of schedule %s crosses shifts at slot %d", head.ScheduleID, s.Number)
		}
	}
	return &SlotChain{first: head.Number, slots: ordered}, nil
}

// BuildChain materializes the free slot run of a new schedule.
func BuildChain(sched *Schedule) *SlotChain {
	first, last := sched.Shift.Range()
	slots := make([]*Slot, 0, last-first+1)
	for n := first; n <= last; n++ {
		clock, _ := SlotTime(n)
		slots = append(slots, &Slot{
			ID:         uuid.New(),
			ScheduleID: sched.ID,
			Date:       sched.Date,
			Number:     n,
			Time:       clock,
			Status:     SlotFree,
		})
	}
	return &SlotChain{first: first, slots: slots}
}

func (c *SlotChain) Len() int { return len(c.slots) }

// Slots returns the chain in ascending order.
func (c *SlotChain) Slots() []*Slot { return c.slots }

// Get returns slot n, or nil when n is outside the chain.
func (c *SlotChain) Get(n int) *Slot {
	i := n - c.first
	if i < 0 || i >= len(c.slots) {
		return nil
	}
	return c.slots[i]
}

func (c *SlotChain) Previous(n int) *Slot { return c.Get(n - 1) }

func (c *SlotChain) Next(n int) *Slot {
	if c.Get(n) == nil {
		return nil
	}
	return c.Get(n + 1)
}

func (c *SlotChain) ByID(id uuid.UUID) *Slot {
	for _, s := range c.slots {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// FreeRun walks forward from slot start while slots are free and returns at
// most want of them. It returns nil when start is missing or taken.
func (c *SlotChain) FreeRun(start, want int) []*Slot {
	s := c.Get(start)
	if s == nil || !s.Free() {
		return nil
	}
	run := []*Slot{s}
	for len(run) < want {
		s = c.Next(s.Number)
		if s == nil || !s.Free() {
			break
		}
		run = append(run, s)
	}
	return run
}

// Run returns up to count slots starting at slot start regardless of status.
func (c *SlotChain) Run(start, count int) []*Slot {
	var run []*Slot
	for s := c.Get(start); s != nil && len(run) < count; s = c.Next(s.Number) {
		run = append(run, s)
	}
	return run
}

// Free returns the free slots in order.
func (c *SlotChain) Free() []*Slot {
	out := make([]*Slot, 0, len(c.slots))
	for _, s := range c.slots {
		if s.Free() {
			out = append(out, s)
		}
	}
	return out
}

func slotIDs(slots []*Slot) []uuid.UUID {
	ids := make([]uuid.UUID, len(slots))
	for i, s := range slots {
		ids[i] = s.ID
	}
	return ids
}
