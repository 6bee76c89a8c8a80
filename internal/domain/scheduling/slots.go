package scheduling

import (
	"fmt"
	"time"
)

const (
	// SlotCount is the number of half-hour slots in a clinic day.
	SlotCount = 24
	// SlotsPerShift is the size of every schedule's slot chain.
	SlotsPerShift = 12
)

// slotTable maps slot number n (1-based) to its clock time at index n-1.
// Other layers render slot grids from it; it must not change.
var slotTable = [SlotCount]string{
	"07:00", "07:30", "08:00", "08:30", "09:00", "09:30",
	"10:00", "10:30", "11:00", "11:30", "12:00", "12:30",
	"13:00", "13:30", "14:00", "14:30", "15:00", "15:30",
	"16:00", "16:30", "17:00", "17:30", "18:00", "18:30",
}

// SlotTableEntry is one row of the public slot table.
type SlotTableEntry struct {
	Number int    `json:"number"`
	Time   string `json:"time"`
	Shift  Shift  `json:"shift"`
}

func SlotTable() []SlotTableEntry {
	out := make([]SlotTableEntry, 0, SlotCount)
	for i, t := range slotTable {
		n := i + 1
		out = append(out, SlotTableEntry{Number: n, Time: t, Shift: ShiftOf(n)})
	}
	return out
}

// SlotTime returns the "HH:MM" start time of slot n.
func SlotTime(n int) (string, bool) {
	if n < 1 || n > SlotCount {
		return "", false
	}
	return slotTable[n-1], true
}

// SlotNumber resolves a clock time ("HH:MM" or "HH:MM:SS") to its slot
// number. Times that do not start a slot do not resolve.
func SlotNumber(clock string) (int, bool) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		if t, err = time.Parse("15:04:05", clock); err != nil || t.Second() != 0 {
			return 0, false
		}
	}
	key := t.Format("15:04")
	for i, s := range slotTable {
		if s == key {
			return i + 1, true
		}
	}
	return 0, false
}

// Shift is the half of the day a schedule covers.
type Shift int

const (
	ShiftMorning   Shift = 1
	ShiftAfternoon Shift = 2
)

func (s Shift) Valid() bool {
	return s == ShiftMorning || s == ShiftAfternoon
}

// Range returns the first and last slot numbers of the shift.
func (s Shift) Range() (first, last int) {
	switch s {
	case ShiftMorning:
		return 1, SlotsPerShift
	case ShiftAfternoon:
		return SlotsPerShift + 1, SlotCount
	}
	return 0, 0
}

func (s Shift) String() string {
	first, last := s.Range()
	if first == 0 {
		return fmt.Sprintf("Shift(%d)", int(s))
	}
	return fmt.Sprintf("%s-%s", slotTable[first-1], slotTable[last-1])
}

// ShiftOf returns the shift that slot n belongs to.
func ShiftOf(n int) Shift {
	if n > SlotsPerShift {
		return ShiftAfternoon
	}
	return ShiftMorning
}
