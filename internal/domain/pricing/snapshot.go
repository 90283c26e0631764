package pricing

import (
	"errors"
	"fmt"

	"pricewatch/internal/domain/shared/daterange"
)

const (
	// ShortStayHorizon is the number of consecutive check-in days evaluated for short stays.
	ShortStayHorizon = 7
	// SlotCount is the number of windows in a generated snapshot.
	SlotCount = 3*ShortStayHorizon + 2
)

var (
	ShortStayNights = []int{1, 2, 3}
	LongStayNights  = []int{14, 30}

	ErrUnknownSlot = errors.New("pricing: slot not present in snapshot")
)

// Window is one check-in/check-out pair and the lowest total observed for it.
type Window struct {
	CheckIn  daterange.Date `json:"checkin"`
	CheckOut daterange.Date `json:"checkout"`
	Anchor   daterange.Date `json:"date"`
	Price    Price          `json:"price"`
}

func newWindow(checkIn daterange.Date, nights int) Window {
	stay := daterange.ForNights(checkIn, nights)
	return Window{CheckIn: stay.CheckIn, CheckOut: stay.CheckOut, Anchor: checkIn}
}

func (w Window) Range() daterange.DateRange {
	return daterange.DateRange{CheckIn: w.CheckIn, CheckOut: w.CheckOut}
}

func (w Window) Nights() int { return w.Range().Nights() }

func (w Window) IsZero() bool { return w.CheckIn.IsZero() && w.CheckOut.IsZero() }

// Snapshot holds every window of a search for one refresh cycle.
type Snapshot struct {
	OneNight       []Window `json:"oneNight"`
	TwoNights      []Window `json:"twoNights"`
	ThreeNights    []Window `json:"threeNights"`
	FourteenNights Window   `json:"fourteenNights"`
	ThirtyNights   Window   `json:"thirtyNights"`
}

// Slot addresses a window inside a snapshot. Index is only meaningful for short stays.
type Slot struct {
	Nights int
	Index  int
}

func (s Slot) String() string {
	return fmt.Sprintf("%dN[%d]", s.Nights, s.Index)
}

// Generate derives the rolling windows for anchor. Every price is Unknown.
func Generate(anchor daterange.Date) Snapshot {
	short := func(nights int) []Window {
		out := make([]Window, 0, ShortStayHorizon)
		for i := 0; i < ShortStayHorizon; i++ {
			out = append(out, newWindow(anchor.AddDays(i), nights))
		}
		return out
	}
	return Snapshot{
		OneNight:       short(1),
		TwoNights:      short(2),
		ThreeNights:    short(3),
		FourteenNights: newWindow(anchor, 14),
		ThirtyNights:   newWindow(anchor, 30),
	}
}

func (s Snapshot) Empty() bool {
	return len(s.OneNight) == 0 && len(s.TwoNights) == 0 && len(s.ThreeNights) == 0 &&
		s.FourteenNights.IsZero() && s.ThirtyNights.IsZero()
}

// Slots lists the windows present in fetch order: 1N, 2N, 3N, then 14N and 30N.
func (s Snapshot) Slots() []Slot {
	slots := make([]Slot, 0, SlotCount)
	for _, nights := range ShortStayNights {
		for i := range s.short(nights) {
			slots = append(slots, Slot{Nights: nights, Index: i})
		}
	}
	if !s.FourteenNights.IsZero() {
		slots = append(slots, Slot{Nights: 14})
	}
	if !s.ThirtyNights.IsZero() {
		slots = append(slots, Slot{Nights: 30})
	}
	return slots
}

func (s Snapshot) Window(slot Slot) (Window, bool) {
	switch slot.Nights {
	case 14:
		return s.FourteenNights, !s.FourteenNights.IsZero()
	case 30:
		return s.ThirtyNights, !s.ThirtyNights.IsZero()
	}
	list := s.short(slot.Nights)
	if slot.Index < 0 || slot.Index >= len(list) {
		return Window{}, false
	}
	return list[slot.Index], true
}

// Set stores price for slot. The receiver must own its slices (see Clone).
func (s *Snapshot) Set(slot Slot, price Price) error {
	switch slot.Nights {
	case 14:
		if s.FourteenNights.IsZero() {
			return fmt.Errorf("%w: %s", ErrUnknownSlot, slot)
		}
		s.FourteenNights.Price = price
		return nil
	case 30:
		if s.ThirtyNights.IsZero() {
			return fmt.Errorf("%w: %s", ErrUnknownSlot, slot)
		}
		s.ThirtyNights.Price = price
		return nil
	}
	list := s.short(slot.Nights)
	if slot.Index < 0 || slot.Index >= len(list) {
		return fmt.Errorf("%w: %s", ErrUnknownSlot, slot)
	}
	list[slot.Index].Price = price
	return nil
}

// Known counts windows carrying a price.
func (s Snapshot) Known() int {
	n := 0
	for _, slot := range s.Slots() {
		if w, _ := s.Window(slot); w.Price.IsKnown() {
			n++
		}
	}
	return n
}

// Reset returns a copy with every price set to Unknown.
func (s Snapshot) Reset() Snapshot {
	out := s.Clone()
	for _, list := range [][]Window{out.OneNight, out.TwoNights, out.ThreeNights} {
		for i := range list {
			list[i].Price = Unknown()
		}
	}
	out.FourteenNights.Price = Unknown()
	out.ThirtyNights.Price = Unknown()
	return out
}

func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		OneNight:       cloneWindows(s.OneNight),
		TwoNights:      cloneWindows(s.TwoNights),
		ThreeNights:    cloneWindows(s.ThreeNights),
		FourteenNights: s.FourteenNights,
		ThirtyNights:   s.ThirtyNights,
	}
}

func (s Snapshot) short(nights int) []Window {
	switch nights {
	case 1:
		return s.OneNight
	case 2:
		return s.TwoNights
	case 3:
		return s.ThreeNights
	default:
		return nil
	}
}

func cloneWindows(in []Window) []Window {
	if in == nil {
		return nil
	}
	out := make([]Window, len(in))
	copy(out, in)
	return out
}
