package models

import (
	"fmt"
	"time"
)

// AvailabilityDate is the calendar document for a single day. Its document ID
// equals Date.
type AvailabilityDate struct {
	Date        string     `json:"date" firestore:"date" bson:"date"`
	IsAvailable bool       `json:"isAvailable" firestore:"isAvailable" bson:"isAvailable"`
	Slots       []TimeSlot `json:"slots" firestore:"slots" bson:"slots"`
	UpdatedAt   time.Time  `json:"updatedAt" firestore:"updatedAt" bson:"updatedAt"`
}

// TimeSlot is a single bookable time inside a calendar day.
type TimeSlot struct {
	Time        string `json:"time" firestore:"time" bson:"time"`
	IsAvailable bool   `json:"isAvailable" firestore:"isAvailable" bson:"isAvailable"`
	BookedBy    string `json:"bookedBy,omitempty" firestore:"bookedBy,omitempty" bson:"bookedBy,omitempty"`
}

// FindSlot returns the index of the first slot with the given time or -1.
func (d *AvailabilityDate) FindSlot(slotTime string) int {
	if d == nil {
		return -1
	}
	for i := range d.Slots {
		if d.Slots[i].Time == slotTime {
			return i
		}
	}
	return -1
}

// SlotFree reports whether slotTime can still be booked on this day. A nil day
// has no explicit record and is treated as free.
func (d *AvailabilityDate) SlotFree(slotTime string) bool {
	if d == nil {
		return true
	}
	if !d.IsAvailable {
		return false
	}
	if i := d.FindSlot(slotTime); i >= 0 {
		return d.Slots[i].IsAvailable
	}
	return true
}

// ParseDateKey validates a YYYY-MM-DD calendar key.
func ParseDateKey(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// ParseSlotTime validates an HH:mm slot key.
func ParseSlotTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil || t.Format(TimeLayout) != s {
		return time.Time{}, fmt.Errorf("invalid time %q, expected HH:mm", s)
	}
	return t, nil
}
