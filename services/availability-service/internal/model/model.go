package model

// TimeSlot is one bookable window of a schedule day. IsBooked is the only
// record of whether the physical slot has been reserved.
type TimeSlot struct {
	ID         string
	ScheduleID string
	SlotDate   string
	StartTime  string
	EndTime    string
	IsBooked   bool
}

// Booking is a committed reservation on a schedule day. Only its time span is
// used when computing availability.
type Booking struct {
	ID              string
	ScheduleID      string
	Date            string
	StartTime       string
	EndTime         string
	DurationMinutes int
}

type Service struct {
	ID              string
	Name            string
	DurationMinutes int
}
