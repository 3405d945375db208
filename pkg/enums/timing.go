package enums

import "slices"

// TimeSlot is a preferred part of the day for tapping work.
type TimeSlot string

const (
	TimeSlotEarlyMorning TimeSlot = "early_morning"
	TimeSlotMorning      TimeSlot = "morning"
	TimeSlotAfternoon    TimeSlot = "afternoon"
	TimeSlotEvening      TimeSlot = "evening"
)

var validTimeSlots = []TimeSlot{
	TimeSlotEarlyMorning,
	TimeSlotMorning,
	TimeSlotAfternoon,
	TimeSlotEvening,
}

func (t TimeSlot) IsValid() bool {
	return slices.Contains(validTimeSlots, t)
}

// ParseTimeSlot converts raw input into a TimeSlot.
func ParseTimeSlot(value string) (TimeSlot, error) {
	return parse("time slot", validTimeSlots, value)
}

// WorkingDay is a weekday on which tapping may be scheduled.
type WorkingDay string

const (
	WorkingDayMonday    WorkingDay = "monday"
	WorkingDayTuesday   WorkingDay = "tuesday"
	WorkingDayWednesday WorkingDay = "wednesday"
	WorkingDayThursday  WorkingDay = "thursday"
	WorkingDayFriday    WorkingDay = "friday"
	WorkingDaySaturday  WorkingDay = "saturday"
	WorkingDaySunday    WorkingDay = "sunday"
)

var validWorkingDays = []WorkingDay{
	WorkingDayMonday,
	WorkingDayTuesday,
	WorkingDayWednesday,
	WorkingDayThursday,
	WorkingDayFriday,
	WorkingDaySaturday,
	WorkingDaySunday,
}

func (d WorkingDay) IsValid() bool {
	return slices.Contains(validWorkingDays, d)
}

// ParseWorkingDay converts raw input into a WorkingDay.
func ParseWorkingDay(value string) (WorkingDay, error) {
	return parse("working day", validWorkingDays, value)
}
