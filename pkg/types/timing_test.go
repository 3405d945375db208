package types

import (
	"testing"
	"time"

	"github.com/rubberops/tapping-backend/pkg/enums"
)

func TestTimingScanHandlesNilAndBytes(t *testing.T) {
	var timing Timing
	if err := timing.Scan(nil); err != nil {
		t.Fatalf("scan nil: %v", err)
	}
	if !timing.IsZero() {
		t.Fatalf("expected zero timing after nil scan, got %+v", timing)
	}

	raw := []byte(`{"startDate":"2026-03-01T00:00:00Z","preferredTimeSlots":["early_morning"],"workingDays":["monday","friday"]}`)
	if err := timing.Scan(raw); err != nil {
		t.Fatalf("scan bytes: %v", err)
	}
	if timing.StartDate == nil || !timing.StartDate.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start date %v", timing.StartDate)
	}
	if timing.EndDate != nil {
		t.Fatalf("end date should stay unspecified")
	}
	if len(timing.WorkingDays) != 2 || timing.WorkingDays[1] != enums.WorkingDayFriday {
		t.Fatalf("unexpected working days %v", timing.WorkingDays)
	}
	if timing.EstimatedDurationDays != nil {
		t.Fatalf("duration should stay unspecified")
	}
}

func TestTimingScanRejectsUnsupportedType(t *testing.T) {
	var timing Timing
	if err := timing.Scan(42); err == nil {
		t.Fatal("expected error for int scan")
	}
}

func TestTimingCloneIsIndependent(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	days := 14
	original := Timing{
		StartDate:             &start,
		PreferredTimeSlots:    []enums.TimeSlot{enums.TimeSlotMorning},
		EstimatedDurationDays: &days,
	}

	clone := original.Clone()
	clone.PreferredTimeSlots[0] = enums.TimeSlotEvening
	*clone.EstimatedDurationDays = 30
	*clone.StartDate = start.AddDate(0, 1, 0)

	if original.PreferredTimeSlots[0] != enums.TimeSlotMorning {
		t.Fatalf("clone shares slot slice with original")
	}
	if *original.EstimatedDurationDays != 14 {
		t.Fatalf("clone shares duration pointer with original")
	}
	if !original.StartDate.Equal(start) {
		t.Fatalf("clone shares start date pointer with original")
	}
}
