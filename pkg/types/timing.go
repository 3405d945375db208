package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rubberops/tapping-backend/pkg/enums"
)

// Timing captures optional scheduling terms attached to a proposal.
// Nil pointers and empty slices mean "unspecified", never zero.
type Timing struct {
	StartDate             *time.Time         `json:"startDate,omitempty"`
	EndDate               *time.Time         `json:"endDate,omitempty"`
	PreferredTimeSlots    []enums.TimeSlot   `json:"preferredTimeSlots,omitempty"`
	WorkingDays           []enums.WorkingDay `json:"workingDays,omitempty"`
	EstimatedDurationDays *int               `json:"estimatedDurationDays,omitempty"`
}

// IsZero reports whether no timing field is specified.
func (t Timing) IsZero() bool {
	return t.StartDate == nil &&
		t.EndDate == nil &&
		len(t.PreferredTimeSlots) == 0 &&
		len(t.WorkingDays) == 0 &&
		t.EstimatedDurationDays == nil
}

// Clone returns a deep copy so callers cannot mutate stored terms.
func (t Timing) Clone() Timing {
	out := Timing{}
	if t.StartDate != nil {
		v := *t.StartDate
		out.StartDate = &v
	}
	if t.EndDate != nil {
		v := *t.EndDate
		out.EndDate = &v
	}
	if len(t.PreferredTimeSlots) > 0 {
		out.PreferredTimeSlots = append([]enums.TimeSlot(nil), t.PreferredTimeSlots...)
	}
	if len(t.WorkingDays) > 0 {
		out.WorkingDays = append([]enums.WorkingDay(nil), t.WorkingDays...)
	}
	if t.EstimatedDurationDays != nil {
		v := *t.EstimatedDurationDays
		out.EstimatedDurationDays = &v
	}
	return out
}

// Value marshals the timing into JSON for Postgres.
func (t Timing) Value() (driver.Value, error) {
	buf, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return string(buf), nil
}

// Scan decodes JSONB into the timing struct.
func (t *Timing) Scan(value interface{}) error {
	if value == nil {
		*t = Timing{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("timing: unsupported scan type %T", value)
	}
	if len(raw) == 0 {
		*t = Timing{}
		return nil
	}

	var decoded Timing
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	*t = decoded
	return nil
}
