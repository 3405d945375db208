package enums

import "slices"

// ApplicationStatus maps to the application_status_enum in Postgres.
type ApplicationStatus string

const (
	ApplicationStatusOpen        ApplicationStatus = "open"
	ApplicationStatusNegotiating ApplicationStatus = "negotiating"
	ApplicationStatusAgreed      ApplicationStatus = "agreed"
	ApplicationStatusWithdrawn   ApplicationStatus = "withdrawn"
)

var validApplicationStatuses = []ApplicationStatus{
	ApplicationStatusOpen,
	ApplicationStatusNegotiating,
	ApplicationStatusAgreed,
	ApplicationStatusWithdrawn,
}

// IsValid reports whether the value is a known application status.
func (s ApplicationStatus) IsValid() bool {
	return slices.Contains(validApplicationStatuses, s)
}

// ParseApplicationStatus converts raw input into an ApplicationStatus.
func ParseApplicationStatus(value string) (ApplicationStatus, error) {
	return parse("application status", validApplicationStatuses, value)
}
