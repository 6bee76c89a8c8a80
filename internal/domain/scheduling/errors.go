package scheduling

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalid           = errors.New("invalid input")
	ErrDuplicateSchedule = errors.New("doctor already has a schedule on this date")
	ErrScheduleInUse     = errors.New("schedule has appointments")
	ErrScheduleBusy      = errors.New("doctor's schedule is being updated, try again")
)

// Validation reasons shown to the caller.
const (
	ReasonMissingFields      = "doctor, service, date and time are required"
	ReasonPastDate           = "appointment date is in the past"
	ReasonDepartmentMismatch = "doctor does not provide services of this department"
	ReasonServiceInactive    = "service is not available for booking"
	ReasonInvalidTime        = "invalid appointment time"
	ReasonNoSchedule         = "doctor does not work this day"
	ReasonTimeUnavailable    = "selected time is unavailable"
	ReasonNotEnoughTime      = "not enough free time for this service"
	ReasonPastSchedule       = "schedule date is in the past"
)

// ValidationError is a user-correctable booking rejection. AlternativeDates
// lists later days the doctor works, when relevant.
type ValidationError struct {
	Reason           string
	AlternativeDates []Date
}

func (e *ValidationError) Error() string {
	if len(e.AlternativeDates) == 0 {
		return e.Reason
	}
	dates := make([]string, len(e.AlternativeDates))
	for i, d := range e.AlternativeDates {
		dates[i] = d.String()
	}
	return fmt.Sprintf("%s; doctor also works on: %s", e.Reason, strings.Join(dates, ", "))
}

func invalid(reason string) *ValidationError {
	return &ValidationError{Reason: reason}
}

// TransitionError rejects a status change out of a terminal state.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("appointment cannot change from %s to %s", e.From, e.To)
}
