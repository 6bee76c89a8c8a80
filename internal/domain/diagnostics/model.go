package diagnostics

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid input")
	// ErrNoAttachment is returned when a result has no file attached.
	ErrNoAttachment = errors.New("result has no attachment")
	ErrForbidden    = errors.New("appointment belongs to another doctor")
)

type Status string

const (
	StatusPreliminary Status = "preliminary"
	StatusFinal       Status = "final"
)

// statusTransitions lists the allowed status changes of a result.
var statusTransitions = map[Status][]Status{
	StatusPreliminary: {StatusFinal},
	StatusFinal:       {},
}

func (s Status) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// CanTransitionTo reports whether a result in status s may move to to.
func (s Status) CanTransitionTo(to Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Result is a doctor's diagnostic conclusion for an appointment, optionally
// with a scanned report or image attached.
type Result struct {
	ID              uuid.UUID `json:"id"`
	AppointmentID   uuid.UUID `json:"appointment_id"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	PatientID       string    `json:"patient_id"`
	Diagnosis       string    `json:"diagnosis"`
	Recommendations string    `json:"recommendations"`
	Status          Status    `json:"status"`
	AttachmentKey   *string   `json:"-"`
	AttachmentName  *string   `json:"attachment_name,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (r *Result) HasAttachment() bool { return r.AttachmentKey != nil && *r.AttachmentKey != "" }

func (r *Result) normalize() error {
	r.Diagnosis = strings.TrimSpace(r.Diagnosis)
	r.Recommendations = strings.TrimSpace(r.Recommendations)
	if r.AppointmentID == uuid.Nil {
		return fmt.Errorf("%w: appointment_id is required", ErrInvalid)
	}
	if r.Diagnosis == "" {
		return fmt.Errorf("%w: diagnosis is required", ErrInvalid)
	}
	if r.Status == "" {
		r.Status = StatusPreliminary
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalid, r.Status)
	}
	return nil
}
