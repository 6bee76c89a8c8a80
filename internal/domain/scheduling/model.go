package scheduling

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SlotStatus string

const (
	SlotFree SlotStatus = "free"
	// SlotStart marks the first slot of a booked run.
	SlotStart SlotStatus = "start"
	// SlotBusy marks the continuation slots of a booked run.
	SlotBusy SlotStatus = "busy"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Terminal reports whether no further status change is allowed.
func (s AppointmentStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled:
		return true
	case StatusScheduled:
		return false
	}
	return true
}

// CanTransitionTo reports whether s may change to to.
func (s AppointmentStatus) CanTransitionTo(to AppointmentStatus) bool {
	switch s {
	case StatusScheduled:
		return to == StatusCompleted || to == StatusCancelled
	case StatusCompleted, StatusCancelled:
		return false
	}
	return false
}

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

// Schedule is a doctor's working day in one shift.
type Schedule struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      Date      `json:"date"`
	Shift     Shift     `json:"shift"`
	CreatedAt time.Time `json:"created_at"`
	Slots     []*Slot   `json:"slots,omitempty"`
}

// Slot is one half-hour unit of a schedule.
type Slot struct {
	ID         uuid.UUID  `json:"id"`
	ScheduleID uuid.UUID  `json:"schedule_id"`
	Date       Date       `json:"date"`
	Number     int        `json:"number"`
	Time       string     `json:"time"`
	Status     SlotStatus `json:"status"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (s *Slot) Free() bool { return s.Status == SlotFree }

// Appointment reserves SlotCount consecutive slots starting at SlotID.
// SlotID is nil once the appointment is cancelled.
type Appointment struct {
	ID            uuid.UUID         `json:"id"`
	PatientID     string            `json:"patient_id"`
	DoctorID      uuid.UUID         `json:"doctor_id"`
	ServiceID     uuid.UUID         `json:"service_id"`
	SlotID        *uuid.UUID        `json:"slot_id"`
	SlotCount     int               `json:"slot_count"`
	Date          Date              `json:"appointment_date"`
	Time          string            `json:"appointment_time"`
	Status        AppointmentStatus `json:"status"`
	Cost          decimal.Decimal   `json:"cost"`
	PaymentStatus PaymentStatus     `json:"payment_status"`
	Notes         string            `json:"notes"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// BookingRequest carries the inputs of BookAppointment. Time is a clock time
// from the slot table, e.g. "09:30".
type BookingRequest struct {
	PatientID string
	DoctorID  uuid.UUID
	ServiceID uuid.UUID
	Date      Date
	Time      string
	Notes     string
}
