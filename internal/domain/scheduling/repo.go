package scheduling

import (
	"context"

	"github.com/google/uuid"
)

type ScheduleRepository interface {
	// Create returns ErrDuplicateSchedule when the doctor already works that day.
	Create(ctx context.Context, s *Schedule) error
	GetByID(ctx context.Context, id uuid.UUID) (*Schedule, error)
	// LockByID and LockByDoctorDate take a row lock held until the
	// surrounding transaction ends.
	LockByID(ctx context.Context, id uuid.UUID) (*Schedule, error)
	GetByDoctorDate(ctx context.Context, doctorID uuid.UUID, date Date) (*Schedule, error)
	LockByDoctorDate(ctx context.Context, doctorID uuid.UUID, date Date) (*Schedule, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, from *Date, limit, offset int) ([]*Schedule, int, error)
	// ListDatesAfter returns up to limit schedule dates strictly after the
	// given date, ascending.
	ListDatesAfter(ctx context.Context, doctorID uuid.UUID, after Date, limit int) ([]Date, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type SlotRepository interface {
	CreateBatch(ctx context.Context, slots []*Slot) error
	ListBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]*Slot, error)
	UpdateStatus(ctx context.Context, ids []uuid.UUID, status SlotStatus) error
}

// AppointmentFilter narrows appointment listings. Zero fields are ignored.
type AppointmentFilter struct {
	PatientID string
	DoctorID  *uuid.UUID
	Date      *Date
	Status    AppointmentStatus
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	LockByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// Update persists status, slot reference and payment status.
	Update(ctx context.Context, a *Appointment) error
	List(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error)
	// CountBySchedule counts appointments still holding slots of the schedule.
	CountBySchedule(ctx context.Context, scheduleID uuid.UUID) (int, error)
}
