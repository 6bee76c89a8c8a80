package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/domain/catalog"
	"github.com/clinic/clinic/internal/platform/events"
	"github.com/clinic/clinic/internal/platform/locker"
)

// alternativeDateLimit caps how many later working days a rejection suggests.
const alternativeDateLimit = 5

// Transactor runs fn inside one database transaction carried by ctx.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Catalog resolves the doctors and services referenced by bookings.
type Catalog interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*catalog.Doctor, error)
	GetService(ctx context.Context, id uuid.UUID) (*catalog.Service, error)
}

// Quoter prices a service for a doctor.
type Quoter interface {
	Quote(ctx context.Context, doctor *catalog.Doctor, svc *catalog.Service) (decimal.Decimal, error)
}

type Service struct {
	tx           Transactor
	schedules    ScheduleRepository
	slots        SlotRepository
	appointments AppointmentRepository
	catalog      Catalog
	pricer       Quoter

	locker    locker.Locker
	publisher events.Publisher
	logger    zerolog.Logger
	location  *time.Location
	now       func() time.Time
}

type Option func(*Service)

// WithLocker serializes booking work per doctor-day across instances.
func WithLocker(l locker.Locker) Option { return func(s *Service) { s.locker = l } }

func WithPublisher(p events.Publisher) Option { return func(s *Service) { s.publisher = p } }

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithLocation sets the clinic time zone used to decide what "today" is.
func WithLocation(loc *time.Location) Option { return func(s *Service) { s.location = loc } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(tx Transactor, sched ScheduleRepository, slot SlotRepository, appt AppointmentRepository,
	cat Catalog, pricer Quoter, opts ...Option) *Service {
	s := &Service{
		tx:           tx,
		schedules:    sched,
		slots:        slot,
		appointments: appt,
		catalog:      cat,
		pricer:       pricer,
		locker:       locker.Noop{},
		logger:       zerolog.Nop(),
		location:     time.UTC,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) today() Date {
	return DateOf(s.now().In(s.location))
}

func doctorDayKey(doctorID uuid.UUID, date Date) string {
	return "booking:" + doctorID.String() + ":" + date.String()
}

// lockDoctorDay takes the cross-instance doctor-day lock. The transaction's
// row lock on the schedule is what guarantees correctness; this lock only
// keeps instances from queueing on the database.
func (s *Service) lockDoctorDay(ctx context.Context, doctorID uuid.UUID, date Date) (func(), error) {
	key := doctorDayKey(doctorID, date)
	release, err := s.locker.Acquire(ctx, key)
	if errors.Is(err, locker.ErrNotAcquired) {
		return nil, ErrScheduleBusy
	}
	if err != nil {
		return nil, fmt.Errorf("acquire booking lock: %w", err)
	}
	return func() {
		// release with a fresh context so a cancelled request still unlocks
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := release(rctx); err != nil {
			s.logger.Warn().Err(err).Str("lock", key).Msg("failed to release booking lock")
		}
	}, nil
}

func (s *Service) publish(ctx context.Context, eventType string, data interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events.New(eventType, data)); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}

func (s *Service) getDoctor(ctx context.Context, id uuid.UUID) (*catalog.Doctor, error) {
	doc, err := s.catalog.GetDoctor(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, fmt.Errorf("doctor %s: %w", id, ErrNotFound)
	}
	return doc, err
}

// -- Schedule --

// CreateSchedule stores the doctor's working day together with its twelve
// free slots in one transaction.
func (s *Service) CreateSchedule(ctx context.Context, doctorID uuid.UUID, date Date, shift Shift) (*Schedule, error) {
	if doctorID == uuid.Nil {
		return nil, fmt.Errorf("%w: doctor_id is required", ErrInvalid)
	}
	if date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", ErrInvalid)
	}
	if !shift.Valid() {
		return nil, fmt.Errorf("%w: shift must be 1 or 2", ErrInvalid)
	}
	if date.Before(s.today()) {
		return nil, invalid(ReasonPastSchedule)
	}
	if _, err := s.getDoctor(ctx, doctorID); err != nil {
		return nil, err
	}

	sched := &Schedule{DoctorID: doctorID, Date: date, Shift: shift}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.schedules.Create(ctx, sched); err != nil {
			return err
		}
		chain := BuildChain(sched)
		if err := s.slots.CreateBatch(ctx, chain.Slots()); err != nil {
			return fmt.Errorf("create slots: %w", err)
		}
		sched.Slots = chain.Slots()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("schedule_id", sched.ID.String()).
		Str("doctor_id", doctorID.String()).
		Str("date", date.String()).
		Int("shift", int(shift)).
		Msg("schedule created")
	s.publish(ctx, events.ScheduleCreated, sched)
	return sched, nil
}

func (s *Service) GetSchedule(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	sched, err := s.schedules.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sched.Slots, err = s.slots.ListBySchedule(ctx, id); err != nil {
		return nil, err
	}
	return sched, nil
}

func (s *Service) ListSchedulesByDoctor(ctx context.Context, doctorID uuid.UUID, from *Date, limit, offset int) ([]*Schedule, int, error) {
	return s.schedules.ListByDoctor(ctx, doctorID, from, limit, offset)
}

// DeleteSchedule removes a schedule and its slots. Schedules still holding
// appointments cannot be deleted.
func (s *Service) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.schedules.LockByID(ctx, id); err != nil {
			return err
		}
		n, err := s.appointments.CountBySchedule(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %d appointment(s) reference it", ErrScheduleInUse, n)
		}
		return s.schedules.Delete(ctx, id)
	})
}

// ListSlots returns the full slot grid of a schedule.
func (s *Service) ListSlots(ctx context.Context, scheduleID uuid.UUID) ([]*Slot, error) {
	if _, err := s.schedules.GetByID(ctx, scheduleID); err != nil {
		return nil, err
	}
	return s.slots.ListBySchedule(ctx, scheduleID)
}

// ListAvailableSlots returns the doctor's free slots on date in slot order.
// A day without a schedule has no free slots.
func (s *Service) ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, date Date) ([]*Slot, error) {
	chain, err := s.chainFor(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	return chain.Free(), nil
}

// ListBookableStarts narrows the free slots to those that begin a run long
// enough for the service.
func (s *Service) ListBookableStarts(ctx context.Context, doctorID uuid.UUID, date Date, serviceID uuid.UUID) ([]*Slot, error) {
	_, svc, err := s.bookableService(ctx, doctorID, serviceID)
	if err != nil {
		return nil, err
	}
	chain, err := s.chainFor(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	out := make([]*Slot, 0, chain.Len())
	for _, slot := range chain.Free() {
		if len(chain.FreeRun(slot.Number, svc.NumberOfSlots)) == svc.NumberOfSlots {
			out = append(out, slot)
		}
	}
	return out, nil
}

// bookableService loads the doctor and service and checks the service can be
// booked with that doctor at all.
func (s *Service) bookableService(ctx context.Context, doctorID, serviceID uuid.UUID) (*catalog.Doctor, *catalog.Service, error) {
	doctor, err := s.getDoctor(ctx, doctorID)
	if err != nil {
		return nil, nil, err
	}
	svc, err := s.catalog.GetService(ctx, serviceID)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, nil, fmt.Errorf("service %s: %w", serviceID, ErrNotFound)
	}
	if err != nil {
		return nil, nil, err
	}
	if doctor.DepartmentID != svc.DepartmentID {
		return nil, nil, invalid(ReasonDepartmentMismatch)
	}
	if !svc.IsActive {
		return nil, nil, invalid(ReasonServiceInactive)
	}
	return doctor, svc, nil
}

func (s *Service) chainFor(ctx context.Context, doctorID uuid.UUID, date Date) (*SlotChain, error) {
	sched, err := s.schedules.GetByDoctorDate(ctx, doctorID, date)
	if errors.Is(err, ErrNotFound) {
		return &SlotChain{}, nil
	}
	if err != nil {
		return nil, err
	}
	slots, err := s.slots.ListBySchedule(ctx, sched.ID)
	if err != nil {
		return nil, err
	}
	return NewSlotChain(slots)
}

// -- Booking --

// BookAppointment finds a free run of slots for the service starting at the
// requested time and reserves it. The search and the reservation run in one
// transaction holding the doctor-day's schedule row lock, so concurrent
// bookings for the same day are serialized and the loser sees the slot taken.
func (s *Service) BookAppointment(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if req.PatientID == "" || req.DoctorID == uuid.Nil || req.ServiceID == uuid.Nil || req.Date.IsZero() || req.Time == "" {
		return nil, invalid(ReasonMissingFields)
	}
	if req.Date.Before(s.today()) {
		return nil, invalid(ReasonPastDate)
	}

	doctor, svc, err := s.bookableService(ctx, req.DoctorID, req.ServiceID)
	if err != nil {
		return nil, err
	}

	number, ok := SlotNumber(req.Time)
	if !ok {
		return nil, invalid(ReasonInvalidTime)
	}

	unlock, err := s.lockDoctorDay(ctx, req.DoctorID, req.Date)
	if err != nil {
		return nil, err
	}
	defer unlock()

	appt := &Appointment{
		PatientID:     req.PatientID,
		DoctorID:      req.DoctorID,
		ServiceID:     req.ServiceID,
		SlotCount:     svc.NumberOfSlots,
		Date:          req.Date,
		Status:        StatusScheduled,
		PaymentStatus: PaymentUnpaid,
		Notes:         req.Notes,
	}
	appt.Time, _ = SlotTime(number)

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		sched, err := s.schedules.LockByDoctorDate(ctx, req.DoctorID, req.Date)
		if errors.Is(err, ErrNotFound) {
			return invalid(ReasonNoSchedule)
		}
		if err != nil {
			return err
		}
		slots, err := s.slots.ListBySchedule(ctx, sched.ID)
		if err != nil {
			return err
		}
		chain, err := NewSlotChain(slots)
		if err != nil {
			return err
		}

		run := chain.FreeRun(number, svc.NumberOfSlots)
		if len(run) == 0 {
			return invalid(ReasonTimeUnavailable)
		}
		if len(run) < svc.NumberOfSlots {
			dates, err := s.schedules.ListDatesAfter(ctx, req.DoctorID, req.Date, alternativeDateLimit)
			if err != nil {
				return err
			}
			return &ValidationError{Reason: ReasonNotEnoughTime, AlternativeDates: dates}
		}

		cost, err := s.pricer.Quote(ctx, doctor, svc)
		if err != nil {
			return fmt.Errorf("price appointment: %w", err)
		}
		appt.Cost = cost
		appt.SlotID = &run[0].ID

		if err := s.appointments.Create(ctx, appt); err != nil {
			return err
		}
		if err := s.slots.UpdateStatus(ctx, slotIDs(run[:1]), SlotStart); err != nil {
			return err
		}
		if err := s.slots.UpdateStatus(ctx, slotIDs(run[1:]), SlotBusy); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("doctor_id", appt.DoctorID.String()).
		Str("date", appt.Date.String()).
		Str("time", appt.Time).
		Int("slots", appt.SlotCount).
		Str("cost", appt.Cost.StringFixed(2)).
		Msg("appointment booked")
	s.publish(ctx, events.AppointmentBooked, appt)
	return appt, nil
}

// CancelAppointment frees the reserved slots and clears the slot reference.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	current, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransitionTo(StatusCancelled) {
		return nil, &TransitionError{From: string(current.Status), To: string(StatusCancelled)}
	}

	unlock, err := s.lockDoctorDay(ctx, current.DoctorID, current.Date)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var appt *Appointment
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		// schedule row first, same order as booking
		sched, err := s.schedules.LockByDoctorDate(ctx, current.DoctorID, current.Date)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		appt, err = s.appointments.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if !appt.Status.CanTransitionTo(StatusCancelled) {
			return &TransitionError{From: string(appt.Status), To: string(StatusCancelled)}
		}

		if appt.SlotID != nil {
			if sched == nil {
				return fmt.Errorf("appointment %s holds slot %s but the doctor has no schedule on %s", appt.ID, appt.SlotID, appt.Date)
			}
			slots, err := s.slots.ListBySchedule(ctx, sched.ID)
			if err != nil {
				return err
			}
			chain, err := NewSlotChain(slots)
			if err != nil {
				return err
			}
			first := chain.ByID(*appt.SlotID)
			if first == nil {
				return fmt.Errorf("slot %s of appointment %s not found in schedule %s", appt.SlotID, appt.ID, sched.ID)
			}
			if err := s.slots.UpdateStatus(ctx, slotIDs(chain.Run(first.Number, appt.SlotCount)), SlotFree); err != nil {
				return err
			}
		}

		appt.SlotID = nil
		appt.Status = StatusCancelled
		return s.appointments.Update(ctx, appt)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("appointment_id", appt.ID.String()).Msg("appointment cancelled")
	s.publish(ctx, events.AppointmentCancelled, appt)
	return appt, nil
}

// CompleteAppointment finalizes the visit. The slots stay taken.
func (s *Service) CompleteAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var appt *Appointment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		appt, err = s.appointments.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if !appt.Status.CanTransitionTo(StatusCompleted) {
			return &TransitionError{From: string(appt.Status), To: string(StatusCompleted)}
		}
		appt.Status = StatusCompleted
		return s.appointments.Update(ctx, appt)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.AppointmentCompleted, appt)
	return appt, nil
}

// MarkAppointmentPaid records payment. Paying twice is a no-op; cancelled
// appointments cannot be paid.
func (s *Service) MarkAppointmentPaid(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var appt *Appointment
	changed := false
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		appt, err = s.appointments.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if appt.Status == StatusCancelled {
			return &TransitionError{From: string(appt.Status), To: string(PaymentPaid)}
		}
		if appt.PaymentStatus == PaymentPaid {
			return nil
		}
		appt.PaymentStatus = PaymentPaid
		changed = true
		return s.appointments.Update(ctx, appt)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.publish(ctx, events.AppointmentPaid, appt)
	}
	return appt, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Appointment, int, error) {
	return s.appointments.List(ctx, AppointmentFilter{PatientID: patientID}, limit, offset)
}

func (s *Service) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, date *Date, limit, offset int) ([]*Appointment, int, error) {
	return s.appointments.List(ctx, AppointmentFilter{DoctorID: &doctorID, Date: date}, limit, offset)
}

func (s *Service) SearchAppointments(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	return s.appointments.List(ctx, f, limit, offset)
}
