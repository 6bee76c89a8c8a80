package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

func notFound(err error) error {
	if db.IsNoRows(err) {
		return ErrNotFound
	}
	return err
}

// =========== Schedule Repository ===========

type scheduleRepoPG struct{ pool *pgxpool.Pool }

func NewScheduleRepoPG(pool *pgxpool.Pool) ScheduleRepository { return &scheduleRepoPG{pool: pool} }

func (r *scheduleRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const schedCols = `id, doctor_id, date, shift, created_at`

func scanSchedule(row pgx.Row) (*Schedule, error) {
	var s Schedule
	var shift int16
	if err := row.Scan(&s.ID, &s.DoctorID, &s.Date, &shift, &s.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	s.Shift = Shift(shift)
	return &s, nil
}

func (r *scheduleRepoPG) Create(ctx context.Context, s *Schedule) error {
	s.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO schedule (id, doctor_id, date, shift) VALUES ($1, $2, $3, $4)
		RETURNING created_at`, s.ID, s.DoctorID, s.Date, int16(s.Shift)).Scan(&s.CreatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("doctor %s on %s: %w", s.DoctorID, s.Date, ErrDuplicateSchedule)
	}
	return err
}

func (r *scheduleRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	return scanSchedule(r.conn(ctx).QueryRow(ctx, `SELECT `+schedCols+` FROM schedule WHERE id = $1`, id))
}

func (r *scheduleRepoPG) LockByID(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	return scanSchedule(r.conn(ctx).QueryRow(ctx, `SELECT `+schedCols+` FROM schedule WHERE id = $1 FOR UPDATE`, id))
}

func (r *scheduleRepoPG) GetByDoctorDate(ctx context.Context, doctorID uuid.UUID, date Date) (*Schedule, error) {
	return scanSchedule(r.conn(ctx).QueryRow(ctx,
		`SELECT `+schedCols+` FROM schedule WHERE doctor_id = $1 AND date = $2`, doctorID, date))
}

func (r *scheduleRepoPG) LockByDoctorDate(ctx context.Context, doctorID uuid.UUID, date Date) (*Schedule, error) {
	return scanSchedule(r.conn(ctx).QueryRow(ctx,
		`SELECT `+schedCols+` FROM schedule WHERE doctor_id = $1 AND date = $2 FOR UPDATE`, doctorID, date))
}

func (r *scheduleRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, from *Date, limit, offset int) ([]*Schedule, int, error) {
	where := ` WHERE doctor_id = $1 AND ($2::date IS NULL OR date >= $2)`
	var fromArg interface{}
	if from != nil {
		fromArg = *from
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM schedule`+where, doctorID, fromArg).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+schedCols+` FROM schedule`+where+
		` ORDER BY date LIMIT $3 OFFSET $4`, doctorID, fromArg, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

func (r *scheduleRepoPG) ListDatesAfter(ctx context.Context, doctorID uuid.UUID, after Date, limit int) ([]Date, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT date FROM schedule WHERE doctor_id = $1 AND date > $2
		ORDER BY date LIMIT $3`, doctorID, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var dates []Date
	for rows.Next() {
		var d Date
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

func (r *scheduleRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM schedule WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// =========== Slot Repository ===========

type slotRepoPG struct{ pool *pgxpool.Pool }

func NewSlotRepoPG(pool *pgxpool.Pool) SlotRepository { return &slotRepoPG{pool: pool} }

func (r *slotRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

// CreateBatch inserts the slots with a single COPY. It must run inside the
// schedule's transaction so a partial chain is never visible.
func (r *slotRepoPG) CreateBatch(ctx context.Context, slots []*Slot) error {
	tx := db.TxFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("slot batch insert requires a transaction")
	}
	now := time.Now()
	rows := make([][]interface{}, len(slots))
	for i, s := range slots {
		s.UpdatedAt = now
		rows[i] = []interface{}{s.ID, s.ScheduleID, s.Date, int16(s.Number), string(s.Status), now}
	}
	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"slot"},
		[]string{"id", "schedule_id", "date", "number", "status", "updated_at"},
		pgx.CopyFromRows(rows))
	return err
}

func (r *slotRepoPG) ListBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]*Slot, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, schedule_id, date, number, status, updated_at
		FROM slot WHERE schedule_id = $1 ORDER BY number`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var slots []*Slot
	for rows.Next() {
		var s Slot
		var number int16
		var status string
		if err := rows.Scan(&s.ID, &s.ScheduleID, &s.Date, &number, &status, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.Number = int(number)
		s.Status = SlotStatus(status)
		s.Time, _ = SlotTime(s.Number)
		slots = append(slots, &s)
	}
	return slots, rows.Err()
}

func (r *slotRepoPG) UpdateStatus(ctx context.Context, ids []uuid.UUID, status SlotStatus) error {
	if len(ids) == 0 {
		return nil
	}
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE slot SET status = $2, updated_at = NOW() WHERE id = ANY($1)`, ids, string(status))
	if err != nil {
		return err
	}
	if int(tag.RowsAffected()) != len(ids) {
		return fmt.Errorf("updated %d of %d slots", tag.RowsAffected(), len(ids))
	}
	return nil
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const apptCols = `id, patient_id, doctor_id, service_id, slot_id, slot_count, appointment_date,
	to_char(appointment_time, 'HH24:MI'), status, cost, payment_status, notes, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var slotCount int16
	var status, payment string
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.ServiceID, &a.SlotID, &slotCount, &a.Date,
		&a.Time, &status, &a.Cost, &payment, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	a.SlotCount = int(slotCount)
	a.Status = AppointmentStatus(status)
	a.PaymentStatus = PaymentStatus(payment)
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, patient_id, doctor_id, service_id, slot_id, slot_count,
			appointment_date, appointment_time, status, cost, payment_status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::time, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.ServiceID, a.SlotID, int16(a.SlotCount),
		a.Date, a.Time, string(a.Status), a.Cost, string(a.PaymentStatus), a.Notes,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
}

func (r *appointmentRepoPG) LockByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1 FOR UPDATE`, id))
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment SET status = $2, slot_id = $3, payment_status = $4, updated_at = NOW()
		WHERE id = $1`, a.ID, string(a.Status), a.SlotID, string(a.PaymentStatus))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	a.UpdatedAt = time.Now()
	return nil
}

func (r *appointmentRepoPG) List(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	query := `SELECT ` + apptCols + ` FROM appointment WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM appointment WHERE 1=1`
	var args []interface{}
	idx := 1

	add := func(clause string, arg interface{}) {
		query += fmt.Sprintf(clause, idx)
		countQuery += fmt.Sprintf(clause, idx)
		args = append(args, arg)
		idx++
	}
	if f.PatientID != "" {
		add(` AND patient_id = $%d`, f.PatientID)
	}
	if f.DoctorID != nil {
		add(` AND doctor_id = $%d`, *f.DoctorID)
	}
	if f.Date != nil {
		add(` AND appointment_date = $%d`, *f.Date)
	}
	if f.Status != "" {
		add(` AND status = $%d`, string(f.Status))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY appointment_date DESC, appointment_time DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *appointmentRepoPG) CountBySchedule(ctx context.Context, scheduleID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM appointment a
		JOIN slot s ON s.id = a.slot_id
		WHERE s.schedule_id = $1`, scheduleID).Scan(&n)
	return n, err
}
