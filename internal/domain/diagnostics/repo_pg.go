package diagnostics

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

// =========== Result Repository ===========

type resultRepoPG struct{ pool *pgxpool.Pool }

func NewResultRepoPG(pool *pgxpool.Pool) ResultRepository { return &resultRepoPG{pool: pool} }

func (r *resultRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const resultCols = `id, appointment_id, doctor_id, patient_id, diagnosis, recommendations, status,
	attachment_key, attachment_name, created_at, updated_at`

func scanResult(row pgx.Row) (*Result, error) {
	var res Result
	var status string
	err := row.Scan(&res.ID, &res.AppointmentID, &res.DoctorID, &res.PatientID, &res.Diagnosis,
		&res.Recommendations, &status, &res.AttachmentKey, &res.AttachmentName, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	res.Status = Status(status)
	return &res, nil
}

func (r *resultRepoPG) Create(ctx context.Context, res *Result) error {
	res.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO diagnostic_result (id, appointment_id, doctor_id, patient_id, diagnosis, recommendations, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		res.ID, res.AppointmentID, res.DoctorID, res.PatientID, res.Diagnosis, res.Recommendations, string(res.Status),
	).Scan(&res.CreatedAt, &res.UpdatedAt)
}

func (r *resultRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Result, error) {
	return scanResult(r.conn(ctx).QueryRow(ctx, `SELECT `+resultCols+` FROM diagnostic_result WHERE id = $1`, id))
}

func (r *resultRepoPG) LockByID(ctx context.Context, id uuid.UUID) (*Result, error) {
	return scanResult(r.conn(ctx).QueryRow(ctx,
		`SELECT `+resultCols+` FROM diagnostic_result WHERE id = $1 FOR UPDATE`, id))
}

func (r *resultRepoPG) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Result, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM diagnostic_result WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+resultCols+` FROM diagnostic_result WHERE patient_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, res)
	}
	return items, total, rows.Err()
}

func (r *resultRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE diagnostic_result SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *resultRepoPG) SetAttachment(ctx context.Context, id uuid.UUID, key, name string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE diagnostic_result SET attachment_key = $2, attachment_name = $3, updated_at = NOW()
		WHERE id = $1`, id, key, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
