package review

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/platform/db"
)

type reviewRepoPG struct{ pool *pgxpool.Pool }

func NewReviewRepoPG(pool *pgxpool.Pool) ReviewRepository { return &reviewRepoPG{pool: pool} }

func (r *reviewRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const reviewCols = `id, user_id, doctor_id, service_id, doctor_rating, service_rating, text, is_anonymous, created_at`

func scanReview(row pgx.Row) (*Review, error) {
	var rv Review
	err := row.Scan(&rv.ID, &rv.UserID, &rv.DoctorID, &rv.ServiceID, &rv.DoctorRating, &rv.ServiceRating,
		&rv.Text, &rv.IsAnonymous, &rv.CreatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rv, nil
}

func (r *reviewRepoPG) Create(ctx context.Context, rv *Review) error {
	rv.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO review (id, user_id, doctor_id, service_id, doctor_rating, service_rating, text, is_anonymous)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		rv.ID, rv.UserID, rv.DoctorID, rv.ServiceID, rv.DoctorRating, rv.ServiceRating, rv.Text, rv.IsAnonymous,
	).Scan(&rv.CreatedAt)
}

func (r *reviewRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Review, int, error) {
	query := `SELECT ` + reviewCols + ` FROM review WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM review WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.DoctorID != nil {
		query += fmt.Sprintf(` AND doctor_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND doctor_id = $%d`, idx)
		args = append(args, *f.DoctorID)
		idx++
	}
	if f.ServiceID != nil {
		query += fmt.Sprintf(` AND service_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND service_id = $%d`, idx)
		args = append(args, *f.ServiceID)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rv)
	}
	return items, total, rows.Err()
}

func (r *reviewRepoPG) AverageDoctorRating(ctx context.Context, doctorID uuid.UUID) (decimal.Decimal, error) {
	return r.average(ctx, `SELECT COALESCE(AVG(doctor_rating), 0) FROM review WHERE doctor_id = $1 AND doctor_rating > 0`, doctorID)
}

func (r *reviewRepoPG) AverageServiceRating(ctx context.Context, serviceID uuid.UUID) (decimal.Decimal, error) {
	return r.average(ctx, `SELECT COALESCE(AVG(service_rating), 0) FROM review WHERE service_id = $1 AND service_rating > 0`, serviceID)
}

func (r *reviewRepoPG) average(ctx context.Context, query string, id uuid.UUID) (decimal.Decimal, error) {
	var avg decimal.Decimal
	if err := r.conn(ctx).QueryRow(ctx, query, id).Scan(&avg); err != nil {
		return decimal.Zero, err
	}
	return avg, nil
}
