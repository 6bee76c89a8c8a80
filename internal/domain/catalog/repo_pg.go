package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/platform/db"
)

// notFound maps pgx.ErrNoRows onto the package sentinel.
func notFound(err error) error {
	if db.IsNoRows(err) {
		return ErrNotFound
	}
	return err
}

// =========== Department Repository ===========

type departmentRepoPG struct{ pool *pgxpool.Pool }

func NewDepartmentRepoPG(pool *pgxpool.Pool) DepartmentRepository {
	return &departmentRepoPG{pool: pool}
}

func (r *departmentRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const deptCols = `id, name, description, created_at`

func scanDepartment(row pgx.Row) (*Department, error) {
	var d Department
	if err := row.Scan(&d.ID, &d.Name, &d.Description, &d.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

func (r *departmentRepoPG) Create(ctx context.Context, d *Department) error {
	d.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO department (id, name, description) VALUES ($1, $2, $3)
		RETURNING created_at`, d.ID, d.Name, d.Description).Scan(&d.CreatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("department %q: %w", d.Name, ErrDuplicate)
	}
	return err
}

func (r *departmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Department, error) {
	return scanDepartment(r.conn(ctx).QueryRow(ctx, `SELECT `+deptCols+` FROM department WHERE id = $1`, id))
}

func (r *departmentRepoPG) List(ctx context.Context) ([]*Department, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+deptCols+` FROM department ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Department
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

// =========== Doctor Repository ===========

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository { return &doctorRepoPG{pool: pool} }

func (r *doctorRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const doctorCols = `id, user_id, full_name, department_id, specialization, category,
	experience_years, rating, created_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var category string
	err := row.Scan(&d.ID, &d.UserID, &d.FullName, &d.DepartmentID, &d.Specialization, &category,
		&d.ExperienceYears, &d.Rating, &d.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	d.Category = Category(category)
	return &d, nil
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor (id, user_id, full_name, department_id, specialization, category, experience_years)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING rating, created_at`,
		d.ID, d.UserID, d.FullName, d.DepartmentID, d.Specialization, string(d.Category), d.ExperienceYears,
	).Scan(&d.Rating, &d.CreatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("doctor for user %s: %w", d.UserID, ErrDuplicate)
	}
	return err
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor WHERE id = $1`, id))
}

func (r *doctorRepoPG) LockByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor WHERE id = $1 FOR UPDATE`, id))
}

func (r *doctorRepoPG) GetByUserID(ctx context.Context, userID string) (*Doctor, error) {
	return scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor WHERE user_id = $1`, userID))
}

func (r *doctorRepoPG) List(ctx context.Context, departmentID *uuid.UUID, limit, offset int) ([]*Doctor, int, error) {
	where := ` WHERE ($1::uuid IS NULL OR department_id = $1)`
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctor`+where, departmentID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+doctorCols+` FROM doctor`+where+
		` ORDER BY full_name LIMIT $2 OFFSET $3`, departmentID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

func (r *doctorRepoPG) UpdateRating(ctx context.Context, id uuid.UUID, rating decimal.Decimal) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE doctor SET rating = $2 WHERE id = $1`, id, rating)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// =========== Service Repository ===========

type serviceRepoPG struct{ pool *pgxpool.Pool }

func NewServiceRepoPG(pool *pgxpool.Pool) ServiceRepository { return &serviceRepoPG{pool: pool} }

func (r *serviceRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const serviceCols = `id, name, department_id, duration_minutes, number_of_slots, price,
	description, is_active, rating, created_at`

func scanService(row pgx.Row) (*Service, error) {
	var s Service
	err := row.Scan(&s.ID, &s.Name, &s.DepartmentID, &s.DurationMinutes, &s.NumberOfSlots, &s.Price,
		&s.Description, &s.IsActive, &s.Rating, &s.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *serviceRepoPG) Create(ctx context.Context, s *Service) error {
	s.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO service (id, name, department_id, duration_minutes, number_of_slots, price, description, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING rating, created_at`,
		s.ID, s.Name, s.DepartmentID, s.DurationMinutes, s.NumberOfSlots, s.Price, s.Description, s.IsActive,
	).Scan(&s.Rating, &s.CreatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("service %q in department %s: %w", s.Name, s.DepartmentID, ErrDuplicate)
	}
	return err
}

func (r *serviceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Service, error) {
	return scanService(r.conn(ctx).QueryRow(ctx, `SELECT `+serviceCols+` FROM service WHERE id = $1`, id))
}

func (r *serviceRepoPG) LockByID(ctx context.Context, id uuid.UUID) (*Service, error) {
	return scanService(r.conn(ctx).QueryRow(ctx, `SELECT `+serviceCols+` FROM service WHERE id = $1 FOR UPDATE`, id))
}

func (r *serviceRepoPG) Update(ctx context.Context, s *Service) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE service SET name = $2, department_id = $3, duration_minutes = $4, number_of_slots = $5,
			price = $6, description = $7, is_active = $8
		WHERE id = $1`,
		s.ID, s.Name, s.DepartmentID, s.DurationMinutes, s.NumberOfSlots, s.Price, s.Description, s.IsActive)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("service %q in department %s: %w", s.Name, s.DepartmentID, ErrDuplicate)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *serviceRepoPG) List(ctx context.Context, f ServiceFilter, limit, offset int) ([]*Service, int, error) {
	query := `SELECT ` + serviceCols + ` FROM service WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM service WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.DepartmentID != nil {
		query += fmt.Sprintf(` AND department_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND department_id = $%d`, idx)
		args = append(args, *f.DepartmentID)
		idx++
	}
	if f.Active != nil {
		query += fmt.Sprintf(` AND is_active = $%d`, idx)
		countQuery += fmt.Sprintf(` AND is_active = $%d`, idx)
		args = append(args, *f.Active)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY department_id, duration_minutes DESC, name LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

func (r *serviceRepoPG) UpdateRating(ctx context.Context, id uuid.UUID, rating decimal.Decimal) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE service SET rating = $2 WHERE id = $1`, id, rating)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// =========== Coefficient Repository ===========

type coefficientRepoPG struct{ pool *pgxpool.Pool }

func NewCoefficientRepoPG(pool *pgxpool.Pool) CoefficientRepository {
	return &coefficientRepoPG{pool: pool}
}

func (r *coefficientRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func scanCoefficient(row pgx.Row) (*CategoryCoefficient, error) {
	var cc CategoryCoefficient
	var category string
	if err := row.Scan(&category, &cc.Coefficient, &cc.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	cc.Category = Category(category)
	return &cc, nil
}

func (r *coefficientRepoPG) Get(ctx context.Context, category Category) (*CategoryCoefficient, error) {
	return scanCoefficient(r.conn(ctx).QueryRow(ctx,
		`SELECT category, coefficient, updated_at FROM category_coefficient WHERE category = $1`, string(category)))
}

func (r *coefficientRepoPG) Upsert(ctx context.Context, cc *CategoryCoefficient) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO category_coefficient (category, coefficient) VALUES ($1, $2)
		ON CONFLICT (category) DO UPDATE SET coefficient = EXCLUDED.coefficient, updated_at = NOW()
		RETURNING updated_at`, string(cc.Category), cc.Coefficient).Scan(&cc.UpdatedAt)
}

func (r *coefficientRepoPG) List(ctx context.Context) ([]*CategoryCoefficient, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT category, coefficient, updated_at FROM category_coefficient ORDER BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*CategoryCoefficient
	for rows.Next() {
		cc, err := scanCoefficient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, cc)
	}
	return items, rows.Err()
}
