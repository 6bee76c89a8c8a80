package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Catalog manages departments, doctors, services and price coefficients.
type Catalog struct {
	departments  DepartmentRepository
	doctors      DoctorRepository
	services     ServiceRepository
	coefficients CoefficientRepository
}

func NewCatalog(dept DepartmentRepository, doc DoctorRepository, svc ServiceRepository, coef CoefficientRepository) *Catalog {
	return &Catalog{departments: dept, doctors: doc, services: svc, coefficients: coef}
}

// -- Department --

func (c *Catalog) CreateDepartment(ctx context.Context, d *Department) error {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return fmt.Errorf("%w: department name is required", ErrInvalid)
	}
	return c.departments.Create(ctx, d)
}

func (c *Catalog) GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error) {
	return c.departments.GetByID(ctx, id)
}

func (c *Catalog) ListDepartments(ctx context.Context) ([]*Department, error) {
	return c.departments.List(ctx)
}

// -- Doctor --

func (c *Catalog) CreateDoctor(ctx context.Context, d *Doctor) error {
	if d.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalid)
	}
	if strings.TrimSpace(d.FullName) == "" {
		return fmt.Errorf("%w: full_name is required", ErrInvalid)
	}
	if d.Category == "" {
		d.Category = CategoryNone
	}
	if !d.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalid, d.Category)
	}
	if d.ExperienceYears < 0 {
		return fmt.Errorf("%w: experience_years cannot be negative", ErrInvalid)
	}
	if _, err := c.departments.GetByID(ctx, d.DepartmentID); err != nil {
		return fmt.Errorf("department %s: %w", d.DepartmentID, err)
	}
	return c.doctors.Create(ctx, d)
}

func (c *Catalog) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return c.doctors.GetByID(ctx, id)
}

// LockDoctor must run inside a transaction; the lock serializes rating
// recomputes for the doctor.
func (c *Catalog) LockDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return c.doctors.LockByID(ctx, id)
}

func (c *Catalog) GetDoctorByUserID(ctx context.Context, userID string) (*Doctor, error) {
	return c.doctors.GetByUserID(ctx, userID)
}

func (c *Catalog) ListDoctors(ctx context.Context, departmentID *uuid.UUID, limit, offset int) ([]*Doctor, int, error) {
	return c.doctors.List(ctx, departmentID, limit, offset)
}

func (c *Catalog) UpdateDoctorRating(ctx context.Context, id uuid.UUID, rating decimal.Decimal) error {
	return c.doctors.UpdateRating(ctx, id, rating.Round(2))
}

// -- Service --

func (c *Catalog) CreateService(ctx context.Context, s *Service) error {
	if err := s.normalize(); err != nil {
		return err
	}
	if _, err := c.departments.GetByID(ctx, s.DepartmentID); err != nil {
		return fmt.Errorf("department %s: %w", s.DepartmentID, err)
	}
	return c.services.Create(ctx, s)
}

func (c *Catalog) UpdateService(ctx context.Context, s *Service) error {
	if err := s.normalize(); err != nil {
		return err
	}
	return c.services.Update(ctx, s)
}

func (c *Catalog) GetService(ctx context.Context, id uuid.UUID) (*Service, error) {
	return c.services.GetByID(ctx, id)
}

func (c *Catalog) LockService(ctx context.Context, id uuid.UUID) (*Service, error) {
	return c.services.LockByID(ctx, id)
}

func (c *Catalog) ListServices(ctx context.Context, f ServiceFilter, limit, offset int) ([]*Service, int, error) {
	return c.services.List(ctx, f, limit, offset)
}

func (c *Catalog) UpdateServiceRating(ctx context.Context, id uuid.UUID, rating decimal.Decimal) error {
	return c.services.UpdateRating(ctx, id, rating.Round(2))
}

// -- Category coefficient --

func (c *Catalog) SetCoefficient(ctx context.Context, cc *CategoryCoefficient) error {
	if !cc.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalid, cc.Category)
	}
	if !cc.Coefficient.IsPositive() {
		return fmt.Errorf("%w: coefficient must be positive", ErrInvalid)
	}
	if cc.Coefficient.GreaterThanOrEqual(decimal.NewFromInt(10)) {
		return fmt.Errorf("%w: coefficient must be below 10", ErrInvalid)
	}
	cc.Coefficient = cc.Coefficient.Round(2)
	return c.coefficients.Upsert(ctx, cc)
}

func (c *Catalog) ListCoefficients(ctx context.Context) ([]*CategoryCoefficient, error) {
	return c.coefficients.List(ctx)
}
