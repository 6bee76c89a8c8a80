package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DepartmentRepository interface {
	Create(ctx context.Context, d *Department) error
	GetByID(ctx context.Context, id uuid.UUID) (*Department, error)
	List(ctx context.Context) ([]*Department, error)
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetByUserID(ctx context.Context, userID string) (*Doctor, error)
	// LockByID reads the doctor with a row lock held until the surrounding
	// transaction ends.
	LockByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	List(ctx context.Context, departmentID *uuid.UUID, limit, offset int) ([]*Doctor, int, error)
	UpdateRating(ctx context.Context, id uuid.UUID, rating decimal.Decimal) error
}

// ServiceFilter narrows service listings. A nil field is not filtered on.
type ServiceFilter struct {
	DepartmentID *uuid.UUID
	Active       *bool
}

type ServiceRepository interface {
	Create(ctx context.Context, s *Service) error
	GetByID(ctx context.Context, id uuid.UUID) (*Service, error)
	LockByID(ctx context.Context, id uuid.UUID) (*Service, error)
	Update(ctx context.Context, s *Service) error
	List(ctx context.Context, f ServiceFilter, limit, offset int) ([]*Service, int, error)
	UpdateRating(ctx context.Context, id uuid.UUID, rating decimal.Decimal) error
}

type CoefficientRepository interface {
	CoefficientSource
	Upsert(ctx context.Context, cc *CategoryCoefficient) error
	List(ctx context.Context) ([]*CategoryCoefficient, error)
}
