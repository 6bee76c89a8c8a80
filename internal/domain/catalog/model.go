package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
	ErrInvalid   = errors.New("invalid input")
)

const (
	// SlotMinutes is the booking granularity: every service lasts a whole
	// number of slots.
	SlotMinutes = 30
	// MaxServiceMinutes caps a service at six hours.
	MaxServiceMinutes = 6 * 60
)

// Category is a doctor's qualification category; it selects the price
// coefficient applied to a service.
type Category string

const (
	CategoryNone    Category = "none"
	CategorySecond  Category = "second"
	CategoryFirst   Category = "first"
	CategoryHighest Category = "highest"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryNone, CategorySecond, CategoryFirst, CategoryHighest:
		return true
	}
	return false
}

// Department groups doctors and the services they provide.
type Department struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Doctor is the bookable practitioner. UserID is the opaque identity issued
// by the authentication layer.
type Doctor struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	UserID          string          `db:"user_id" json:"user_id"`
	FullName        string          `db:"full_name" json:"full_name"`
	DepartmentID    uuid.UUID       `db:"department_id" json:"department_id"`
	Specialization  string          `db:"specialization" json:"specialization"`
	Category        Category        `db:"category" json:"category"`
	ExperienceYears int             `db:"experience_years" json:"experience_years"`
	Rating          decimal.Decimal `db:"rating" json:"rating"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// Service is a medical service offered by a department.
type Service struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	Name            string          `db:"name" json:"name"`
	DepartmentID    uuid.UUID       `db:"department_id" json:"department_id"`
	DurationMinutes int             `db:"duration_minutes" json:"duration_minutes"`
	NumberOfSlots   int             `db:"number_of_slots" json:"number_of_slots"`
	Price           decimal.Decimal `db:"price" json:"price"`
	Description     string          `db:"description" json:"description"`
	IsActive        bool            `db:"is_active" json:"is_active"`
	Rating          decimal.Decimal `db:"rating" json:"rating"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

func (s *Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// SlotsForDuration converts a duration in minutes into the number of
// consecutive slots it occupies.
func SlotsForDuration(minutes int) (int, error) {
	if minutes <= 0 {
		return 0, fmt.Errorf("%w: service duration must be positive", ErrInvalid)
	}
	if minutes%SlotMinutes != 0 {
		return 0, fmt.Errorf("%w: service duration must be a multiple of %d minutes", ErrInvalid, SlotMinutes)
	}
	if minutes > MaxServiceMinutes {
		return 0, fmt.Errorf("%w: service duration cannot exceed %d hours", ErrInvalid, MaxServiceMinutes/60)
	}
	return minutes / SlotMinutes, nil
}

// normalize validates the service and recomputes NumberOfSlots from the
// duration. It runs before every insert and update.
func (s *Service) normalize() error {
	if s.Name == "" {
		return fmt.Errorf("%w: service name is required", ErrInvalid)
	}
	if s.DepartmentID == uuid.Nil {
		return fmt.Errorf("%w: department_id is required", ErrInvalid)
	}
	if s.Price.IsNegative() {
		return fmt.Errorf("%w: price cannot be negative", ErrInvalid)
	}
	n, err := SlotsForDuration(s.DurationMinutes)
	if err != nil {
		return err
	}
	s.NumberOfSlots = n
	s.Price = s.Price.Round(2)
	return nil
}

// CategoryCoefficient multiplies service prices for doctors of a category.
type CategoryCoefficient struct {
	Category    Category        `db:"category" json:"category"`
	Coefficient decimal.Decimal `db:"coefficient" json:"coefficient"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}
