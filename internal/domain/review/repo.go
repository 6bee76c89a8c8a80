package review

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ListFilter selects reviews of a doctor or a service. Nil fields are not
// filtered on.
type ListFilter struct {
	DoctorID  *uuid.UUID
	ServiceID *uuid.UUID
}

type ReviewRepository interface {
	Create(ctx context.Context, r *Review) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Review, int, error)
	// AverageDoctorRating averages the positive doctor ratings of the doctor.
	// It returns zero when there are none.
	AverageDoctorRating(ctx context.Context, doctorID uuid.UUID) (decimal.Decimal, error)
	AverageServiceRating(ctx context.Context, serviceID uuid.UUID) (decimal.Decimal, error)
}
