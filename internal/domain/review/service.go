package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/domain/catalog"
)

type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// RatingStore holds the denormalized ratings shown on doctor and service
// pages. The Lock methods hold a row lock until the transaction ends, so
// concurrent reviews of one target recompute its average one at a time.
type RatingStore interface {
	LockDoctor(ctx context.Context, id uuid.UUID) (*catalog.Doctor, error)
	LockService(ctx context.Context, id uuid.UUID) (*catalog.Service, error)
	UpdateDoctorRating(ctx context.Context, id uuid.UUID, rating decimal.Decimal) error
	UpdateServiceRating(ctx context.Context, id uuid.UUID, rating decimal.Decimal) error
}

type Service struct {
	tx      Transactor
	reviews ReviewRepository
	ratings RatingStore
}

func NewService(tx Transactor, reviews ReviewRepository, ratings RatingStore) *Service {
	return &Service{tx: tx, reviews: reviews, ratings: ratings}
}

// CreateReview stores the review and, when it carries a rating, recomputes
// the target's average in the same transaction.
func (s *Service) CreateReview(ctx context.Context, r *Review) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		// Lock before the insert: an average computed without the lock misses
		// reviews committed by a concurrent writer.
		if r.DoctorID != nil {
			if _, err := s.ratings.LockDoctor(ctx, *r.DoctorID); err != nil {
				return notFound("doctor", *r.DoctorID, err)
			}
		}
		if r.ServiceID != nil {
			if _, err := s.ratings.LockService(ctx, *r.ServiceID); err != nil {
				return notFound("service", *r.ServiceID, err)
			}
		}
		if err := s.reviews.Create(ctx, r); err != nil {
			return fmt.Errorf("create review: %w", err)
		}
		if r.ratesDoctor() {
			avg, err := s.reviews.AverageDoctorRating(ctx, *r.DoctorID)
			if err != nil {
				return err
			}
			if err := s.ratings.UpdateDoctorRating(ctx, *r.DoctorID, avg); err != nil {
				return fmt.Errorf("update doctor rating: %w", err)
			}
		}
		if r.ratesService() {
			avg, err := s.reviews.AverageServiceRating(ctx, *r.ServiceID)
			if err != nil {
				return err
			}
			if err := s.ratings.UpdateServiceRating(ctx, *r.ServiceID, avg); err != nil {
				return fmt.Errorf("update service rating: %w", err)
			}
		}
		return nil
	})
}

func (s *Service) ListReviews(ctx context.Context, f ListFilter, limit, offset int) ([]*Review, int, error) {
	return s.reviews.List(ctx, f, limit, offset)
}

func notFound(kind string, id uuid.UUID, err error) error {
	if errors.Is(err, catalog.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return err
}
