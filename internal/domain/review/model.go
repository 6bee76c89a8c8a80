package review

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid input")
)

const (
	MinRating = 0
	MaxRating = 5
	// MaxTextLength bounds the free-text part of a review.
	MaxTextLength = 4000
)

// Review rates a doctor, a service or both. A zero rating means "not rated"
// and does not count towards averages.
type Review struct {
	ID            uuid.UUID  `json:"id"`
	UserID        *string    `json:"user_id,omitempty"`
	DoctorID      *uuid.UUID `json:"doctor_id,omitempty"`
	ServiceID     *uuid.UUID `json:"service_id,omitempty"`
	DoctorRating  int        `json:"doctor_rating"`
	ServiceRating int        `json:"service_rating"`
	Text          string     `json:"text"`
	IsAnonymous   bool       `json:"is_anonymous"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Validate checks the review form rules and normalizes the review: text is
// trimmed and anonymous reviews lose their author.
func (r *Review) Validate() error {
	var errs []string
	if r.DoctorRating < MinRating || r.DoctorRating > MaxRating {
		errs = append(errs, fmt.Sprintf("doctor_rating must be between %d and %d", MinRating, MaxRating))
	}
	if r.ServiceRating < MinRating || r.ServiceRating > MaxRating {
		errs = append(errs, fmt.Sprintf("service_rating must be between %d and %d", MinRating, MaxRating))
	}
	if r.DoctorRating > 0 && r.DoctorID == nil {
		errs = append(errs, "doctor_rating requires a doctor")
	}
	if r.ServiceRating > 0 && r.ServiceID == nil {
		errs = append(errs, "service_rating requires a service")
	}
	r.Text = strings.TrimSpace(r.Text)
	if len(r.Text) > MaxTextLength {
		errs = append(errs, fmt.Sprintf("text must be at most %d characters", MaxTextLength))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	if r.IsAnonymous {
		r.UserID = nil
	}
	return nil
}

// ratesDoctor reports whether saving r changes the doctor's average.
func (r *Review) ratesDoctor() bool { return r.DoctorID != nil && r.DoctorRating > 0 }

func (r *Review) ratesService() bool { return r.ServiceID != nil && r.ServiceRating > 0 }
