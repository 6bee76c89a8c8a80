package catalog

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultCoefficient applies when no coefficient is configured for a category.
var DefaultCoefficient = decimal.NewFromInt(1)

// CoefficientSource looks up a configured category coefficient. It returns
// ErrNotFound when the category has no entry.
type CoefficientSource interface {
	Get(ctx context.Context, category Category) (*CategoryCoefficient, error)
}

// Pricer computes appointment costs. A missing coefficient is a configuration
// gap, not a failure: it is logged and priced at DefaultCoefficient.
type Pricer struct {
	coefficients CoefficientSource
	logger       zerolog.Logger
}

func NewPricer(coefficients CoefficientSource, logger zerolog.Logger) *Pricer {
	return &Pricer{coefficients: coefficients, logger: logger}
}

// Cost is base price times coefficient, rounded to cents.
func Cost(price, coefficient decimal.Decimal) decimal.Decimal {
	return price.Mul(coefficient).Round(2)
}

func (p *Pricer) Coefficient(ctx context.Context, category Category) (decimal.Decimal, error) {
	if category == "" {
		category = CategoryNone
	}
	cc, err := p.coefficients.Get(ctx, category)
	if errors.Is(err, ErrNotFound) {
		p.logger.Warn().
			Str("category", string(category)).
			Str("coefficient", DefaultCoefficient.String()).
			Msg("category coefficient not configured, using default")
		return DefaultCoefficient, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return cc.Coefficient, nil
}

// Quote prices svc for an appointment with doctor.
func (p *Pricer) Quote(ctx context.Context, doctor *Doctor, svc *Service) (decimal.Decimal, error) {
	coef, err := p.Coefficient(ctx, doctor.Category)
	if err != nil {
		return decimal.Zero, err
	}
	return Cost(svc.Price, coef), nil
}
