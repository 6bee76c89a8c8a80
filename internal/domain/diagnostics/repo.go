package diagnostics

import (
	"context"

	"github.com/google/uuid"
)

type ResultRepository interface {
	Create(ctx context.Context, r *Result) error
	GetByID(ctx context.Context, id uuid.UUID) (*Result, error)
	LockByID(ctx context.Context, id uuid.UUID) (*Result, error)
	ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Result, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	SetAttachment(ctx context.Context, id uuid.UUID, key, name string) error
}
