package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/blobstore"
	"github.com/clinic/clinic/internal/platform/events"
)

type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Appointments resolves the appointment a result is recorded for.
type Appointments interface {
	GetAppointment(ctx context.Context, id uuid.UUID) (*scheduling.Appointment, error)
}

type Service struct {
	tx           Transactor
	results      ResultRepository
	appointments Appointments
	blobs        blobstore.BlobStore
	publisher    events.Publisher
	logger       zerolog.Logger
}

func NewService(tx Transactor, results ResultRepository, appts Appointments, blobs blobstore.BlobStore,
	publisher events.Publisher, logger zerolog.Logger) *Service {
	return &Service{tx: tx, results: results, appointments: appts, blobs: blobs, publisher: publisher, logger: logger}
}

// CreateResult records a result for an appointment. Doctor and patient are
// taken from the appointment; cancelled appointments cannot carry results.
// A DoctorID set by the caller must match the appointment's doctor.
func (s *Service) CreateResult(ctx context.Context, r *Result) error {
	if err := r.normalize(); err != nil {
		return err
	}
	appt, err := s.appointments.GetAppointment(ctx, r.AppointmentID)
	if errors.Is(err, scheduling.ErrNotFound) {
		return fmt.Errorf("appointment %s: %w", r.AppointmentID, ErrNotFound)
	}
	if err != nil {
		return err
	}
	if appt.Status == scheduling.StatusCancelled {
		return fmt.Errorf("%w: appointment %s is cancelled", ErrInvalid, appt.ID)
	}
	if r.DoctorID != uuid.Nil && r.DoctorID != appt.DoctorID {
		return ErrForbidden
	}
	r.DoctorID = appt.DoctorID
	r.PatientID = appt.PatientID

	if err := s.results.Create(ctx, r); err != nil {
		return fmt.Errorf("create diagnostic result: %w", err)
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, events.New(events.DiagnosticRecorded, r)); err != nil {
			s.logger.Error().Err(err).Str("result_id", r.ID.String()).Msg("failed to publish event")
		}
	}
	return nil
}

func (s *Service) GetResult(ctx context.Context, id uuid.UUID) (*Result, error) {
	return s.results.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Result, int, error) {
	if patientID == "" {
		return nil, 0, fmt.Errorf("%w: patient_id is required", ErrInvalid)
	}
	return s.results.ListByPatient(ctx, patientID, limit, offset)
}

// FinalizeResult moves a preliminary result to final.
func (s *Service) FinalizeResult(ctx context.Context, id uuid.UUID) (*Result, error) {
	var res *Result
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if res, err = s.results.LockByID(ctx, id); err != nil {
			return err
		}
		if !res.Status.CanTransitionTo(StatusFinal) {
			return fmt.Errorf("%w: result is already %s", ErrInvalid, res.Status)
		}
		res.Status = StatusFinal
		return s.results.UpdateStatus(ctx, id, res.Status)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// AttachFile stores content as the result's attachment, replacing any
// previous one.
func (s *Service) AttachFile(ctx context.Context, id uuid.UUID, fileName string, content io.Reader) (*Result, error) {
	if _, err := blobstore.ContentTypeFor(fileName); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := s.results.GetByID(ctx, id); err != nil {
		return nil, err
	}

	meta, err := s.blobs.Upload(ctx, "diagnostics/"+id.String(), fileName, content)
	if err != nil {
		if errors.Is(err, blobstore.ErrFileTooLarge) || errors.Is(err, blobstore.ErrUnsupportedFileType) {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		return nil, fmt.Errorf("store attachment: %w", err)
	}

	var res *Result
	var previous *string
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if res, err = s.results.LockByID(ctx, id); err != nil {
			return err
		}
		previous = res.AttachmentKey
		if err := s.results.SetAttachment(ctx, id, meta.Key, meta.FileName); err != nil {
			return err
		}
		res.AttachmentKey, res.AttachmentName = &meta.Key, &meta.FileName
		return nil
	})
	if err != nil {
		s.removeBlob(ctx, meta.Key)
		return nil, err
	}
	if previous != nil && *previous != "" && *previous != meta.Key {
		s.removeBlob(ctx, *previous)
	}

	s.logger.Info().
		Str("result_id", id.String()).
		Str("key", meta.Key).
		Int64("size", meta.Size).
		Msg("diagnostic attachment stored")
	return res, nil
}

// OpenAttachment streams the stored attachment of a result.
func (s *Service) OpenAttachment(ctx context.Context, id uuid.UUID) (io.ReadCloser, *blobstore.BlobMetadata, error) {
	res, err := s.results.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !res.HasAttachment() {
		return nil, nil, ErrNoAttachment
	}
	rc, meta, err := s.blobs.Download(ctx, *res.AttachmentKey)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, nil, fmt.Errorf("attachment of %s: %w", id, ErrNoAttachment)
	}
	if err != nil {
		return nil, nil, err
	}
	if meta.FileName == "" && res.AttachmentName != nil {
		meta.FileName = *res.AttachmentName
	}
	return rc, meta, nil
}

func (s *Service) removeBlob(ctx context.Context, key string) {
	if err := s.blobs.Delete(ctx, key); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to remove attachment blob")
	}
}
