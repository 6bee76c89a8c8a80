package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/domain/catalog"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

// DoctorDirectory maps an authenticated user onto their doctor profile.
type DoctorDirectory interface {
	GetDoctorByUserID(ctx context.Context, userID string) (*catalog.Doctor, error)
}

type Handler struct {
	svc     *Service
	doctors DoctorDirectory
}

func NewHandler(svc *Service, doctors DoctorDirectory) *Handler {
	return &Handler{svc: svc, doctors: doctors}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/diagnostic-results", h.ListResults)
	api.GET("/diagnostic-results/:id", h.GetResult)
	api.GET("/diagnostic-results/:id/attachment", h.DownloadAttachment)

	staff := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleAdmin))
	staff.POST("/diagnostic-results", h.CreateResult)
	staff.POST("/diagnostic-results/:id/finalize", h.FinalizeResult)
	staff.POST("/diagnostic-results/:id/attachment", h.UploadAttachment)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoAttachment):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// callerDoctorID returns the caller's doctor id, or uuid.Nil for non-doctors.
func (h *Handler) callerDoctorID(ctx context.Context) (uuid.UUID, error) {
	if !auth.HoldsRole(ctx, auth.RoleDoctor) {
		return uuid.Nil, nil
	}
	doc, err := h.doctors.GetDoctorByUserID(ctx, auth.UserIDFromContext(ctx))
	if errors.Is(err, catalog.ErrNotFound) {
		return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "no doctor profile for the current user")
	}
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}
	return doc.ID, nil
}

// loadVisible fetches a result the caller may see: its patient, its doctor,
// any doctor when listing is allowed, or an admin.
func (h *Handler) loadVisible(c echo.Context, write bool) (*Result, error) {
	id, err := parseID(c)
	if err != nil {
		return nil, err
	}
	ctx := c.Request().Context()
	res, err := h.svc.GetResult(ctx, id)
	if err != nil {
		return nil, httpError(err)
	}
	if auth.IsAdmin(ctx) {
		return res, nil
	}
	if !write && res.PatientID == auth.UserIDFromContext(ctx) {
		return res, nil
	}
	doctorID, err := h.callerDoctorID(ctx)
	if err != nil {
		return nil, err
	}
	if doctorID != uuid.Nil && (!write || doctorID == res.DoctorID) {
		return res, nil
	}
	return nil, echo.NewHTTPError(http.StatusNotFound, "diagnostic result not found")
}

type resultRequest struct {
	AppointmentID   uuid.UUID `json:"appointment_id" validate:"required"`
	Diagnosis       string    `json:"diagnosis" validate:"required,max=10000"`
	Recommendations string    `json:"recommendations" validate:"max=10000"`
	Status          Status    `json:"status" validate:"omitempty,oneof=preliminary final"`
}

func (h *Handler) CreateResult(c echo.Context) error {
	var req resultRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	res := &Result{
		AppointmentID:   req.AppointmentID,
		Diagnosis:       req.Diagnosis,
		Recommendations: req.Recommendations,
		Status:          req.Status,
	}
	if !auth.IsAdmin(ctx) {
		doctorID, err := h.callerDoctorID(ctx)
		if err != nil {
			return err
		}
		res.DoctorID = doctorID
	}
	if err := h.svc.CreateResult(ctx, res); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetResult(c echo.Context) error {
	res, err := h.loadVisible(c, false)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// ListResults lists a patient's results. Patients always get their own.
func (h *Handler) ListResults(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()
	patientID := c.QueryParam("patient_id")
	if !auth.IsAdmin(ctx) && !auth.HoldsRole(ctx, auth.RoleDoctor) {
		patientID = auth.UserIDFromContext(ctx)
	}
	items, total, err := h.svc.ListByPatient(ctx, patientID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) FinalizeResult(c echo.Context) error {
	res, err := h.loadVisible(c, true)
	if err != nil {
		return err
	}
	res, err = h.svc.FinalizeResult(c.Request().Context(), res.ID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// UploadAttachment accepts a multipart "file" field.
func (h *Handler) UploadAttachment(c echo.Context) error {
	res, err := h.loadVisible(c, true)
	if err != nil {
		return err
	}
	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to open uploaded file").SetInternal(err)
	}
	defer src.Close()

	res, err = h.svc.AttachFile(c.Request().Context(), res.ID, file.Filename, src)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) DownloadAttachment(c echo.Context) error {
	res, err := h.loadVisible(c, false)
	if err != nil {
		return err
	}
	rc, meta, err := h.svc.OpenAttachment(c.Request().Context(), res.ID)
	if err != nil {
		return httpError(err)
	}
	defer rc.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, meta.FileName))
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}
