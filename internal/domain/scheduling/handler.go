package scheduling

import (
	"context"
	"errors"
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
	api.GET("/slot-table", h.GetSlotTable)
	api.GET("/doctors/:id/available-slots", h.ListAvailableSlots)

	api.GET("/schedules", h.ListSchedules)
	api.GET("/schedules/:id", h.GetSchedule)
	api.GET("/schedules/:id/slots", h.ListSlots)

	staff := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleAdmin))
	staff.POST("/schedules", h.CreateSchedule)
	staff.DELETE("/schedules/:id", h.DeleteSchedule)
	staff.POST("/appointments/:id/complete", h.CompleteAppointment)

	api.POST("/appointments", h.BookAppointment, auth.RequireRole(auth.RolePatient, auth.RoleAdmin))
	api.GET("/appointments", h.ListAppointments)
	api.GET("/appointments/:id", h.GetAppointment)
	api.POST("/appointments/:id/cancel", h.CancelAppointment)
	api.POST("/appointments/:id/pay", h.MarkAppointmentPaid, auth.RequireRole(auth.RoleAdmin))
}

// validationBody is the 422 payload of a rejected booking.
type validationBody struct {
	Message          string `json:"message"`
	AlternativeDates []Date `json:"alternative_dates"`
}

func httpError(err error) error {
	var verr *ValidationError
	var terr *TransitionError
	switch {
	case errors.As(err, &verr):
		dates := verr.AlternativeDates
		if dates == nil {
			dates = []Date{}
		}
		return echo.NewHTTPError(http.StatusUnprocessableEntity, validationBody{Message: verr.Reason, AlternativeDates: dates})
	case errors.As(err, &terr):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrDuplicateSchedule), errors.Is(err, ErrScheduleInUse), errors.Is(err, ErrScheduleBusy):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
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

func optionalUUID(c echo.Context, name string) (*uuid.UUID, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return &id, nil
}

func optionalDate(c echo.Context, name string) (*Date, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	d, err := ParseDate(raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+", expected YYYY-MM-DD")
	}
	return &d, nil
}

// callerDoctor returns the doctor profile of the caller, or nil when the
// caller is not a doctor.
func (h *Handler) callerDoctor(ctx context.Context) (*catalog.Doctor, error) {
	if !auth.HoldsRole(ctx, auth.RoleDoctor) {
		return nil, nil
	}
	doc, err := h.doctors.GetDoctorByUserID(ctx, auth.UserIDFromContext(ctx))
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, echo.NewHTTPError(http.StatusForbidden, "no doctor profile for the current user")
	}
	if err != nil {
		return nil, httpError(err)
	}
	return doc, nil
}

// ensureDoctorAccess lets admins act on any doctor and doctors only on
// themselves.
func (h *Handler) ensureDoctorAccess(ctx context.Context, doctorID uuid.UUID) error {
	if auth.IsAdmin(ctx) {
		return nil
	}
	doc, err := h.callerDoctor(ctx)
	if err != nil {
		return err
	}
	if doc == nil || doc.ID != doctorID {
		return echo.NewHTTPError(http.StatusForbidden, "access to another doctor's schedule denied")
	}
	return nil
}

// canSeeAppointment reports whether the caller is the patient, the treating
// doctor or an admin.
func (h *Handler) canSeeAppointment(ctx context.Context, a *Appointment) (bool, error) {
	if auth.IsAdmin(ctx) {
		return true, nil
	}
	if a.PatientID == auth.UserIDFromContext(ctx) {
		return true, nil
	}
	doc, err := h.callerDoctor(ctx)
	if err != nil {
		return false, err
	}
	return doc != nil && doc.ID == a.DoctorID, nil
}

// -- Slot Handlers --

func (h *Handler) GetSlotTable(c echo.Context) error {
	return c.JSON(http.StatusOK, SlotTable())
}

func (h *Handler) ListAvailableSlots(c echo.Context) error {
	doctorID, err := parseID(c)
	if err != nil {
		return err
	}
	date, err := ParseDate(c.QueryParam("date"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "date is required, expected YYYY-MM-DD")
	}
	serviceID, err := optionalUUID(c, "service_id")
	if err != nil {
		return err
	}

	var slots []*Slot
	if serviceID != nil {
		slots, err = h.svc.ListBookableStarts(c.Request().Context(), doctorID, date, *serviceID)
	} else {
		slots, err = h.svc.ListAvailableSlots(c.Request().Context(), doctorID, date)
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, slots)
}

// -- Schedule Handlers --

type scheduleRequest struct {
	DoctorID uuid.UUID `json:"doctor_id" validate:"required"`
	Date     Date      `json:"date"`
	Shift    Shift     `json:"shift" validate:"required,oneof=1 2"`
}

func (h *Handler) CreateSchedule(c echo.Context) error {
	var req scheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if req.Date.IsZero() {
		return echo.NewHTTPError(http.StatusBadRequest, "date is required")
	}
	ctx := c.Request().Context()
	if err := h.ensureDoctorAccess(ctx, req.DoctorID); err != nil {
		return err
	}
	sched, err := h.svc.CreateSchedule(ctx, req.DoctorID, req.Date, req.Shift)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, sched)
}

func (h *Handler) GetSchedule(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	sched, err := h.svc.GetSchedule(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sched)
}

func (h *Handler) ListSchedules(c echo.Context) error {
	pg := pagination.FromContext(c)
	doctorID, err := optionalUUID(c, "doctor_id")
	if err != nil {
		return err
	}
	if doctorID == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "doctor_id is required")
	}
	from, err := optionalDate(c, "from")
	if err != nil {
		return err
	}
	items, total, err := h.svc.ListSchedulesByDoctor(c.Request().Context(), *doctorID, from, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListSlots(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	slots, err := h.svc.ListSlots(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, slots)
}

func (h *Handler) DeleteSchedule(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	sched, err := h.svc.GetSchedule(ctx, id)
	if err != nil {
		return httpError(err)
	}
	if err := h.ensureDoctorAccess(ctx, sched.DoctorID); err != nil {
		return err
	}
	if err := h.svc.DeleteSchedule(ctx, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Appointment Handlers --

type bookingRequest struct {
	PatientID string    `json:"patient_id" validate:"max=128"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	ServiceID uuid.UUID `json:"service_id"`
	Date      Date      `json:"appointment_date"`
	Time      string    `json:"appointment_time" validate:"max=8"`
	Notes     string    `json:"notes" validate:"max=2000"`
}

// BookAppointment books for the caller. Admins may book on behalf of a
// patient by naming patient_id.
func (h *Handler) BookAppointment(c echo.Context) error {
	var req bookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	patientID := auth.UserIDFromContext(ctx)
	if req.PatientID != "" && req.PatientID != patientID {
		if !auth.IsAdmin(ctx) {
			return echo.NewHTTPError(http.StatusForbidden, "cannot book on behalf of another patient")
		}
		patientID = req.PatientID
	}

	appt, err := h.svc.BookAppointment(ctx, BookingRequest{
		PatientID: patientID,
		DoctorID:  req.DoctorID,
		ServiceID: req.ServiceID,
		Date:      req.Date,
		Time:      req.Time,
		Notes:     req.Notes,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, appt)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	appt, err := h.svc.GetAppointment(ctx, id)
	if err != nil {
		return httpError(err)
	}
	ok, err := h.canSeeAppointment(ctx, appt)
	if err != nil {
		return err
	}
	if !ok {
		// hide existence from other patients
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}
	return c.JSON(http.StatusOK, appt)
}

// ListAppointments scopes the listing to the caller: patients see their own
// appointments, doctors those booked with them, admins may filter freely.
func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()

	var f AppointmentFilter
	var err error
	if f.DoctorID, err = optionalUUID(c, "doctor_id"); err != nil {
		return err
	}
	if f.Date, err = optionalDate(c, "date"); err != nil {
		return err
	}
	if status := c.QueryParam("status"); status != "" {
		f.Status = AppointmentStatus(status)
		switch f.Status {
		case StatusScheduled, StatusCompleted, StatusCancelled:
		default:
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
		}
	}

	switch {
	case auth.IsAdmin(ctx):
		f.PatientID = c.QueryParam("patient_id")
	case auth.HoldsRole(ctx, auth.RoleDoctor):
		doc, err := h.callerDoctor(ctx)
		if err != nil {
			return err
		}
		f.DoctorID = &doc.ID
	default:
		f.PatientID = auth.UserIDFromContext(ctx)
	}

	items, total, err := h.svc.SearchAppointments(ctx, f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	appt, err := h.svc.GetAppointment(ctx, id)
	if err != nil {
		return httpError(err)
	}
	ok, err := h.canSeeAppointment(ctx, appt)
	if err != nil {
		return err
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}
	appt, err = h.svc.CancelAppointment(ctx, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) CompleteAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	appt, err := h.svc.GetAppointment(ctx, id)
	if err != nil {
		return httpError(err)
	}
	if err := h.ensureDoctorAccess(ctx, appt.DoctorID); err != nil {
		return err
	}
	appt, err = h.svc.CompleteAppointment(ctx, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) MarkAppointmentPaid(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	appt, err := h.svc.MarkAppointmentPaid(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}
