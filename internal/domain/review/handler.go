package review

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/reviews", h.ListReviews)
	api.POST("/reviews", h.CreateReview)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}
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

type reviewRequest struct {
	DoctorID      *uuid.UUID `json:"doctor_id"`
	ServiceID     *uuid.UUID `json:"service_id"`
	DoctorRating  int        `json:"doctor_rating" validate:"gte=0,lte=5"`
	ServiceRating int        `json:"service_rating" validate:"gte=0,lte=5"`
	Text          string     `json:"text" validate:"max=4000"`
	IsAnonymous   bool       `json:"is_anonymous"`
}

// CreateReview records a review by the caller.
func (h *Handler) CreateReview(c echo.Context) error {
	var req reviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	rv := &Review{
		DoctorID:      req.DoctorID,
		ServiceID:     req.ServiceID,
		DoctorRating:  req.DoctorRating,
		ServiceRating: req.ServiceRating,
		Text:          req.Text,
		IsAnonymous:   req.IsAnonymous,
	}
	if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
		rv.UserID = &uid
	}
	if err := h.svc.CreateReview(c.Request().Context(), rv); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, rv)
}

func (h *Handler) ListReviews(c echo.Context) error {
	pg := pagination.FromContext(c)
	var f ListFilter
	var err error
	if f.DoctorID, err = optionalUUID(c, "doctor_id"); err != nil {
		return err
	}
	if f.ServiceID, err = optionalUUID(c, "service_id"); err != nil {
		return err
	}
	items, total, err := h.svc.ListReviews(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
