package catalog

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	catalog *Catalog
}

func NewHandler(catalog *Catalog) *Handler {
	return &Handler{catalog: catalog}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints: any authenticated caller
	api.GET("/departments", h.ListDepartments)
	api.GET("/departments/:id", h.GetDepartment)
	api.GET("/doctors", h.ListDoctors)
	api.GET("/doctors/:id", h.GetDoctor)
	api.GET("/services", h.ListServices)
	api.GET("/services/:id", h.GetService)
	api.GET("/category-coefficients", h.ListCoefficients)

	// Write endpoints: admin only
	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/departments", h.CreateDepartment)
	admin.POST("/doctors", h.CreateDoctor)
	admin.POST("/services", h.CreateService)
	admin.PUT("/services/:id", h.UpdateService)
	admin.PUT("/category-coefficients/:category", h.SetCoefficient)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicate):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
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

// -- Department Handlers --

type departmentRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description"`
}

func (h *Handler) CreateDepartment(c echo.Context) error {
	var req departmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	d := &Department{Name: req.Name, Description: req.Description}
	if err := h.catalog.CreateDepartment(c.Request().Context(), d); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDepartment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	d, err := h.catalog.GetDepartment(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDepartments(c echo.Context) error {
	items, err := h.catalog.ListDepartments(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

// -- Doctor Handlers --

type doctorRequest struct {
	UserID          string    `json:"user_id" validate:"required,max=128"`
	FullName        string    `json:"full_name" validate:"required,max=300"`
	DepartmentID    uuid.UUID `json:"department_id" validate:"required"`
	Specialization  string    `json:"specialization" validate:"max=200"`
	Category        Category  `json:"category" validate:"omitempty,oneof=none second first highest"`
	ExperienceYears int       `json:"experience_years" validate:"gte=0"`
}

func (h *Handler) CreateDoctor(c echo.Context) error {
	var req doctorRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	d := &Doctor{
		UserID:          req.UserID,
		FullName:        req.FullName,
		DepartmentID:    req.DepartmentID,
		Specialization:  req.Specialization,
		Category:        req.Category,
		ExperienceYears: req.ExperienceYears,
	}
	if err := h.catalog.CreateDoctor(c.Request().Context(), d); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	d, err := h.catalog.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	deptID, err := optionalUUID(c, "department_id")
	if err != nil {
		return err
	}
	items, total, err := h.catalog.ListDoctors(c.Request().Context(), deptID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- Service Handlers --

type serviceRequest struct {
	Name            string          `json:"name" validate:"required,max=200"`
	DepartmentID    uuid.UUID       `json:"department_id" validate:"required"`
	DurationMinutes int             `json:"duration_minutes" validate:"required,gt=0"`
	Price           decimal.Decimal `json:"price"`
	Description     string          `json:"description"`
	IsActive        *bool           `json:"is_active"`
}

func (r *serviceRequest) toService() *Service {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return &Service{
		Name:            r.Name,
		DepartmentID:    r.DepartmentID,
		DurationMinutes: r.DurationMinutes,
		Price:           r.Price,
		Description:     r.Description,
		IsActive:        active,
	}
}

func (h *Handler) CreateService(c echo.Context) error {
	var req serviceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	s := req.toService()
	if err := h.catalog.CreateService(c.Request().Context(), s); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, s)
}

func (h *Handler) UpdateService(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req serviceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	s := req.toService()
	s.ID = id
	if err := h.catalog.UpdateService(c.Request().Context(), s); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) GetService(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	s, err := h.catalog.GetService(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) ListServices(c echo.Context) error {
	pg := pagination.FromContext(c)
	var f ServiceFilter
	deptID, err := optionalUUID(c, "department_id")
	if err != nil {
		return err
	}
	f.DepartmentID = deptID
	// Only active services are listed unless the caller asks otherwise.
	switch raw := c.QueryParam("active"); raw {
	case "all":
	case "":
		active := true
		f.Active = &active
	default:
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid active")
		}
		f.Active = &active
	}
	items, total, err := h.catalog.ListServices(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- Coefficient Handlers --

type coefficientRequest struct {
	Category    Category        `param:"category" validate:"required,oneof=none second first highest"`
	Coefficient decimal.Decimal `json:"coefficient"`
}

func (h *Handler) SetCoefficient(c echo.Context) error {
	var req coefficientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	cc := &CategoryCoefficient{Category: req.Category, Coefficient: req.Coefficient}
	if err := h.catalog.SetCoefficient(c.Request().Context(), cc); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cc)
}

func (h *Handler) ListCoefficients(c echo.Context) error {
	items, err := h.catalog.ListCoefficients(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}
