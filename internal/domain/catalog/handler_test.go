package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/httpx"
)

func newTestHandler() (*Handler, *echo.Echo) {
	h := NewHandler(newTestCatalog())
	e := echo.New()
	e.Validator = httpx.NewValidator()
	return h, e
}

func jsonRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func expectHTTPError(t *testing.T, err error, code int) {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T (%v)", err, err)
	}
	if he.Code != code {
		t.Errorf("expected %d, got %d", code, he.Code)
	}
}

func TestHandler_CreateDepartment(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"name":"Cardiology"}`), rec)

	if err := h.CreateDepartment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

func TestHandler_CreateDepartment_MissingName(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(jsonRequest(http.MethodPost, `{}`), httptest.NewRecorder())
	expectHTTPError(t, h.CreateDepartment(c), http.StatusBadRequest)
}

func TestHandler_CreateService(t *testing.T) {
	h, e := newTestHandler()
	dept := mustDepartment(t, h.catalog, "Cardiology")

	body := `{"name":"ECG","department_id":"` + dept.ID.String() + `","duration_minutes":60,"price":"1500.00"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, body), rec)
	if err := h.CreateService(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var got Service
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.NumberOfSlots != 2 || !got.IsActive {
		t.Errorf("unexpected service: %+v", got)
	}
}

func TestHandler_CreateService_BadDuration(t *testing.T) {
	h, e := newTestHandler()
	dept := mustDepartment(t, h.catalog, "Cardiology")

	body := `{"name":"ECG","department_id":"` + dept.ID.String() + `","duration_minutes":45,"price":"100"}`
	c := e.NewContext(jsonRequest(http.MethodPost, body), httptest.NewRecorder())
	expectHTTPError(t, h.CreateService(c), http.StatusBadRequest)
}

func TestHandler_CreateService_Duplicate(t *testing.T) {
	h, e := newTestHandler()
	dept := mustDepartment(t, h.catalog, "Cardiology")
	body := `{"name":"ECG","department_id":"` + dept.ID.String() + `","duration_minutes":30,"price":"100"}`

	if err := h.CreateService(e.NewContext(jsonRequest(http.MethodPost, body), httptest.NewRecorder())); err != nil {
		t.Fatal(err)
	}
	err := h.CreateService(e.NewContext(jsonRequest(http.MethodPost, body), httptest.NewRecorder()))
	expectHTTPError(t, err, http.StatusConflict)
}

func TestHandler_GetDoctor_NotFound(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	expectHTTPError(t, h.GetDoctor(c), http.StatusNotFound)
}

func TestHandler_GetDoctor_InvalidID(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	expectHTTPError(t, h.GetDoctor(c), http.StatusBadRequest)
}

func TestHandler_ListServices_ActiveFilter(t *testing.T) {
	h, e := newTestHandler()
	ctx := context.Background()
	dept := mustDepartment(t, h.catalog, "Cardiology")
	h.catalog.CreateService(ctx, &Service{Name: "A", DepartmentID: dept.ID, DurationMinutes: 30, Price: decimal.NewFromInt(1), IsActive: true})
	h.catalog.CreateService(ctx, &Service{Name: "B", DepartmentID: dept.ID, DurationMinutes: 30, Price: decimal.NewFromInt(1), IsActive: false})

	tests := []struct {
		query string
		want  int
	}{
		{"/", 1},
		{"/?active=false", 1},
		{"/?active=all", 2},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, tt.query, nil), rec)
		if err := h.ListServices(c); err != nil {
			t.Fatal(err)
		}
		var resp struct {
			Total int `json:"total"`
		}
		json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp.Total != tt.want {
			t.Errorf("%s: expected %d services, got %d", tt.query, tt.want, resp.Total)
		}
	}
}

func TestHandler_ListServices_PageOffsets(t *testing.T) {
	h, e := newTestHandler()
	ctx := context.Background()
	dept := mustDepartment(t, h.catalog, "Cardiology")
	for _, name := range []string{"A", "B", "C"} {
		h.catalog.CreateService(ctx, &Service{Name: name, DepartmentID: dept.ID, DurationMinutes: 30, Price: decimal.NewFromInt(1), IsActive: true})
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?limit=1&offset=1", nil), rec)
	if err := h.ListServices(c); err != nil {
		t.Fatal(err)
	}
	var resp struct {
		HasMore    bool `json:"has_more"`
		NextOffset *int `json:"next_offset"`
		PrevOffset *int `json:"prev_offset"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.HasMore || resp.NextOffset == nil || *resp.NextOffset != 2 {
		t.Errorf("expected next_offset 2, got %+v", resp)
	}
	if resp.PrevOffset == nil || *resp.PrevOffset != 0 {
		t.Errorf("expected prev_offset 0, got %+v", resp)
	}
}

func TestHandler_SetCoefficient(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPut, `{"coefficient":"1.20"}`), rec)
	c.SetParamNames("category")
	c.SetParamValues("highest")
	if err := h.SetCoefficient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c = e.NewContext(jsonRequest(http.MethodPut, `{"coefficient":"1.20"}`), httptest.NewRecorder())
	c.SetParamNames("category")
	c.SetParamValues("gold")
	expectHTTPError(t, h.SetCoefficient(c), http.StatusBadRequest)
}

func TestHandler_RegisterRoutes_AdminOnlyWrites(t *testing.T) {
	h, e := newTestHandler()
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithIdentity(c.Request().Context(), "p-1", []string{auth.RolePatient})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	h.RegisterRoutes(api)

	req := jsonRequest(http.MethodPost, `{"name":"Cardiology"}`)
	req.URL.Path = "/api/v1/departments"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for patient, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/departments", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for read, got %d", rec.Code)
	}
}
