package diagnostics

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/domain/catalog"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/httpx"
)

type mockDoctors map[string]*catalog.Doctor

func (m mockDoctors) GetDoctorByUserID(_ context.Context, userID string) (*catalog.Doctor, error) {
	d, ok := m[userID]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return d, nil
}

func newTestHandler() (*Handler, *fixture, *echo.Echo) {
	f := newFixture()
	doctors := mockDoctors{
		"doc-1": {ID: f.appt.DoctorID, UserID: "doc-1"},
		"doc-2": {ID: uuid.New(), UserID: "doc-2"},
	}
	e := echo.New()
	e.Validator = httpx.NewValidator()
	return NewHandler(f.svc, doctors), f, e
}

func withIdentity(req *http.Request, userID string, roles ...string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), userID, roles))
}

func expectCode(t *testing.T, err error, code int) {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T (%v)", err, err)
	}
	if he.Code != code {
		t.Errorf("expected %d, got %d (%v)", code, he.Code, he.Message)
	}
}

func TestHandler_CreateResult(t *testing.T) {
	h, f, e := newTestHandler()
	body := `{"appointment_id":"` + f.appt.ID.String() + `","diagnosis":"Flu"}`

	for _, tc := range []struct {
		user string
		code int
	}{
		{"doc-2", http.StatusForbidden},
		{"doc-1", http.StatusCreated},
	} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		err := h.CreateResult(e.NewContext(withIdentity(req, tc.user, auth.RoleDoctor), rec))
		if tc.code == http.StatusCreated {
			if err != nil || rec.Code != http.StatusCreated {
				t.Fatalf("%s: %v / %d", tc.user, err, rec.Code)
			}
			continue
		}
		expectCode(t, err, tc.code)
	}
}

func TestHandler_GetResult_Visibility(t *testing.T) {
	h, f, e := newTestHandler()
	r := f.create(t)

	for _, tc := range []struct {
		user  string
		roles []string
		code  int
	}{
		{"patient-1", []string{auth.RolePatient}, http.StatusOK},
		{"patient-2", []string{auth.RolePatient}, http.StatusNotFound},
		{"doc-2", []string{auth.RoleDoctor}, http.StatusOK},
		{"admin", []string{auth.RoleAdmin}, http.StatusOK},
	} {
		rec := httptest.NewRecorder()
		c := e.NewContext(withIdentity(httptest.NewRequest(http.MethodGet, "/", nil), tc.user, tc.roles...), rec)
		c.SetParamNames("id")
		c.SetParamValues(r.ID.String())
		err := h.GetResult(c)
		if tc.code == http.StatusOK {
			if err != nil {
				t.Errorf("%s: unexpected error %v", tc.user, err)
			}
			continue
		}
		expectCode(t, err, tc.code)
	}
}

func multipartUpload(t *testing.T, fileName, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte(content))
	w.Close()
	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func TestHandler_UploadAndDownloadAttachment(t *testing.T) {
	h, f, e := newTestHandler()
	r := f.create(t)

	// another doctor may read but not write
	c := e.NewContext(withIdentity(multipartUpload(t, "scan.pdf", "%PDF"), "doc-2", auth.RoleDoctor), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(r.ID.String())
	expectCode(t, h.UploadAttachment(c), http.StatusNotFound)

	rec := httptest.NewRecorder()
	c = e.NewContext(withIdentity(multipartUpload(t, "scan.pdf", "%PDF"), "doc-1", auth.RoleDoctor), rec)
	c.SetParamNames("id")
	c.SetParamValues(r.ID.String())
	if err := h.UploadAttachment(c); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"attachment_name":"scan.pdf"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(withIdentity(httptest.NewRequest(http.MethodGet, "/", nil), "patient-1", auth.RolePatient), rec)
	c.SetParamNames("id")
	c.SetParamValues(r.ID.String())
	if err := h.DownloadAttachment(c); err != nil {
		t.Fatalf("download: %v", err)
	}
	if rec.Body.String() != "%PDF" || rec.Header().Get(echo.HeaderContentType) != "application/pdf" {
		t.Errorf("unexpected download %q (%s)", rec.Body.String(), rec.Header().Get(echo.HeaderContentType))
	}
	if !strings.Contains(rec.Header().Get(echo.HeaderContentDisposition), "scan.pdf") {
		t.Error("download should name the file")
	}
}

func TestHandler_UploadAttachment_BadType(t *testing.T) {
	h, f, e := newTestHandler()
	r := f.create(t)
	c := e.NewContext(withIdentity(multipartUpload(t, "run.sh", "#!"), "admin", auth.RoleAdmin), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(r.ID.String())
	expectCode(t, h.UploadAttachment(c), http.StatusBadRequest)
}

func TestHandler_ListResults_PatientScoped(t *testing.T) {
	h, f, e := newTestHandler()
	f.create(t)

	rec := httptest.NewRecorder()
	req := withIdentity(httptest.NewRequest(http.MethodGet, "/?patient_id=patient-1", nil), "patient-2", auth.RolePatient)
	if err := h.ListResults(e.NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rec.Body.String(), `"total":0`) {
		t.Errorf("patient must only list own results: %s", rec.Body.String())
	}
}
