package waitlist_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transplantcore/internal/adapters/waitlist"
	"transplantcore/internal/blob"
	"transplantcore/internal/core"
	priority "transplantcore/internal/waitlist"
	"transplantcore/pkg/domain"
)

var demoPatients = []domain.Patient{
	{ID: "P001", Name: "John Doe", BloodType: "A+", WeightKG: 70, TissueType: "HLA-A"},
	{ID: "P002", Name: "Jane Smith", BloodType: "B-", WeightKG: 65, TissueType: "HLA-B"},
	{ID: "P003", Name: "Bob Johnson", BloodType: "O+", WeightKG: 80, TissueType: "HLA-A"},
	{ID: "P004", Name: "Alice Brown", BloodType: "AB-", WeightKG: 55, TissueType: "HLA-C"},
}

const demoOrgan = `{"id":"O001","name":"CyberHeart-X1","blood_type":"A+","weight_grams":350000,"tissue_type":"HLA-A"}`

// setupHandler seeds the demo waitlist with priorities 5, 8, 3, 9; later
// draws yield 6 then 7.
func setupHandler(t *testing.T) (*core.Service, *waitlist.Handler) {
	t.Helper()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine(), priority.NewSequenceDrawer(5, 8, 3, 9, 6, 7))
	for _, p := range demoPatients {
		_, _, err := svc.Enqueue(context.Background(), p)
		require.NoError(t, err)
	}
	return svc, waitlist.NewHandler(svc)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

type errorBody struct {
	Error string `json:"error"`
}

func TestHandlerWaitlistFlow(t *testing.T) {
	_, handler := setupHandler(t)

	resp := do(t, handler, http.MethodGet, "/api/v1/waitlist", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "application/json", resp.Header().Get("Content-Type"))
	list := decode[struct {
		Waitlist []domain.RankedEntry `json:"waitlist"`
	}](t, resp)
	require.Len(t, list.Waitlist, 4)
	var ids []string
	for i, e := range list.Waitlist {
		assert.Equal(t, i+1, e.Rank)
		ids = append(ids, e.Patient.ID)
	}
	assert.Equal(t, []string{"P004", "P002", "P001", "P003"}, ids)

	resp = do(t, handler, http.MethodPost, "/api/v1/waitlist/pop", "")
	require.Equal(t, http.StatusOK, resp.Code)
	popped := decode[struct {
		Patient domain.Patient `json:"patient"`
	}](t, resp)
	assert.Equal(t, "P004", popped.Patient.ID)

	resp = do(t, handler, http.MethodPost, "/api/v1/waitlist/P003/reprioritize", "")
	require.Equal(t, http.StatusOK, resp.Code)
	moved := decode[struct {
		Entry    domain.Entry `json:"entry"`
		Position int          `json:"position"`
	}](t, resp)
	assert.Equal(t, 6, moved.Entry.Priority)
	assert.Equal(t, 2, moved.Position)

	resp = do(t, handler, http.MethodGet, "/api/v1/waitlist/P001/position", "")
	require.Equal(t, http.StatusOK, resp.Code)
	pos := decode[struct {
		ID       string `json:"id"`
		Position int    `json:"position"`
	}](t, resp)
	assert.Equal(t, "P001", pos.ID)
	assert.Equal(t, 3, pos.Position)

	resp = do(t, handler, http.MethodPost, "/api/v1/organs", demoOrgan)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	resp = do(t, handler, http.MethodPost, "/api/v1/organs/O001/allocate", "")
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	allocated := decode[struct {
		Matched    bool              `json:"matched"`
		Allocation domain.Allocation `json:"allocation"`
	}](t, resp)
	assert.True(t, allocated.Matched)
	assert.Equal(t, "P001", allocated.Allocation.PatientID)
	assert.Equal(t, 3, allocated.Allocation.Rank)
	assert.InDelta(t, 70.0, allocated.Allocation.Score.Total, 1e-6)

	resp = do(t, handler, http.MethodGet, "/api/v1/allocations", "")
	require.Equal(t, http.StatusOK, resp.Code)
	allocations := decode[struct {
		Allocations []domain.Allocation `json:"allocations"`
	}](t, resp)
	require.Len(t, allocations.Allocations, 1)
	assert.Equal(t, "O001", allocations.Allocations[0].OrganID)

	resp = do(t, handler, http.MethodGet, "/api/v1/waitlist/P001/position", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = do(t, handler, http.MethodGet, "/api/v1/organs", "")
	require.Equal(t, http.StatusOK, resp.Code)
	organs := decode[struct {
		Organs []domain.Organ `json:"organs"`
	}](t, resp)
	require.Len(t, organs.Organs, 1)
	require.NotNil(t, organs.Organs[0].AllocatedTo)
	assert.Equal(t, "P001", *organs.Organs[0].AllocatedTo)
}

func TestHandlerEnqueue(t *testing.T) {
	_, handler := setupHandler(t)

	resp := do(t, handler, http.MethodPost, "/api/v1/waitlist",
		`{"id":"P005","name":"Eve Stone","blood_type":"O-","weight_kg":60,"tissue_type":"HLA-B"}`)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	created := decode[struct {
		Entry      domain.Entry       `json:"entry"`
		Position   int                `json:"position"`
		Violations []domain.Violation `json:"violations"`
	}](t, resp)
	assert.Equal(t, "P005", created.Entry.Patient.ID)
	assert.Equal(t, 6, created.Entry.Priority)
	assert.Equal(t, 3, created.Position)
	assert.Empty(t, created.Violations)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "duplicate", body: `{"id":"P001","name":"John Doe","blood_type":"A+","weight_kg":70}`, status: http.StatusConflict},
		{name: "missing name", body: `{"blood_type":"A+","weight_kg":70}`, status: http.StatusBadRequest},
		{name: "unknown blood type", body: `{"name":"X","blood_type":"C+","weight_kg":70}`, status: http.StatusBadRequest},
		{name: "malformed", body: `{"name":`, status: http.StatusBadRequest},
		{name: "unknown field", body: `{"name":"X","blood_type":"A+","weight_kg":70,"priority":10}`, status: http.StatusBadRequest},
		{name: "empty", body: "", status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, handler, http.MethodPost, "/api/v1/waitlist", tt.body)
			assert.Equal(t, tt.status, resp.Code)
			assert.NotEmpty(t, decode[errorBody](t, resp).Error)
		})
	}
}

func TestHandlerOrganErrors(t *testing.T) {
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine(), priority.NewSequenceDrawer(5))
	handler := waitlist.NewHandler(svc)

	resp := do(t, handler, http.MethodPost, "/api/v1/organs/missing/allocate", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = do(t, handler, http.MethodPost, "/api/v1/organs", `{"id":"O001","name":"Heart","blood_type":"A+","weight_grams":0}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = do(t, handler, http.MethodPost, "/api/v1/organs", demoOrgan)
	require.Equal(t, http.StatusCreated, resp.Code)
	resp = do(t, handler, http.MethodPost, "/api/v1/organs", demoOrgan)
	assert.Equal(t, http.StatusConflict, resp.Code)

	resp = do(t, handler, http.MethodPost, "/api/v1/organs/O001/allocate", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"matched":false}`, resp.Body.String())

	_, _, err := svc.Enqueue(context.Background(), demoPatients[0])
	require.NoError(t, err)
	resp = do(t, handler, http.MethodPost, "/api/v1/organs/O001/allocate", "")
	require.Equal(t, http.StatusCreated, resp.Code)
	resp = do(t, handler, http.MethodPost, "/api/v1/organs/O001/allocate", "")
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Contains(t, decode[errorBody](t, resp).Error, "already allocated")
}

func TestHandlerEmptyWaitlist(t *testing.T) {
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine(), priority.NewSequenceDrawer(5))
	handler := waitlist.NewHandler(svc)

	resp := do(t, handler, http.MethodGet, "/api/v1/waitlist", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"waitlist":[]}`, resp.Body.String())

	resp = do(t, handler, http.MethodGet, "/api/v1/allocations", "")
	assert.JSONEq(t, `{"allocations":[]}`, resp.Body.String())

	resp = do(t, handler, http.MethodPost, "/api/v1/waitlist/pop", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "waitlist is empty", decode[errorBody](t, resp).Error)

	for _, path := range []string{"/api/v1/waitlist/nobody", "/api/v1/waitlist/nobody/reprioritize"} {
		method := http.MethodDelete
		if strings.HasSuffix(path, "reprioritize") {
			method = http.MethodPost
		}
		resp = do(t, handler, method, path, "")
		assert.Equal(t, http.StatusNotFound, resp.Code, path)
	}
}

func TestHandlerRemovePatient(t *testing.T) {
	svc, handler := setupHandler(t)

	resp := do(t, handler, http.MethodDelete, "/api/v1/waitlist/P002", "")
	require.Equal(t, http.StatusOK, resp.Code)
	removed := decode[struct {
		Patient domain.Patient `json:"patient"`
	}](t, resp)
	assert.Equal(t, "Jane Smith", removed.Patient.Name)

	_, ok := svc.Position("P002")
	assert.False(t, ok)
	pos, ok := svc.Position("P001")
	require.True(t, ok)
	assert.Equal(t, 2, pos)
}

func TestHandlerPatientNamedPop(t *testing.T) {
	svc, handler := setupHandler(t)
	_, _, err := svc.Enqueue(context.Background(), domain.Patient{ID: "pop", Name: "Pop Star", BloodType: "O-", WeightKG: 60})
	require.NoError(t, err)

	resp := do(t, handler, http.MethodGet, "/api/v1/waitlist/pop/position", "")
	require.Equal(t, http.StatusOK, resp.Code)

	resp = do(t, handler, http.MethodDelete, "/api/v1/waitlist/pop", "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	removed := decode[struct {
		Patient domain.Patient `json:"patient"`
	}](t, resp)
	assert.Equal(t, "pop", removed.Patient.ID)
	_, ok := svc.Position("pop")
	assert.False(t, ok)

	resp = do(t, handler, http.MethodPost, "/api/v1/waitlist/pop", "")
	require.Equal(t, http.StatusOK, resp.Code)
	popped := decode[struct {
		Patient domain.Patient `json:"patient"`
	}](t, resp)
	assert.Equal(t, "P004", popped.Patient.ID)
}

func TestHandlerRoutes(t *testing.T) {
	_, handler := setupHandler(t)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodPut, "/api/v1/waitlist", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/waitlist/pop", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/waitlist/P001", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/waitlist/P001/reprioritize", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/v1/waitlist/P001/position", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/waitlist/P001/unknown", http.StatusNotFound},
		{http.MethodGet, "/api/v1/waitlist/P001/position/extra", http.StatusNotFound},
		{http.MethodDelete, "/api/v1/organs", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/organs/O001/allocate", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/v1/organs/O001", http.StatusNotFound},
		{http.MethodPost, "/api/v1/allocations", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/v1/allocations/export", http.StatusNotFound},
		{http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp := do(t, handler, tt.method, tt.path, "")
			assert.Equal(t, tt.status, resp.Code)
		})
	}
}

func TestHandlerExport(t *testing.T) {
	svc, handler := setupHandler(t)
	handler.Reports = blob.NewMemory()

	resp := do(t, handler, http.MethodGet, "/api/v1/allocations/export", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.Code)

	resp = do(t, handler, http.MethodPost, "/api/v1/allocations/export/", "")
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	report := decode[struct {
		Report blob.Info `json:"report"`
	}](t, resp)
	assert.True(t, strings.HasPrefix(report.Report.Key, core.AllocationsPrefix))
	assert.Equal(t, "0", report.Report.Metadata["count"])

	stored, err := handler.Reports.List(context.Background(), core.AllocationsPrefix)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
	assert.Len(t, svc.ListAllocations(), 0)
}

// violatingService fails every enqueue with a blocking rule result.
type violatingService struct {
	waitlist.Service
}

func (violatingService) Enqueue(context.Context, domain.Patient) (domain.Entry, domain.Result, error) {
	res := domain.Result{Violations: []domain.Violation{{
		Rule:     "waitlist_order",
		Severity: domain.SeverityBlock,
		Message:  "rank 2 out of order",
		Entity:   domain.EntityWaitlistEntry,
	}}}
	return domain.Entry{}, res, domain.RuleViolationError{Result: res}
}

func TestHandlerRuleViolation(t *testing.T) {
	handler := waitlist.NewHandler(violatingService{})
	resp := do(t, handler, http.MethodPost, "/api/v1/waitlist", `{"name":"X","blood_type":"A+","weight_kg":70}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	body := decode[struct {
		Error      string             `json:"error"`
		Violations []domain.Violation `json:"violations"`
	}](t, resp)
	assert.Contains(t, body.Error, "waitlist_order")
	require.Len(t, body.Violations, 1)
	assert.Equal(t, domain.SeverityBlock, body.Violations[0].Severity)
}

func TestHandlerWithoutService(t *testing.T) {
	handler := &waitlist.Handler{}
	resp := do(t, handler, http.MethodGet, "/api/v1/waitlist", "")
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}
