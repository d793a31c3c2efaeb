// Package waitlist exposes the waitlist, organ registry and allocation log over HTTP.
package waitlist

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"transplantcore/internal/blob"
	"transplantcore/internal/core"
	"transplantcore/pkg/domain"
)

const (
	waitlistPath    = "/api/v1/waitlist"
	organsPath      = "/api/v1/organs"
	allocationsPath = "/api/v1/allocations"
)

// Service is the subset of core.Service the handler drives.
type Service interface {
	Enqueue(ctx context.Context, patient domain.Patient) (domain.Entry, domain.Result, error)
	RemoveHighest(ctx context.Context) (domain.Patient, bool, error)
	RemovePatient(ctx context.Context, id string) (domain.Patient, bool, error)
	Reprioritize(ctx context.Context, id string) (domain.Entry, bool, error)
	Position(id string) (int, bool)
	Waitlist() []domain.RankedEntry
	Organs() []domain.Organ
	RegisterOrgan(ctx context.Context, organ domain.Organ) (domain.Organ, domain.Result, error)
	Allocate(ctx context.Context, organID string) (domain.Allocation, bool, domain.Result, error)
	ListAllocations() []domain.Allocation
	ExportAllocations(ctx context.Context, store blob.Store) (blob.Info, error)
}

var _ Service = (*core.Service)(nil)

// Handler serves the /api/v1 waitlist routes. Reports, when set, enables
// POST /api/v1/allocations/export.
type Handler struct {
	Service Service
	Reports blob.Store
}

// NewHandler constructs a waitlist HTTP handler.
func NewHandler(svc Service) *Handler {
	return &Handler{Service: svc}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeError(w, http.StatusInternalServerError, "waitlist service not configured")
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == waitlistPath:
		h.handleWaitlist(w, r)
	case strings.HasPrefix(path, waitlistPath+"/"):
		h.handlePatient(w, r, strings.TrimPrefix(path, waitlistPath+"/"))
	case path == organsPath:
		h.handleOrgans(w, r)
	case strings.HasPrefix(path, organsPath+"/"):
		h.handleOrgan(w, r, strings.TrimPrefix(path, organsPath+"/"))
	case path == allocationsPath:
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"allocations": nonNil(h.Service.ListAllocations())})
	case path == allocationsPath+"/export":
		h.handleExport(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleWaitlist(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"waitlist": nonNil(h.Service.Waitlist())})
	case http.MethodPost:
		var patient domain.Patient
		if err := decodeBody(r, &patient); err != nil {
			writeError(w, http.StatusBadRequest, "invalid patient payload")
			return
		}
		entry, res, err := h.Service.Enqueue(r.Context(), patient)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		position, _ := h.Service.Position(entry.Patient.ID)
		writeJSON(w, http.StatusCreated, map[string]any{
			"entry":      entry,
			"position":   position,
			"violations": nonNil(res.Violations),
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handlePatient(w http.ResponseWriter, r *http.Request, remainder string) {
	// Only POST pops; other methods on "pop" address a patient with that ID.
	if remainder == "pop" && r.Method == http.MethodPost {
		patient, ok, err := h.Service.RemoveHighest(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, "waitlist is empty")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"patient": patient})
		return
	}

	segments := strings.Split(remainder, "/")
	id := segments[0]
	if id == "" || len(segments) > 2 {
		writeError(w, http.StatusNotFound, "waitlist endpoint not found")
		return
	}

	if len(segments) == 1 {
		if r.Method != http.MethodDelete {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		patient, ok, err := h.Service.RemovePatient(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, "patient not on waitlist")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"patient": patient})
		return
	}

	switch segments[1] {
	case "reprioritize":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		entry, ok, err := h.Service.Reprioritize(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, "patient not on waitlist")
			return
		}
		position, _ := h.Service.Position(id)
		writeJSON(w, http.StatusOK, map[string]any{"entry": entry, "position": position})
	case "position":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		position, ok := h.Service.Position(id)
		if !ok {
			writeError(w, http.StatusNotFound, "patient not on waitlist")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "position": position})
	default:
		writeError(w, http.StatusNotFound, "waitlist endpoint not found")
	}
}

func (h *Handler) handleOrgans(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"organs": nonNil(h.Service.Organs())})
	case http.MethodPost:
		var organ domain.Organ
		if err := decodeBody(r, &organ); err != nil {
			writeError(w, http.StatusBadRequest, "invalid organ payload")
			return
		}
		created, _, err := h.Service.RegisterOrgan(r.Context(), organ)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"organ": created})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type allocateResponse struct {
	Matched    bool               `json:"matched"`
	Allocation *domain.Allocation `json:"allocation,omitempty"`
}

func (h *Handler) handleOrgan(w http.ResponseWriter, r *http.Request, remainder string) {
	id, action, ok := strings.Cut(remainder, "/")
	if !ok || id == "" || action != "allocate" {
		writeError(w, http.StatusNotFound, "organ endpoint not found")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	allocation, matched, _, err := h.Service.Allocate(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !matched {
		writeJSON(w, http.StatusOK, allocateResponse{})
		return
	}
	writeJSON(w, http.StatusCreated, allocateResponse{Matched: true, Allocation: &allocation})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	if h.Reports == nil {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	info, err := h.Service.ExportAllocations(r.Context(), h.Reports)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"report": info})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	return nil
}

// writeServiceError maps domain errors onto status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	var violation domain.RuleViolationError
	switch {
	case errors.As(err, &violation):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      err.Error(),
			"violations": violation.Result.Violations,
		})
	case errors.Is(err, domain.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case domain.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case domain.IsDuplicate(err), errors.Is(err, domain.ErrOrganAllocated), errors.Is(err, blob.ErrExists):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
