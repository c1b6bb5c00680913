package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"mortgage-rate-alerts/internal/apperr"
	"mortgage-rate-alerts/internal/monitor"
	"mortgage-rate-alerts/internal/ratealerts"
	"mortgage-rate-alerts/internal/storage"
)

const maxBodyBytes = 1 << 20

// Checker runs one monitor pass on demand.
type Checker interface {
	RunCheck(ctx context.Context) (monitor.Summary, error)
}

// AlertHandler serves the public and admin rate alert routes.
type AlertHandler struct {
	svc     *ratealerts.Service
	checker Checker
}

func NewAlertHandler(svc *ratealerts.Service, checker Checker) *AlertHandler {
	return &AlertHandler{svc: svc, checker: checker}
}

func (h *AlertHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input ratealerts.CreateInput
	if err := decodeBody(w, r, &input); err != nil {
		writeError(w, r, err)
		return
	}

	tenant := TenantFromContext(r.Context())
	res, err := h.svc.Create(r.Context(), input, ratealerts.RequestContext{
		IdempotencyKey: r.Header.Get(headerIdempotencyKey),
		BrokerID:       tenant.BrokerID,
		LoanOfficerID:  tenant.LoanOfficerID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if !res.Created {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"success":    true,
		"alertId":    res.AlertID,
		"message":    res.Message,
		"targetRate": number(res.TargetRate),
		"loanType":   res.LoanType,
		"email":      res.Email,
	})
}

func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	includeAll := false
	switch raw := r.URL.Query().Get("includeAll"); raw {
	case "", "false":
	case "true":
		includeAll = true
	default:
		writeError(w, r, apperr.Validation("Invalid request", []ratealerts.FieldError{
			{Field: "includeAll", Message: "must be true or false"},
		}))
		return
	}

	res, err := h.svc.List(r.Context(), r.URL.Query().Get("email"), includeAll)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"alerts":  toSummaryViews(res.Alerts),
		"total":   res.Total,
	})
}

func (h *AlertHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"alert":   toDetailView(detail),
	})
}

func (h *AlertHandler) Update(w http.ResponseWriter, r *http.Request) {
	var input ratealerts.UpdateInput
	if err := decodeBody(w, r, &input); err != nil {
		writeError(w, r, err)
		return
	}

	alert, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"alert":   toAlertView(alert),
	})
}

func (h *AlertHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Deactivate(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Rate alert deactivated successfully",
	})
}

func (h *AlertHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	page, perr := queryInt(r, "page")
	limit, lerr := queryInt(r, "limit")
	if perr != nil || lerr != nil {
		writeError(w, r, apperr.Validation("Invalid pagination", []ratealerts.FieldError{
			{Field: "page", Message: "page and limit must be integers"},
		}))
		return
	}

	res, err := h.svc.AdminList(r.Context(), page, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"alerts":     toAlertViews(res.Alerts),
		"pagination": res.Pagination,
		"stats": statsView{
			Total:     res.Stats.Total,
			Active:    res.Stats.Active,
			Triggered: res.Stats.Triggered,
		},
	})
}

func (h *AlertHandler) RunCheck(w http.ResponseWriter, r *http.Request) {
	summary, err := h.checker.RunCheck(r.Context())
	if errors.Is(err, monitor.ErrPassInProgress) {
		writeError(w, r, apperr.CheckInProgress())
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "Rate check completed",
		"checked":   summary.Checked,
		"triggered": summary.Triggered,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
	})
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	store storage.Pinger
}

func NewHealthHandler(store storage.Pinger) *HealthHandler {
	return &HealthHandler{store: store}
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("Request body is required", nil)
		}
		return apperr.Validation("Invalid JSON body", err.Error())
	}
	return nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
