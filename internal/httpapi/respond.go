package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/hlog"

	"mortgage-rate-alerts/internal/apperr"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError serialises err into the error envelope. Errors that are not
// application errors become INTERNAL_ERROR and are logged with the request id.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, _ := apperr.As(err)

	if appErr.Status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().
			Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("code", appErr.Code).
			Msg("request failed")
	}

	writeJSON(w, appErr.Status, errorEnvelope{Error: errorBody{
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	}})
}
