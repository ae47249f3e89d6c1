package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sweeney/fancoil-controller/internal/message"
)

// Request errors. Each maps to a JSON error body and status code.
var (
	ErrUnauthorized   = errors.New("invalid token")
	ErrInvalidRequest = errors.New("invalid access info")
	ErrInvalidInfo    = errors.New("invalid information")
	ErrUnavailable    = errors.New("unavailable")
)

// ErrorJSON is the body of every failed request.
type ErrorJSON struct {
	Error string `json:"error"`
}

// RemoteJSON is the body of a successful remote request. Result is set
// for get_state only.
type RemoteJSON struct {
	Action string         `json:"action"`
	Value  any            `json:"value,omitempty"`
	Result message.Params `json:"result,omitempty"`
}

// PanelRequest is the body of POST /panel. Absent fields are unchanged.
type PanelRequest struct {
	Token      string   `json:"token"`
	TargetTemp *float64 `json:"target_temp"`
	FanSpeed   *int     `json:"fan_speed"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrInvalidInfo):
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), ErrorJSON{Error: err.Error()})
}
