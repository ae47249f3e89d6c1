package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/sweeney/fancoil-controller/internal/message"
)

const maxBody = 64 << 10

type remoteEndpoint struct {
	path   string
	action message.Action
	field  string // body field holding the value, empty for get_state
}

var remoteEndpoints = []remoteEndpoint{
	{path: "/turn_smartcoil", action: message.ActionSwitch, field: "switch"},
	{path: "/set_smartcoil_temperature", action: message.ActionSetTemperature, field: "temperature"},
	{path: "/set_smartcoil_speed", action: message.ActionSetSpeed, field: "speed"},
	{path: "/get_smartcoil_state", action: message.ActionGetState},
}

func (s *Server) handleRemote(ep remoteEndpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		value, result, err := s.remote(r, ep)
		s.metrics.RemoteRequests.WithLabelValues(string(ep.action), outcome(err)).Inc()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, RemoteJSON{Action: string(ep.action), Value: value, Result: result})
	}
}

func (s *Server) remote(r *http.Request, ep remoteEndpoint) (any, message.Params, error) {
	var body map[string]any
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, nil, ErrInvalidRequest
	}
	token, ok := body["token"].(string)
	if !ok {
		return nil, nil, ErrInvalidRequest
	}
	if err := message.CheckToken(s.token, token); err != nil {
		s.log.Info("rejected remote request", zap.String("action", string(ep.action)), zap.String("remote", r.RemoteAddr))
		return nil, nil, ErrUnauthorized
	}

	var value any
	if ep.field != "" {
		value = body[ep.field]
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	result, err := message.Submit(ctx, s.out, ep.action, value)
	if err != nil {
		return nil, nil, s.classify(string(ep.action), err)
	}
	return value, result, nil
}

func (s *Server) handlePanel(w http.ResponseWriter, r *http.Request) {
	err := s.panelChange(r)
	s.metrics.RemoteRequests.WithLabelValues("panel", outcome(err)).Inc()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, RemoteJSON{Action: "panel"})
}

func (s *Server) panelChange(r *http.Request) error {
	var req PanelRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil {
		return ErrInvalidRequest
	}
	if err := message.CheckToken(s.token, req.Token); err != nil {
		return ErrUnauthorized
	}
	if req.TargetTemp == nil && req.FanSpeed == nil {
		return ErrInvalidInfo
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	if err := s.panel.Interact(ctx, req.TargetTemp, req.FanSpeed); err != nil {
		return s.classify("panel", err)
	}
	return nil
}

// classify maps a submission error onto the error returned to the caller.
func (s *Server) classify(action string, err error) error {
	if errors.Is(err, message.ErrBadParam) || errors.Is(err, message.ErrMissingParam) {
		s.log.Debug("invalid remote request", zap.String("action", action), zap.Error(err))
		return ErrInvalidInfo
	}
	s.log.Warn("remote request failed", zap.String("action", action), zap.Error(err))
	return ErrUnavailable
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrInvalidInfo):
		return "invalid"
	default:
		return "error"
	}
}
