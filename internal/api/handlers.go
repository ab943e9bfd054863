package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dokzlo13/nvxd/internal/adapter"
)

const maxBodySize = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "device_id": s.engine.DeviceID()})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.engine.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "waiting for first poll"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleView(w http.ResponseWriter, _ *http.Request) {
	view, err := s.engine.Snapshot()
	if err != nil {
		writeAdapterError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": s.engine.DeviceID(),
		"ready":     s.engine.Ready(),
		"last_poll": s.engine.LastPoll(),
		"filters":   s.engine.Filters(),
	})
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	if s.poller == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "on-demand polling is disabled")
		return
	}
	if err := s.poller.PollNow(r.Context()); err != nil {
		writeAdapterError(w, err)
		return
	}
	s.handleView(w, r)
}

// handleControl accepts a single {"property","value"} object or a list of them.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "failed to read request body")
		return
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "empty request body")
		return
	}

	if body[0] == '[' {
		var reqs []adapter.ControlRequest
		if err := json.Unmarshal(body, &reqs); err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON: "+err.Error())
			return
		}
		err = s.engine.ApplyBatch(r.Context(), reqs)
	} else {
		var req adapter.ControlRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON: "+err.Error())
			return
		}
		if req.Property == "" {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "property is required")
			return
		}
		err = s.engine.Apply(r.Context(), req.Property, req.Value)
	}
	if err != nil {
		writeAdapterError(w, err)
		return
	}
	s.handleView(w, r)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	d, err := s.engine.Ping(r.Context())
	if err != nil {
		if errors.Is(err, adapter.ErrPingDisabled) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, ErrCodeUnreachable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"latency_ms": d.Milliseconds()})
}
