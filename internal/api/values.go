package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hmccu/homematic-core/internal/cache"
	"github.com/hmccu/homematic-core/internal/central"
	"github.com/hmccu/homematic-core/internal/entity"
)

// valueView is the JSON shape of a parameter read.
type valueView struct {
	Address   string `json:"address"`
	Channel   int    `json:"channel"`
	Paramset  string `json:"paramset"`
	Parameter string `json:"parameter"`
	Value     any    `json:"value"`
}

// writeRequest is the JSON body of a parameter write.
type writeRequest struct {
	Value any `json:"value"`
}

// parseChannel converts the channel path segment. Channel "d" addresses
// device-level parameters.
func parseChannel(raw string) (entity.ChannelNo, error) {
	if raw == "d" {
		return entity.NoChannel, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	return entity.ChannelNo(n), nil
}

// handleGetValue reads one parameter through the value cache.
//
// Query parameters:
//   - paramset: paramset key, default VALUES
func (s *Server) handleGetValue(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	parameter := chi.URLParam(r, "parameter")

	channel, err := parseChannel(chi.URLParam(r, "channel"))
	if err != nil {
		writeBadRequest(w, "invalid channel")
		return
	}

	paramset := entity.ParamsetValues
	if raw := r.URL.Query().Get("paramset"); raw != "" {
		paramset = entity.ParamsetKey(strings.ToUpper(raw))
	}

	value, err := s.central.Value(r.Context(), address, channel, paramset, parameter)
	if err != nil {
		switch {
		case errors.Is(err, central.ErrUnknownDevice):
			writeNotFound(w, "device not found")
		case errors.Is(err, cache.ErrUnavailable):
			writeUnavailable(w, "value unavailable from backend")
		default:
			writeInternalError(w, "failed to read value")
		}
		return
	}

	writeJSON(w, http.StatusOK, valueView{
		Address:   address,
		Channel:   int(channel),
		Paramset:  string(paramset),
		Parameter: parameter,
		Value:     value,
	})
}

// handleSetValue writes one VALUES parameter through the orchestrator.
func (s *Server) handleSetValue(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	parameter := chi.URLParam(r, "parameter")

	channel, err := parseChannel(chi.URLParam(r, "channel"))
	if err != nil {
		writeBadRequest(w, "invalid channel")
		return
	}

	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.central.SetValue(r.Context(), address, channel, parameter, req.Value); err != nil {
		switch {
		case errors.Is(err, central.ErrUnknownDevice):
			writeNotFound(w, "device not found")
		default:
			writeUnavailable(w, "write rejected by backend")
		}
		return
	}

	writeJSON(w, http.StatusOK, valueView{
		Address:   address,
		Channel:   int(channel),
		Paramset:  string(entity.ParamsetValues),
		Parameter: parameter,
		Value:     req.Value,
	})
}
