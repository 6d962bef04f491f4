package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/airlink-bridge/internal/accessory"
	"github.com/nerrad567/airlink-bridge/internal/bridges/purelink"
	"github.com/nerrad567/airlink-bridge/internal/store"
)

// characteristicTimeout bounds a read or write when the appliance is
// connected but silent and no response timeout is configured.
const characteristicTimeout = 30 * time.Second

// ApplianceView is the JSON representation of an appliance.
type ApplianceView struct {
	ID           string                `json:"id"`
	Name         string                `json:"name"`
	UUID         string                `json:"uuid"`
	SerialNumber string                `json:"serial_number"`
	Model        string                `json:"model"`
	Address      string                `json:"address"`
	Capabilities purelink.Capabilities `json:"capabilities"`
	Link         purelink.LinkState    `json:"link"`
	Connected    bool                  `json:"connected"`
	LastKnown    *store.LastKnown      `json:"last_known,omitempty"`
}

// characteristicValue is the body of characteristic reads and writes.
type characteristicValue struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

func (s *Server) applianceView(a *purelink.Appliance) ApplianceView {
	id := a.Identity()
	stats := a.Engine().Stats()
	return ApplianceView{
		ID:           a.ID(),
		Name:         a.Name(),
		UUID:         a.UUID().String(),
		SerialNumber: id.Serial,
		Model:        id.Model,
		Address:      a.Address(),
		Capabilities: a.Capabilities(),
		Link:         stats.Link,
		Connected:    stats.Connected,
	}
}

// handleListAppliances lists registered appliances and those excluded at
// startup.
func (s *Server) handleListAppliances(w http.ResponseWriter, _ *http.Request) {
	apps := s.bridge.Appliances()
	views := make([]ApplianceView, 0, len(apps))
	for _, a := range apps {
		views = append(views, s.applianceView(a))
	}

	invalid := s.bridge.Invalid()
	if invalid == nil {
		invalid = []purelink.InvalidAppliance{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"appliances": views,
		"invalid":    invalid,
		"count":      len(views),
	})
}

// handleGetAppliance returns one appliance with its persisted last-known
// state. It never triggers a read from the appliance.
func (s *Server) handleGetAppliance(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookupAppliance(w, r)
	if !ok {
		return
	}

	view := s.applianceView(a)
	if s.states != nil {
		last, err := s.states.Load(r.Context(), a.ID())
		switch {
		case err == nil:
			view.LastKnown = &last
		case errors.Is(err, store.ErrNotFound):
		default:
			s.logger.Warn("loading last-known state failed", "appliance_id", a.ID(), "error", err)
		}
	}

	writeJSON(w, http.StatusOK, view)
}

// handleListCharacteristics describes the characteristics exposed for an
// appliance.
func (s *Server) handleListCharacteristics(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.lookupAccessory(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"characteristics": acc.Characteristics(),
	})
}

func (s *Server) handleReadCharacteristic(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.lookupAccessory(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")

	ctx, cancel := context.WithTimeout(r.Context(), characteristicTimeout)
	defer cancel()

	value, err := acc.Read(ctx, name)
	if err != nil {
		s.writeCharacteristicError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, characteristicValue{Name: name, Value: value})
}

func (s *Server) handleWriteCharacteristic(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.lookupAccessory(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")

	var body struct {
		Value any `json:"value"`
	}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if body.Value == nil {
		writeBadRequest(w, "value is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), characteristicTimeout)
	defer cancel()

	value, err := acc.Write(ctx, name, body.Value)
	if err != nil {
		s.writeCharacteristicError(w, r, err)
		return
	}

	s.logger.Info("characteristic written",
		"appliance_id", acc.Appliance().ID(),
		"characteristic", name,
		"request_id", r.Context().Value(ctxKeyRequestID),
	)
	writeJSON(w, http.StatusOK, characteristicValue{Name: name, Value: value})
}

func (s *Server) lookupAppliance(w http.ResponseWriter, r *http.Request) (*purelink.Appliance, bool) {
	id := chi.URLParam(r, "id")
	a, err := s.bridge.Appliance(id)
	if err != nil {
		writeNotFound(w, "appliance not found: "+id)
		return nil, false
	}
	return a, true
}

func (s *Server) lookupAccessory(w http.ResponseWriter, r *http.Request) (*accessory.Accessory, bool) {
	id := chi.URLParam(r, "id")
	acc, ok := s.accessories[id]
	if !ok {
		writeNotFound(w, "appliance not found: "+id)
		return nil, false
	}
	return acc, true
}
