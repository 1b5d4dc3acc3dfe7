package api

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/hmccu/homematic-core/internal/entity"
)

// deviceView is the JSON shape of a device summary.
type deviceView struct {
	Address    string `json:"address"`
	Interface  string `json:"interface"`
	Type       string `json:"type"`
	Firmware   string `json:"firmware,omitempty"`
	Entities   int    `json:"entities"`
	Composites int    `json:"composites"`
}

// recordView is the JSON shape of one materialised entity.
type recordView struct {
	UniqueID       string `json:"unique_id"`
	ChannelAddress string `json:"channel_address"`
	Channel        int    `json:"channel"`
	Paramset       string `json:"paramset"`
	Parameter      string `json:"parameter"`
	Kind           string `json:"kind,omitempty"`
	Usage          string `json:"usage"`
	EventType      string `json:"event_type,omitempty"`
	Wraps          string `json:"wraps,omitempty"`
}

// compositeFieldView names one bound field of a composite.
type compositeFieldView struct {
	Channel  int    `json:"channel"`
	Field    string `json:"field"`
	UniqueID string `json:"unique_id"`
}

// compositeView is the JSON shape of a composite entity.
type compositeView struct {
	UniqueID       string               `json:"unique_id"`
	Kind           string               `json:"kind"`
	PrimaryChannel int                  `json:"primary_channel"`
	Fields         []compositeFieldView `json:"fields"`
}

func newDeviceView(d *entity.Device) deviceView {
	return deviceView{
		Address:    d.Address,
		Interface:  d.Interface,
		Type:       d.Type,
		Firmware:   d.Firmware,
		Entities:   len(d.Records()),
		Composites: len(d.Composites()),
	}
}

func newRecordView(r *entity.Record) recordView {
	return recordView{
		UniqueID:       r.UniqueID,
		ChannelAddress: r.ChannelAddress,
		Channel:        int(r.Channel),
		Paramset:       string(r.ParamsetKey),
		Parameter:      r.Parameter,
		Kind:           string(r.Kind),
		Usage:          string(r.Usage),
		EventType:      string(r.EventType),
		Wraps:          r.Wraps,
	}
}

func newCompositeView(c *entity.Composite) compositeView {
	view := compositeView{
		UniqueID:       c.UniqueID,
		Kind:           string(c.Kind),
		PrimaryChannel: int(c.PrimaryChannel),
	}
	for ref, r := range c.Fields() {
		view.Fields = append(view.Fields, compositeFieldView{
			Channel:  int(ref.Channel),
			Field:    string(ref.Field),
			UniqueID: r.UniqueID,
		})
	}
	sort.Slice(view.Fields, func(i, j int) bool {
		if view.Fields[i].Channel != view.Fields[j].Channel {
			return view.Fields[i].Channel < view.Fields[j].Channel
		}
		return view.Fields[i].Field < view.Fields[j].Field
	})
	return view
}

// handleListDevices returns summaries of all managed devices.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.central.Devices()

	views := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		views = append(views, newDeviceView(d))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Address < views[j].Address })

	writeJSON(w, http.StatusOK, map[string]any{"devices": views, "count": len(views)})
}

// handleGetDevice returns one device summary by address.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := s.central.Device(chi.URLParam(r, "address"))
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, newDeviceView(d))
}

// handleDeviceAvailability reports whether a device is currently
// reachable. An unknown reachability state counts as available.
func (s *Server) handleDeviceAvailability(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if _, ok := s.central.Device(address); !ok {
		writeNotFound(w, "device not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"address":   address,
		"available": s.central.Available(r.Context(), address),
	})
}

// handleDeviceEntities returns all materialised entities of one device.
func (s *Server) handleDeviceEntities(w http.ResponseWriter, r *http.Request) {
	d, ok := s.central.Device(chi.URLParam(r, "address"))
	if !ok {
		writeNotFound(w, "device not found")
		return
	}

	records := d.Records()
	views := make([]recordView, 0, len(records))
	for _, rec := range records {
		views = append(views, newRecordView(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": views, "count": len(views)})
}

// handleDeviceComposites returns the composite entities of one device.
func (s *Server) handleDeviceComposites(w http.ResponseWriter, r *http.Request) {
	d, ok := s.central.Device(chi.URLParam(r, "address"))
	if !ok {
		writeNotFound(w, "device not found")
		return
	}

	composites := d.Composites()
	views := make([]compositeView, 0, len(composites))
	for _, c := range composites {
		views = append(views, newCompositeView(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"composites": views, "count": len(views)})
}

// handleListEntities returns entities across all devices.
//
// Query parameters:
//   - kind: filter by entity kind (switch, cover, ...)
//   - usage: filter by usage classification
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	kind := entity.Kind(r.URL.Query().Get("kind"))
	usage := entity.Usage(r.URL.Query().Get("usage"))

	views := make([]recordView, 0)
	for _, d := range s.central.Devices() {
		for _, rec := range d.Records() {
			if kind != "" && rec.Kind != kind {
				continue
			}
			if usage != "" && rec.Usage != usage {
				continue
			}
			views = append(views, newRecordView(rec))
		}
	}
	sort.Slice(views, func(i, j int) bool { return views[i].UniqueID < views[j].UniqueID })

	writeJSON(w, http.StatusOK, map[string]any{"entities": views, "count": len(views)})
}
