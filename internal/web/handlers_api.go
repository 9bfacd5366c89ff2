package web

import (
	"errors"
	"net/http"
	"time"

	"paradox-go-home/internal/panel"
	"paradox-go-home/internal/state"
)

func (s *Server) handleAPIState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.source.Snapshot())
}

// handleAPIValue serves one property, named like its MQTT topic:
// /api/state/zone3/open.
func (s *Server) handleAPIValue(w http.ResponseWriter, r *http.Request) {
	node, property := r.PathValue("node"), r.PathValue("property")
	kind, id, ok := state.ParseNodeID(node)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown node")
		return
	}
	v, ok := s.source.Snapshot().Value(kind, id, property)
	if !ok {
		s.writeError(w, http.StatusNotFound, "value not available")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"node": node, "property": property, "value": v})
}

type healthResponse struct {
	State             string     `json:"state"`
	SoftwareConnected bool       `json:"software_connected"`
	MessageTime       *time.Time `json:"message_time,omitempty"`
	PanelTime         *time.Time `json:"panel_time,omitempty"`
}

// handleAPIHealth answers 503 until the panel session is connected.
func (s *Server) handleAPIHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.source.Snapshot()
	resp := healthResponse{
		State:             s.panel.State(),
		SoftwareConnected: snap.Panel.Flags.SoftwareConnected,
		MessageTime:       snap.Panel.MessageTime,
		PanelTime:         snap.Panel.PanelTime,
	}
	status := http.StatusOK
	if resp.State != panel.StateConnected {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}

// handleAPICommand accepts {"kind","id","property","value"}, the same
// shape as an MQTT set message.
func (s *Server) handleAPICommand(w http.ResponseWriter, r *http.Request) {
	var cmd panel.Command
	if err := decodeBody(w, r, &cmd); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.panel.Submit(cmd); err != nil {
		if errors.Is(err, panel.ErrInvalidCommand) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("submit command", "command", cmd.String(), "err", err)
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.logger.Info("command accepted", "command", cmd.String(), "remote", r.RemoteAddr)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "command": cmd.String()})
}

func (s *Server) handleAPIVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}
