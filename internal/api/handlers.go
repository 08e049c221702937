package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/skobkin/meshbridge/internal/actions"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type nodeResponse struct {
	NodeID      string    `json:"node_id"`
	DisplayName string    `json:"display_name"`
	LongName    string    `json:"long_name,omitempty"`
	ShortName   string    `json:"short_name,omitempty"`
	Local       bool      `json:"local"`
	LastHeardAt time.Time `json:"last_heard_at,omitzero"`
}

type messageResponse struct {
	ID        int64     `json:"id"`
	PacketID  uint32    `json:"packet_id,omitempty"`
	Direction string    `json:"direction"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Channel   uint8     `json:"channel"`
	Text      string    `json:"text"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

type eventResponse struct {
	ID       string    `json:"id"`
	Kind     string    `json:"kind"`
	At       time.Time `json:"at"`
	PacketID uint32    `json:"packet_id,omitempty"`
	State    string    `json:"state,omitempty"`
	Reason   string    `json:"reason,omitempty"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// handleHealth answers 503 when any registered dependency check fails.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	code := http.StatusOK
	if len(s.health) > 0 {
		resp.Checks = make(map[string]string, len(s.health))
	}
	for name, check := range s.health {
		if err := check(r.Context()); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.bridge.State())
}

func (s *Server) handleConnection(w http.ResponseWriter, _ *http.Request) {
	if s.conn == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "connection status unavailable")
		return
	}
	writeJSON(w, http.StatusOK, s.conn.CurrentConnStatus())
}

func (s *Server) handleNodes(w http.ResponseWriter, _ *http.Request) {
	out := []nodeResponse{}
	if s.nodes != nil {
		for _, n := range s.nodes.SnapshotSorted() {
			out = append(out, nodeResponse{
				NodeID:      n.NodeID,
				DisplayName: n.DisplayName(),
				LongName:    n.LongName,
				ShortName:   n.ShortName,
				Local:       n.Local,
				LastHeardAt: n.LastHeardAt,
			})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if s.messages == nil {
		writeNotFound(w, "journal is disabled")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	msgs, err := s.messages.ListRecent(r.Context(), limit)
	if err != nil {
		s.logger.Error("list messages", "error", err)
		writeInternalError(w, "failed to list messages")
		return
	}
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageResponse{
			ID:        m.LocalID,
			PacketID:  m.PacketID,
			Direction: m.Direction.String(),
			From:      m.From,
			To:        m.To,
			Channel:   m.Channel,
			Text:      m.Body,
			Status:    m.Status.String(),
			Reason:    m.Reason,
			At:        m.At,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeNotFound(w, "journal is disabled")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	events, err := s.events.ListRecent(r.Context(), r.URL.Query().Get("kind"), limit)
	if err != nil {
		s.logger.Error("list events", "error", err)
		writeInternalError(w, "failed to list events")
		return
	}
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, eventResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "action")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return
		}
		writeBadRequest(w, "failed to read request body")
		return
	}

	action, err := actions.Parse(name, body)
	if err != nil {
		if errors.Is(err, actions.ErrUnknownAction) {
			writeNotFound(w, err.Error())
			return
		}
		writeBadRequest(w, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), actionTimeout)
	defer cancel()
	res, err := actions.Execute(ctx, s.bridge, action)
	if err != nil {
		status, code := actionStatus(err)
		s.logger.Info("http action rejected", "action", name, "error", err, "request_id", r.Context().Value(ctxKeyRequestID))
		writeError(w, status, code, err.Error())
		return
	}
	s.logger.Info("http action done", "action", name, "packet_id", res.PacketID, "subject", r.Context().Value(ctxKeySubject))
	writeJSON(w, http.StatusOK, res)
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		writeBadRequest(w, "limit must be a positive integer")
		return 0, false
	}
	return min(limit, maxListLimit), true
}
