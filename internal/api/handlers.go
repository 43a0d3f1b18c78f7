package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/bioconsole/internal/audit"
	"github.com/nerrad567/bioconsole/internal/reactor"
)

// Audit sources for operator intents.
const (
	sourceAPI       = "api"
	sourceWebSocket = "ws"
)

// EditRequest is the body of PUT /channels/{channel}/pending.
type EditRequest struct {
	Value *float64 `json:"value"`
}

func (s *Server) handleGetState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleGetTelemetry(w http.ResponseWriter, _ *http.Request) {
	samples := s.session.Telemetry()
	writeJSON(w, http.StatusOK, map[string]any{
		"samples": samples,
		"count":   len(samples),
	})
}

func (s *Server) handleListChannels(w http.ResponseWriter, _ *http.Request) {
	snap := s.session.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"channels":     snap.Channels,
		"connectivity": snap.Connectivity,
	})
}

func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	ch := reactor.Channel(chi.URLParam(r, "channel"))
	view, ok := s.session.Snapshot().Channel(ch)
	if !ok {
		writeNotFound(w, "unknown channel: "+string(ch))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleEditChannel(w http.ResponseWriter, r *http.Request) {
	ch := reactor.Channel(chi.URLParam(r, "channel"))

	var req EditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Value == nil {
		writeBadRequest(w, "value is required")
		return
	}

	view, err := s.edit(r.Context(), ch, *req.Value, sourceAPI)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCommitChannel(w http.ResponseWriter, r *http.Request) {
	ch := reactor.Channel(chi.URLParam(r, "channel"))

	cmd, err := s.commit(r.Context(), ch, sourceAPI)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, cmd)
}

// handleListCommands returns the audit trail, newest first.
//
// Query parameters: action, channel, limit (default 50, max 200), offset.
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit trail not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:  q.Get("action"),
		Channel: q.Get("channel"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "offset must be an integer")
			return
		}
		filter.Offset = n
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list commands")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// edit applies an operator edit and returns the updated channel view. It
// is shared by the REST and WebSocket paths.
func (s *Server) edit(ctx context.Context, ch reactor.Channel, value float64, source string) (reactor.ChannelView, error) {
	ctx, cancel := context.WithTimeout(ctx, intentTimeout)
	defer cancel()

	if err := s.session.Edit(ctx, ch, value); err != nil {
		return reactor.ChannelView{}, err
	}
	if s.recorder != nil {
		s.recorder.RecordEdit(ch, value, source)
	}
	view, _ := s.session.Snapshot().Channel(ch)
	return view, nil
}

// commit publishes the pending setpoint of ch. Rejections of a known
// channel are recorded in the audit trail.
func (s *Server) commit(ctx context.Context, ch reactor.Channel, source string) (reactor.OutboundCommand, error) {
	ctx, cancel := context.WithTimeout(ctx, intentTimeout)
	defer cancel()

	cmd, err := s.session.Commit(ctx, ch)
	if err != nil {
		if s.recorder != nil && !errors.Is(err, reactor.ErrUnknownChannel) {
			s.recorder.RecordRejected(ch, source, err)
		}
		return reactor.OutboundCommand{}, err
	}
	return cmd, nil
}
