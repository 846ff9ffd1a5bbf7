package session

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"podcast-listener/internal/research"
	"podcast-listener/internal/transcript"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The display is served from wherever the operator hosts it.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler exposes session HTTP endpoints using go-chi.
type Handler struct {
	svc *Service
	log *slog.Logger
}

// NewHandler returns a Handler that uses the given Service and Logger.
func NewHandler(svc *Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Routes mounts the session endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/sessions", h.Create)
	r.Route("/sessions/{session_id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Delete)
		r.Post("/episode", h.LoadEpisode)
		r.Post("/tick", h.Tick)
		r.Post("/research", h.SubmitResearch)
		r.Get("/watch", h.Watch)
	})
}

// Create handles POST /sessions.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Create()
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: string(sess.ID())})
}

// Get handles GET /sessions/{session_id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot(sessionID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Delete handles DELETE /sessions/{session_id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	if err := h.svc.Close(id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LoadEpisode handles POST /sessions/{session_id}/episode.
// Body: { "file_id": "episode-12.mp3" }.
func (h *Handler) LoadEpisode(w http.ResponseWriter, r *http.Request) {
	var req episodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.FileID) == "" {
		h.log.Debug("invalid episode body")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.svc.LoadEpisode(sessionID(r), req.FileID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Tick handles POST /sessions/{session_id}/tick.
// Body: { "current_time": 312.4, "playing": true }.
func (h *Handler) Tick(w http.ResponseWriter, r *http.Request) {
	var req tickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CurrentTime == nil || *req.CurrentTime < 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.svc.Tick(sessionID(r), *req.CurrentTime, req.Playing); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// SubmitResearch handles POST /sessions/{session_id}/research.
// Body: { "text": "the selected statement" }.
func (h *Handler) SubmitResearch(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	id, err := h.svc.SubmitManual(sessionID(r), req.Text)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, idResponse{ID: id})
}

// Watch handles GET /sessions/{session_id}/watch. It upgrades to a websocket
// and writes a JSON snapshot after every state change until either side
// goes away.
func (h *Handler) Watch(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	sess, err := h.svc.Get(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	updates, cancel, err := sess.Watch()
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		h.log.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	// Reads only serve control frames; any error ends the subscription.
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.log.Debug("watch read error", slog.String("session_id", string(id)), slog.String("error", err.Error()))
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case snap, ok := <-updates:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func sessionID(r *http.Request) ID {
	return ID(chi.URLParam(r, "session_id"))
}

// writeError maps domain errors to status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, ErrClosed), errors.Is(err, transcript.ErrInitialized):
		w.WriteHeader(http.StatusConflict)
	case errors.Is(err, research.ErrEmptyQuestion):
		w.WriteHeader(http.StatusBadRequest)
	default:
		h.log.Error("session request failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
