package session

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"navsync/internal/platform/metrics"
	"navsync/internal/playback"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// Handler exposes session HTTP endpoints using go-chi.
type Handler struct {
	svc      *Service
	log      *slog.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
	origins  map[string]struct{}
}

// NewHandler returns a Handler that uses the given Service, Logger, and optional Metrics.
// Metrics may be nil to disable metric recording (e.g. in tests).
func NewHandler(svc *Service, log *slog.Logger, m *metrics.Metrics) *Handler {
	h := &Handler{svc: svc, log: log, metrics: m, origins: map[string]struct{}{}}
	if base := svc.opts.Playback.Base; base != nil && base.Host != "" {
		h.origins[originKey(base)] = struct{}{}
	}
	for _, o := range svc.opts.AllowedOrigins {
		if u, err := url.Parse(strings.TrimSpace(o)); err == nil && u.Host != "" {
			h.origins[originKey(u)] = struct{}{}
		}
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func originKey(u *url.URL) string {
	return strings.ToLower(u.Scheme + "://" + u.Host)
}

// checkOrigin accepts requests without an Origin header, from the server's
// own host, or from an allowed origin.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	_, ok := h.origins[originKey(u)]
	if !ok {
		h.log.Warn("page connection from foreign origin refused",
			slog.String("origin", origin),
			slog.String("session_id", string(sessionID(r))))
	}
	return ok
}

// Routes mounts the session endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/sessions", h.CreateSession)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Delete("/", h.EndSession)
		r.Put("/mode", h.SetMode)
		r.Post("/generate", h.Generate)
		r.Post("/transport", h.Transport)
		r.Put("/photos/{slot}", h.SelectPhoto)
		r.Delete("/photos/{slot}", h.ClearPhoto)
		r.Get("/ws", h.Connect)
	})
}

type errorBody struct {
	Error string `json:"error"`
}

type modeBody struct {
	Mode string `json:"mode"`
}

type photoBody struct {
	Name string `json:"name"`
}

type transportBody struct {
	Channel  string  `json:"channel"`
	Action   string  `json:"action"`
	Position float64 `json:"position"`
}

// CreateSession handles POST /sessions.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Create(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.IncSessionsStarted()
	}
	w.Header().Set("Location", "/sessions/"+string(v.ID))
	writeJSON(w, http.StatusCreated, v)
}

// GetSession handles GET /sessions/{id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Get(r.Context(), sessionID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// EndSession handles DELETE /sessions/{id}. Ending an ended session succeeds.
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	err := h.svc.End(r.Context(), id)
	switch {
	case err == nil:
		if h.metrics != nil {
			h.metrics.IncSessionsEnded()
		}
	case errors.Is(err, ErrSessionEnded):
	default:
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetMode handles PUT /sessions/{id}/mode. Body: {"mode": "realtime"}.
func (h *Handler) SetMode(w http.ResponseWriter, r *http.Request) {
	var body modeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.log.Debug("invalid mode body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid body"})
		return
	}
	mode, err := playback.ParseMode(body.Mode)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := h.svc.SetMode(r.Context(), sessionID(r), mode); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Generate handles POST /sessions/{id}/generate.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Generate(r.Context(), sessionID(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Transport handles POST /sessions/{id}/transport.
// Body: {"channel": "nav", "action": "seek", "position": 12.5}.
func (h *Handler) Transport(w http.ResponseWriter, r *http.Request) {
	var body transportBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid body"})
		return
	}
	ch, err := playback.ParseChannelID(body.Channel)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	a, err := playback.ParseAction(body.Action, body.Position)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := h.svc.Transport(r.Context(), sessionID(r), ch, a); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SelectPhoto handles PUT /sessions/{id}/photos/{slot}. Body: {"name": "lobby.jpg"}.
func (h *Handler) SelectPhoto(w http.ResponseWriter, r *http.Request) {
	slot, ok := photoSlot(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown photo slot"})
		return
	}
	var body photoBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "photo name required"})
		return
	}
	h.selectPhoto(w, r, slot, body.Name)
}

// ClearPhoto handles DELETE /sessions/{id}/photos/{slot}.
func (h *Handler) ClearPhoto(w http.ResponseWriter, r *http.Request) {
	slot, ok := photoSlot(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown photo slot"})
		return
	}
	h.selectPhoto(w, r, slot, "")
}

func (h *Handler) selectPhoto(w http.ResponseWriter, r *http.Request, slot playback.PhotoSlot, name string) {
	if err := h.svc.SelectPhoto(r.Context(), sessionID(r), slot, name); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Connect handles GET /sessions/{id}/ws and serves the page connection until
// it closes.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	remote, err := h.svc.Remote(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	if err := remote.Serve(r.Context(), conn); err != nil && !errors.Is(err, ErrSessionEnded) {
		h.log.Info("page connection closed",
			slog.String("session_id", string(id)),
			slog.String("error", err.Error()))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, ErrSessionEnded), errors.Is(err, playback.ErrReconfiguring):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, playback.ErrValidation):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: playback.ValidationNotice})
	default:
		h.log.Error("session request failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func sessionID(r *http.Request) SessionID {
	return SessionID(chi.URLParam(r, "id"))
}

func photoSlot(r *http.Request) (playback.PhotoSlot, bool) {
	switch slot := playback.PhotoSlot(chi.URLParam(r, "slot")); slot {
	case playback.SlotCurrent, playback.SlotDestination:
		return slot, true
	default:
		return "", false
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
