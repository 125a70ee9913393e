package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PabloGalante/deal-assistant/internal/app/dealchat"
	"github.com/PabloGalante/deal-assistant/internal/app/sessions"
	"github.com/PabloGalante/deal-assistant/internal/domain"
	"github.com/PabloGalante/deal-assistant/internal/observability"
)

const maxAudioBytes = 10 << 20

type Server struct {
	svc            *sessions.Service
	chat           domain.ChatExchanger
	limiter        *RateLimiter
	defaultVariant domain.Variant
}

type Option func(*Server)

// WithDealChat serves POST /deal-chat/ from chat.
func WithDealChat(chat domain.ChatExchanger) Option {
	return func(s *Server) { s.chat = chat }
}

// WithDefaultVariant sets the variant used when a create request names none.
func WithDefaultVariant(v domain.Variant) Option {
	return func(s *Server) { s.defaultVariant = v }
}

// WithRateLimiter throttles every route per client IP.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(s *Server) { s.limiter = rl }
}

func NewServer(svc *sessions.Service, opts ...Option) http.Handler {
	s := &Server{svc: svc, defaultVariant: domain.VariantLocal}
	for _, opt := range opts {
		opt(s)
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// /sessions → create session (POST)
	mux.HandleFunc("/sessions", s.handleSessions)

	// /sessions/{id}          → GET: timeline
	// /sessions/{id}/messages → POST: send message
	// /sessions/{id}/voice    → POST: send audio
	// /sessions/{id}/reset    → POST: start over
	mux.HandleFunc("/sessions/", s.handleSessionWithID)

	mux.HandleFunc("/deal-chat/", s.handleDealChat)
	mux.HandleFunc("/stats/funnel", s.handleFunnel)
	mux.HandleFunc("/archive", s.handleArchive)

	middlewares := []func(http.Handler) http.Handler{withLogging}
	if s.limiter != nil {
		middlewares = append(middlewares, s.limiter.Middleware)
	}
	middlewares = append(middlewares, withRequestID, withCORS)
	return chainMiddlewares(mux, middlewares...)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type createSessionRequest struct {
	UserID  string `json:"user_id"`
	Variant string `json:"variant,omitempty"`
}

type sessionResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Variant   string    `json:"variant"`
	CreatedAt time.Time `json:"created_at"`
}

type createSessionResponse struct {
	Session sessionResponse `json:"session"`
	Turns   []domain.Turn   `json:"turns"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type sendMessageResponse struct {
	Turns   []domain.Turn `json:"turns"`
	State   string        `json:"state,omitempty"`
	Created *createdDeal  `json:"created_deal,omitempty"`
}

type createdDeal struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type voiceResponse struct {
	Transcript string `json:"transcript"`
	sendMessageResponse
}

type getSessionResponse struct {
	Session          sessionResponse `json:"session"`
	Turns            []domain.Turn   `json:"turns"`
	State            string          `json:"state,omitempty"`
	AwaitingResponse bool            `json:"awaiting_response"`
	Listening        bool            `json:"listening"`
	Unavailable      bool            `json:"unavailable"`
}

type dealChatRequest struct {
	Message string          `json:"message"`
	State   json.RawMessage `json:"state"`
}

type dealChatResponse struct {
	AssistantMessage string          `json:"assistantMessage"`
	State            json.RawMessage `json:"state"`
}

// ─────────────────────────────────────────────
// Basic routing
// ─────────────────────────────────────────────

// /sessions
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateSession(w, r)
	default:
		methodNotAllowed(w)
	}
}

// /sessions/{id}[/messages|/voice|/reset]
func (s *Server) handleSessionWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/sessions/")
	parts := strings.Split(path, "/")
	id := domain.SessionID(parts[0])

	if id == "" || len(parts) > 2 {
		http.NotFound(w, r)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		s.handleGetSession(w, r, id)
		return
	}

	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	switch parts[1] {
	case "messages":
		s.handleSendMessage(w, r, id)
	case "voice":
		s.handleSendVoice(w, r, id)
	case "reset":
		s.handleReset(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	if req.UserID == "" {
		badRequest(w, "user_id is required")
		return
	}

	variant := s.defaultVariant
	if v := strings.ToLower(strings.TrimSpace(req.Variant)); v != "" {
		variant = domain.Variant(v)
	}

	out, err := s.svc.StartSession(r.Context(), sessions.StartSessionInput{
		UserID:  domain.UserID(req.UserID),
		Variant: variant,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createSessionResponse{
		Session: toSessionResponse(out.Session),
		Turns:   nonNil(out.Turns),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	tl, err := s.svc.GetSessionTimeline(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, getSessionResponse{
		Session:          toSessionResponse(tl.Session),
		Turns:            nonNil(tl.Turns),
		State:            tl.State,
		AwaitingResponse: tl.AwaitingResponse,
		Listening:        tl.Listening,
		Unavailable:      tl.Unavailable,
	})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	out, err := s.svc.SendMessage(r.Context(), sessions.SendMessageInput{
		SessionID: id,
		Text:      req.Text,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toSendMessageResponse(out))
}

// handleSendVoice takes the raw audio clip as the request body.
func (s *Server) handleSendVoice(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioBytes))
	if err != nil {
		badRequest(w, "audio body too large or unreadable")
		return
	}
	if len(data) == 0 {
		badRequest(w, "audio body is required")
		return
	}

	audio := domain.Audio{Data: data, MIMEType: r.Header.Get("Content-Type")}
	transcript, out, err := s.svc.SendVoice(r.Context(), id, audio)
	if errors.Is(err, sessions.ErrBusy) && transcript != "" {
		// The client can put the transcript back in the input box.
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":      "previous message is still being processed",
			"transcript": transcript,
		})
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, voiceResponse{
		Transcript:          transcript,
		sendMessageResponse: toSendMessageResponse(out),
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	out, err := s.svc.ResetSession(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, createSessionResponse{
		Session: toSessionResponse(out.Session),
		Turns:   nonNil(out.Turns),
	})
}

// /deal-chat/
func (s *Server) handleDealChat(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req dealChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	reply, err := s.chat.Exchange(r.Context(), req.Message, req.State)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dealChatResponse{AssistantMessage: reply.AssistantMessage, State: reply.State})
}

// /stats/funnel
func (s *Server) handleFunnel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	steps, err := s.svc.Funnel(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"funnel": steps})
}

// /archive?user_id=...&limit=...
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		badRequest(w, "user_id is required")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.svc.ListArchive(r.Context(), domain.UserID(userID), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// ─────────────────────────────────────────────
// Conversation Helpers
// ─────────────────────────────────────────────

func toSessionResponse(s *sessions.Session) sessionResponse {
	return sessionResponse{
		ID:        string(s.ID),
		UserID:    string(s.UserID),
		Variant:   string(s.Variant),
		CreatedAt: s.CreatedAt,
	}
}

func toSendMessageResponse(out *sessions.SendMessageOutput) sendMessageResponse {
	resp := sendMessageResponse{Turns: nonNil(out.Turns), State: out.State}
	if out.Created != nil {
		resp.Created = &createdDeal{ID: out.Created.ID, Title: out.Created.Title}
	}
	return resp
}

func nonNil(turns []domain.Turn) []domain.Turn {
	if turns == nil {
		return []domain.Turn{}
	}
	return turns
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"error": msg,
	})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, msg)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// writeServiceError maps service errors onto status codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, sessions.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, sessions.ErrBusy):
		writeError(w, http.StatusConflict, "previous message is still being processed")
	case errors.Is(err, sessions.ErrEmptyInput):
		writeError(w, http.StatusBadRequest, "text is required")
	case errors.Is(err, sessions.ErrNoSpeech):
		writeError(w, http.StatusUnprocessableEntity, "no speech recognized")
	case errors.Is(err, dealchat.ErrInvalidState):
		writeError(w, http.StatusBadRequest, "invalid state")
	case errors.Is(err, sessions.ErrVariantNotSupported):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, sessions.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "assistant unavailable, please reload")
	case errors.Is(err, sessions.ErrUnsupported):
		writeError(w, http.StatusNotImplemented, "voice input not supported")
	default:
		observability.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
