package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/andrevianna/clara/internal/analyzer"
	"github.com/andrevianna/clara/internal/config"
	"github.com/andrevianna/clara/internal/conversation"
	"github.com/andrevianna/clara/internal/memory"
	"github.com/andrevianna/clara/internal/observability"
	"github.com/andrevianna/clara/internal/session"
	"github.com/andrevianna/clara/internal/transcript"
)

// Conversation is the machine surface the API exposes.
type Conversation interface {
	Activate()
	ForceReset()
	State() conversation.State
	Messages() []transcript.Message
	LastError() error
	RealtimeConnected() bool
	SessionID() string
}

// Spectra provides the latest frequency snapshot for the feed.
type Spectra interface {
	Last() analyzer.Snapshot
}

type Server struct {
	cfg      config.Config
	conv     Conversation
	sessions *session.Manager
	spectra  Spectra
	archive  memory.Store
	metrics  *observability.Metrics
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, conv Conversation, sessions *session.Manager, spectra Spectra, archive memory.Store, metrics *observability.Metrics, log zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		conv:     conv,
		sessions: sessions,
		spectra:  spectra,
		archive:  archive,
		metrics:  metrics,
		log:      log.With().Str("component", "httpapi").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers (or non-browser clients without an
				// Origin header) may attach to the event feed.
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/conversation", s.handleConversationStatus)
	r.Get("/v1/conversation/transcript", s.handleTranscript)
	r.Post("/v1/conversation/activate", s.handleActivate)
	r.Post("/v1/conversation/reset", s.handleReset)
	r.Get("/v1/conversation/events", s.handleEvents)
	r.Get("/v1/analyzer", s.handleAnalyzer)
	r.Get("/v1/session/{id}", s.handleGetSession)
	r.Get("/v1/memory/recent", s.handleRecentTurns)
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"state":           s.conv.State(),
		"active_sessions": s.sessions.ActiveCount(),
	})
}

type statusResponse struct {
	SessionID         string    `json:"session_id"`
	State             string    `json:"state"`
	RealtimeConnected bool      `json:"realtime_connected"`
	Messages          int       `json:"messages"`
	LastError         string    `json:"last_error,omitempty"`
	GeneratedAt       time.Time `json:"generated_at"`
}

func (s *Server) status() statusResponse {
	resp := statusResponse{
		SessionID:         s.conv.SessionID(),
		State:             s.conv.State().String(),
		RealtimeConnected: s.conv.RealtimeConnected(),
		Messages:          len(s.conv.Messages()),
		GeneratedAt:       time.Now().UTC(),
	}
	if err := s.conv.LastError(); err != nil {
		resp.LastError = err.Error()
	}
	return resp
}

func (s *Server) handleConversationStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.status())
}

type transcriptEntry struct {
	ID              string                 `json:"id"`
	Role            string                 `json:"role"`
	Text            string                 `json:"text"`
	Timestamp       time.Time              `json:"timestamp"`
	Words           []transcript.WordTiming `json:"words,omitempty"`
	DurationSeconds float64                `json:"duration_seconds,omitempty"`
}

func (s *Server) handleTranscript(w http.ResponseWriter, _ *http.Request) {
	msgs := s.conv.Messages()
	entries := make([]transcriptEntry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, transcriptEntry{
			ID:              m.ID,
			Role:            string(m.Role),
			Text:            m.Text,
			Timestamp:       m.Timestamp,
			Words:           m.Words,
			DurationSeconds: m.DurationSeconds,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": s.conv.SessionID(),
		"messages":   entries,
	})
}

func (s *Server) handleActivate(w http.ResponseWriter, _ *http.Request) {
	s.conv.Activate()
	_ = s.sessions.Touch(s.conv.SessionID())
	respondJSON(w, http.StatusAccepted, s.status())
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.conv.ForceReset()
	_ = s.sessions.RecordReset(s.conv.SessionID())
	respondJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleAnalyzer(w http.ResponseWriter, _ *http.Request) {
	if s.spectra == nil {
		respondJSON(w, http.StatusOK, analyzer.Snapshot{Source: analyzer.SourceNone})
		return
	}
	respondJSON(w, http.StatusOK, s.spectra.Last())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleRecentTurns(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "turn archive not configured")
		return
	}
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		sessionID = s.conv.SessionID()
	}
	turns, err := s.archive.RecentTurns(r.Context(), sessionID, 50)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "archive_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"turns":      turns,
	})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"generated_at": "",
			"window_size":  0,
			"stages":       []any{},
		})
		return
	}
	respondJSON(w, http.StatusOK, s.metrics.PerfSnapshot())
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
