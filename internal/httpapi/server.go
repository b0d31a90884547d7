package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"linkrelay/internal/intake"
	"linkrelay/internal/journal"
	"linkrelay/internal/logging"
	"linkrelay/internal/observability"
	"linkrelay/internal/recovery"
	"linkrelay/internal/services"
)

const maxWebhookBody = 1 << 20

// Intake accepts raw webhook bodies.
type Intake interface {
	HandleBody(ctx context.Context, body []byte) intake.Outcome
}

// Recovery exposes the sweep scheduler to the admin API.
type Recovery interface {
	Status() recovery.Status
	RunRecovery(ctx context.Context) (int, error)
}

// JobCounter reports in-flight background jobs.
type JobCounter interface {
	Inflight() int
}

// Dependencies wires the server.
type Dependencies struct {
	Intake   Intake
	Store    journal.Store
	Recovery Recovery
	Jobs     JobCounter
	Metrics  *observability.Metrics
	Token    string
	Logger   *slog.Logger
}

// Server serves the tracker webhooks and the admin API.
type Server struct {
	intake   Intake
	store    journal.Store
	recovery Recovery
	jobs     JobCounter
	metrics  *observability.Metrics
	token    string
	logger   *slog.Logger
	started  time.Time
}

// New builds a Server.
func New(deps Dependencies) *Server {
	return &Server{
		intake:   deps.Intake,
		store:    deps.Store,
		recovery: deps.Recovery,
		jobs:     deps.Jobs,
		metrics:  deps.Metrics,
		token:    strings.TrimSpace(deps.Token),
		logger:   logging.NewComponentLogger(deps.Logger, "http"),
		started:  time.Now(),
	}
}

// Router returns the HTTP handler. Webhook routes are mounted at the root
// and again under /crm.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)

	webhooks := func(r chi.Router) {
		r.Get("/test", s.handleTest)
		r.Post("/tasks", s.handleTasks)
	}
	webhooks(r)
	r.Route("/crm", webhooks)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(bearerAuth(s.token))
		r.Get("/status", s.handleStatus)
		r.Get("/journal", s.handleJournal)
		r.Get("/journal/{id}", s.handleJournalRecord)
		r.Post("/recovery", s.handleRecovery)
	})
	return r
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	logging.WithContext(r.Context(), s.logger).Info("test request received")
	respondJSON(w, http.StatusOK, map[string]string{"message": "Test request successful!"})
}

// handleTasks never reports a failure to the tracker: bad payloads and
// unsupported events are acknowledged as ignored.
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		logging.WarnWithContext(logging.WithContext(r.Context(), s.logger), "webhook body unreadable", "payload_unreadable",
			logging.Error(err),
			logging.String(logging.FieldImpact, "event ignored"),
		)
		respondJSON(w, http.StatusOK, map[string]string{"message": string(intake.OutcomeIgnored)})
		return
	}
	// Units of work outlive the request.
	ctx := context.WithoutCancel(r.Context())
	outcome := s.intake.HandleBody(ctx, body)
	status := http.StatusOK
	if outcome == intake.OutcomeAccepted {
		status = http.StatusAccepted
	}
	respondJSON(w, status, map[string]string{"message": string(outcome)})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"journal": journal.Describe(s.store),
	})
}

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	Journal        string          `json:"journal"`
	JournalRecords int             `json:"journal_records"`
	InflightJobs   int             `json:"inflight_jobs"`
	Recovery       recovery.Status `json:"recovery"`
	UptimeSeconds  int64           `json:"uptime_seconds"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	j, err := s.store.Load(r.Context())
	if err != nil {
		s.internalError(w, r, "journal load failed", err)
		return
	}
	resp := StatusResponse{
		Journal:        journal.Describe(s.store),
		JournalRecords: j.Len(),
		UptimeSeconds:  int64(time.Since(s.started).Seconds()),
	}
	if s.jobs != nil {
		resp.InflightJobs = s.jobs.Inflight()
	}
	if s.recovery != nil {
		resp.Recovery = s.recovery.Status()
	}
	respondJSON(w, http.StatusOK, resp)
}

// JournalResponse is returned by GET /api/journal.
type JournalResponse struct {
	Records []journal.Binding `json:"records"`
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	j, err := s.store.Load(r.Context())
	if err != nil {
		s.internalError(w, r, "journal load failed", err)
		return
	}
	records := j.Records()
	if records == nil {
		records = []journal.Binding{}
	}
	respondJSON(w, http.StatusOK, JournalResponse{Records: records})
}

func (s *Server) handleJournalRecord(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	j, err := s.store.Load(r.Context())
	if err != nil {
		s.internalError(w, r, "journal load failed", err)
		return
	}
	binding, ok := j.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "task not journaled")
		return
	}
	respondJSON(w, http.StatusOK, binding)
}

func (s *Server) handleRecovery(w http.ResponseWriter, r *http.Request) {
	if s.recovery == nil {
		respondError(w, http.StatusServiceUnavailable, "recovery disabled")
		return
	}
	n, err := s.recovery.RunRecovery(context.WithoutCancel(r.Context()))
	if err != nil {
		s.internalError(w, r, "recovery sweep failed", err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]int{"scheduled": n})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), msg, "api_error", logging.Error(err))
	respondError(w, http.StatusInternalServerError, err.Error())
}

// requestID tags each request with a correlation id, reusing X-Request-ID when sent.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

// bearerAuth requires "Authorization: Bearer <token>". An empty token disables the check.
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
				respondError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
