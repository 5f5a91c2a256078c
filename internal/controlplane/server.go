package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/crewd-dev/crewd/internal/lease"
	"github.com/crewd-dev/crewd/internal/models"
	"github.com/crewd-dev/crewd/internal/queue"
	"github.com/crewd-dev/crewd/internal/store"
)

// Server provides the HTTP API.
type Server struct {
	service *Service
	logger  *slog.Logger
	addr    string
	server  *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(service *Service, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{service: service, logger: logger, addr: addr}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", s.createTask)
		r.Get("/", s.listTasks)
		r.Get("/claimable", s.claimableTasks)
		r.Route("/{taskID}", func(r chi.Router) {
			r.Get("/", s.getTask)
			r.Get("/trail", s.getTrail)
			r.Get("/reports", s.getReports)
			r.Get("/resolutions", s.getResolutions)
			r.Post("/claim", s.claimTask)
			r.Post("/renew", s.renewLease)
			r.Post("/release", s.releaseTask)
			r.Post("/complete", s.submitCompletion)
			r.Post("/cancel", s.cancelTask)
			r.Post("/resolve", s.resolveTask)
		})
	})

	r.Get("/reviews", s.listReviews)
	r.Get("/escalations", s.listEscalations)
	r.Get("/events", s.listEvents)
	r.Get("/queue", s.queueStatus)

	r.Route("/workers", func(r chi.Router) {
		r.Get("/", s.listWorkers)
		r.Post("/{workerID}/heartbeat", s.workerHeartbeat)
	})

	return r
}

// Start starts the HTTP server and blocks until it exits.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	s.logger.Info("control plane listening", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// --- Handlers ---

type createTaskRequest struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Priority           string   `json:"priority"`
	Dependencies       []string `json:"dependencies"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	Actor              string   `json:"actor"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		http.Error(w, "title required", http.StatusBadRequest)
		return
	}
	if req.Actor == "" {
		req.Actor = "api"
	}
	task, err := s.service.CreateTask(req.Actor, req.Title, req.Description,
		models.Priority(req.Priority), req.Dependencies, req.AcceptanceCriteria)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.service.ListTasks(r.URL.Query().Get("status"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) claimableTasks(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	tasks, err := s.service.ClaimableTasks(limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.service.GetTask(chi.URLParam(r, "taskID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) getTrail(w http.ResponseWriter, r *http.Request) {
	trail, err := s.service.Trail(chi.URLParam(r, "taskID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trail)
}

func (s *Server) getReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.service.Reports(chi.URLParam(r, "taskID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if reports == nil {
		reports = []models.Report{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) getResolutions(w http.ResponseWriter, r *http.Request) {
	resolutions, err := s.service.Resolutions(chi.URLParam(r, "taskID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if resolutions == nil {
		resolutions = []models.Resolution{}
	}
	writeJSON(w, http.StatusOK, resolutions)
}

func (s *Server) queueStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.Queue()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type workerRequest struct {
	WorkerID string `json:"worker_id"`
}

func (s *Server) claimTask(w http.ResponseWriter, r *http.Request) {
	var req workerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WorkerID == "" {
		http.Error(w, "worker_id required", http.StatusBadRequest)
		return
	}
	task, err := s.service.ClaimTask(chi.URLParam(r, "taskID"), req.WorkerID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) renewLease(w http.ResponseWriter, r *http.Request) {
	var req workerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WorkerID == "" {
		http.Error(w, "worker_id required", http.StatusBadRequest)
		return
	}
	task, err := s.service.RenewLease(chi.URLParam(r, "taskID"), req.WorkerID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type releaseRequest struct {
	WorkerID string `json:"worker_id"`
	Outcome  string `json:"outcome"`
}

func (s *Server) releaseTask(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WorkerID == "" {
		http.Error(w, "worker_id required", http.StatusBadRequest)
		return
	}
	outcome := lease.ReleaseOutcome(req.Outcome)
	if outcome == "" {
		outcome = lease.ReleaseAbandoned
	}
	if err := s.service.ReleaseTask(chi.URLParam(r, "taskID"), req.WorkerID, outcome); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

type completeRequest struct {
	WorkerID  string   `json:"worker_id"`
	Summary   string   `json:"summary"`
	Artifacts []string `json:"artifacts"`
}

func (s *Server) submitCompletion(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WorkerID == "" {
		http.Error(w, "worker_id required", http.StatusBadRequest)
		return
	}
	claim, err := s.service.SubmitCompletion(chi.URLParam(r, "taskID"), req.WorkerID, req.Summary, req.Artifacts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, claim)
}

func (s *Server) cancelTask(w http.ResponseWriter, r *http.Request) {
	actor := r.URL.Query().Get("actor")
	if actor == "" {
		actor = "api"
	}
	if err := s.service.CancelTask(actor, chi.URLParam(r, "taskID")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

type resolveRequest struct {
	Action   string `json:"action"`
	Resolver string `json:"resolver"`
	Note     string `json:"note"`
	Requeue  bool   `json:"requeue"`
}

func (s *Server) resolveTask(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	action := models.ResolutionAction(req.Action)
	if action != models.ResolutionApprove && action != models.ResolutionReject {
		http.Error(w, "action must be approve or reject", http.StatusBadRequest)
		return
	}
	if req.Resolver == "" {
		req.Resolver = "human"
	}
	res, err := s.service.Resolve(chi.URLParam(r, "taskID"), action, req.Resolver, req.Note, req.Requeue)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) listReviews(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.service.ReviewQueue()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) listEscalations(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.service.EscalationQueue()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	afterSeq, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := s.service.Events(afterSeq, r.URL.Query().Get("task_id"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) listWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := s.service.Workers()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if workers == nil {
		workers = []models.Worker{}
	}
	writeJSON(w, http.StatusOK, workers)
}

type heartbeatRequest struct {
	Role string `json:"role"`
}

func (s *Server) workerHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := s.service.Heartbeat(chi.URLParam(r, "workerID"), models.WorkerRole(req.Role)); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error     string `json:"error"`
	MatchedID string `json:"matched_id,omitempty"`
}

// writeError maps coordination outcomes to HTTP status codes. Claim races
// and unmet dependencies are conflicts, ownership violations are forbidden.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	resp := errorResponse{Error: err.Error()}

	var dup *queue.DuplicateError
	switch {
	case errors.As(err, &dup):
		status = http.StatusConflict
		resp.MatchedID = dup.MatchedID
	case errors.Is(err, store.ErrClaimConflict), errors.Is(err, store.ErrDependencyUnmet),
		errors.Is(err, store.ErrLeaseExpired), errors.Is(err, store.ErrVersionMismatch),
		errors.Is(err, store.ErrTerminal):
		status = http.StatusConflict
	case errors.Is(err, store.ErrNotOwner):
		status = http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	default:
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, resp)
}
