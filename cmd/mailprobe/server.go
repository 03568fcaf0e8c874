package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"mailprobe/internal/errors"
	"mailprobe/internal/httputil"
	"mailprobe/internal/middleware"
	"mailprobe/internal/models"
	"mailprobe/internal/service"
	"mailprobe/internal/tracing"
	"mailprobe/internal/validation"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const defaultVerificationListLimit = 100

// adminStore is the slice of the database the operator endpoints need.
type adminStore interface {
	CreateRelay(ctx context.Context, relay *models.RelayConfig) error
	UpdateRelay(ctx context.Context, relay *models.RelayConfig) error
	GetRelay(ctx context.Context, id int64) (*models.RelayConfig, error)
	ListRelays(ctx context.Context) ([]*models.RelayConfig, error)
	DeleteRelay(ctx context.Context, id int64) error

	CreateTemplate(ctx context.Context, template *models.MessageTemplate) error
	GetTemplate(ctx context.Context, id int64) (*models.MessageTemplate, error)
	ListTemplates(ctx context.Context) ([]*models.MessageTemplate, error)
	DeleteTemplate(ctx context.Context, id int64) error

	ListVerifications(ctx context.Context, limit int) ([]*models.VerificationRecord, error)
}

type Server struct {
	router      *mux.Router
	logger      *logrus.Logger
	cfg         *models.Config
	dispatcher  service.Dispatcher
	pool        service.RelayPool
	store       adminStore
	rateLimiter *RateLimiter
	server      *http.Server
}

func NewServer(cfg *models.Config, dispatcher service.Dispatcher, pool service.RelayPool, store adminStore, logger *logrus.Logger) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		logger:     logger,
		cfg:        cfg,
		dispatcher: dispatcher,
		pool:       pool,
		store:      store,
		rateLimiter: NewRateLimiter(
			cfg.Server.RateLimitRequests,
			time.Duration(cfg.Server.RateLimitWindowSec)*time.Second,
		),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.apiKeyMiddleware)

	api.Handle("/verify", s.rateLimitMiddleware(s.handleVerify())).Methods(http.MethodPost)
	api.HandleFunc("/status", s.handleStatus()).Methods(http.MethodGet)

	api.HandleFunc("/relays", s.handleCreateRelay()).Methods(http.MethodPost)
	api.HandleFunc("/relays", s.handleListRelays()).Methods(http.MethodGet)
	api.HandleFunc("/relays/{id:[0-9]+}", s.handleGetRelay()).Methods(http.MethodGet)
	api.HandleFunc("/relays/{id:[0-9]+}", s.handleUpdateRelay()).Methods(http.MethodPut)
	api.HandleFunc("/relays/{id:[0-9]+}", s.handleDeleteRelay()).Methods(http.MethodDelete)
	api.HandleFunc("/relays/{id:[0-9]+}/test", s.handleTestRelay()).Methods(http.MethodGet)

	api.HandleFunc("/templates", s.handleCreateTemplate()).Methods(http.MethodPost)
	api.HandleFunc("/templates", s.handleListTemplates()).Methods(http.MethodGet)
	api.HandleFunc("/templates/{id:[0-9]+}", s.handleGetTemplate()).Methods(http.MethodGet)
	api.HandleFunc("/templates/{id:[0-9]+}", s.handleDeleteTemplate()).Methods(http.MethodDelete)

	api.HandleFunc("/verifications", s.handleListVerifications()).Methods(http.MethodGet)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting server on port %d", s.cfg.Server.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := httputil.GetClientIP(r)
		if !s.rateLimiter.Allow(ip) {
			s.logger.WithField("client_ip", ip).Warn("Rate limit exceeded")
			s.writeError(w, r, errors.NewRateLimitError(
				s.cfg.Server.RateLimitRequests,
				fmt.Sprintf("%ds", s.cfg.Server.RateLimitWindowSec),
			))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

type verifyRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleVerify() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req verifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "invalid request body").
				WithUserMessage("Request body must be JSON with an email field"))
			return
		}

		result := s.dispatcher.Dispatch(r.Context(), req.Email)
		s.writeJSON(w, dispatchStatusCode(result.Outcome), result)
	}
}

// dispatchStatusCode maps a dispatch outcome to its HTTP status. A sent
// probe is 202: the verdict arrives later through the bounce detector.
func dispatchStatusCode(outcome service.DispatchOutcome) int {
	switch outcome {
	case service.OutcomeSent:
		return http.StatusAccepted
	case service.OutcomeAlreadyProcessed:
		return http.StatusOK
	case service.OutcomeInvalidInput:
		return http.StatusBadRequest
	case service.OutcomeNoRelayAvailable, service.OutcomeNoTemplateAvailable:
		return http.StatusNotFound
	case service.OutcomeSendFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := r.URL.Query().Get("email")
		if err := validation.ValidateRecipient(email); err != nil {
			s.writeError(w, r, err)
			return
		}

		record, err := s.dispatcher.GetVerdict(r.Context(), email)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if record == nil {
			// Covers both unknown addresses and probes whose bounce
			// window is still open.
			s.writeError(w, r, errors.NewNotFoundError("verification", email))
			return
		}

		s.writeJSON(w, http.StatusOK, record)
	}
}

func (s *Server) handleTestRelay() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		status, err := s.pool.TestRelay(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]bool{
			"smtp_ok": status.SMTPOK,
			"imap_ok": status.IMAPOK,
			"ok":      status.OK(),
		})
	}
}

func (s *Server) handleCreateRelay() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var relay models.RelayConfig
		if err := json.NewDecoder(r.Body).Decode(&relay); err != nil {
			s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "invalid request body"))
			return
		}
		if err := validation.ValidateRelayConfig(&relay); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.store.CreateRelay(r.Context(), &relay); err != nil {
			s.writeError(w, r, errors.NewDatabaseError("create relay", err))
			return
		}
		s.writeJSON(w, http.StatusCreated, relay)
	}
}

func (s *Server) handleListRelays() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		relays, err := s.store.ListRelays(r.Context())
		if err != nil {
			s.writeError(w, r, errors.NewDatabaseError("list relays", err))
			return
		}
		if relays == nil {
			relays = []*models.RelayConfig{}
		}
		s.writeJSON(w, http.StatusOK, relays)
	}
}

func (s *Server) handleGetRelay() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		relay, err := s.store.GetRelay(r.Context(), id)
		if err != nil {
			s.writeError(w, r, errors.NewDatabaseError("get relay", err))
			return
		}
		if relay == nil {
			s.writeError(w, r, errors.NewNotFoundError("relay", strconv.FormatInt(id, 10)))
			return
		}
		s.writeJSON(w, http.StatusOK, relay)
	}
}

func (s *Server) handleUpdateRelay() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		var relay models.RelayConfig
		if err := json.NewDecoder(r.Body).Decode(&relay); err != nil {
			s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "invalid request body"))
			return
		}
		relay.ID = id
		if err := validation.ValidateRelayConfig(&relay); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.store.UpdateRelay(r.Context(), &relay); err != nil {
			s.writeError(w, r, errors.NewNotFoundError("relay", strconv.FormatInt(id, 10)))
			return
		}
		s.writeJSON(w, http.StatusOK, relay)
	}
}

func (s *Server) handleDeleteRelay() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.store.DeleteRelay(r.Context(), id); err != nil {
			s.writeError(w, r, errors.NewNotFoundError("relay", strconv.FormatInt(id, 10)))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleCreateTemplate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var template models.MessageTemplate
		if err := json.NewDecoder(r.Body).Decode(&template); err != nil {
			s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "invalid request body"))
			return
		}
		if err := validation.ValidateTemplate(&template); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.store.CreateTemplate(r.Context(), &template); err != nil {
			s.writeError(w, r, errors.NewDatabaseError("create template", err))
			return
		}
		s.writeJSON(w, http.StatusCreated, template)
	}
}

func (s *Server) handleListTemplates() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		templates, err := s.store.ListTemplates(r.Context())
		if err != nil {
			s.writeError(w, r, errors.NewDatabaseError("list templates", err))
			return
		}
		if templates == nil {
			templates = []*models.MessageTemplate{}
		}
		s.writeJSON(w, http.StatusOK, templates)
	}
}

func (s *Server) handleGetTemplate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		template, err := s.store.GetTemplate(r.Context(), id)
		if err != nil {
			s.writeError(w, r, errors.NewDatabaseError("get template", err))
			return
		}
		if template == nil {
			s.writeError(w, r, errors.NewNotFoundError("template", strconv.FormatInt(id, 10)))
			return
		}
		s.writeJSON(w, http.StatusOK, template)
	}
}

func (s *Server) handleDeleteTemplate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.store.DeleteTemplate(r.Context(), id); err != nil {
			s.writeError(w, r, errors.NewNotFoundError("template", strconv.FormatInt(id, 10)))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleListVerifications() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultVerificationListLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "limit must be a positive integer"))
				return
			}
			limit = parsed
		}

		records, err := s.store.ListVerifications(r.Context(), limit)
		if err != nil {
			s.writeError(w, r, errors.NewDatabaseError("list verifications", err))
			return
		}
		if records == nil {
			records = []*models.VerificationRecord{}
		}
		s.writeJSON(w, http.StatusOK, records)
	}
}

func pathID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("invalid id: %q", raw))
	}
	return id, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestInfo := tracing.GetRequestInfo(r.Context())
	s.writeJSON(w, errors.HTTPStatusCode(err), errors.ToHTTPResponse(err, requestInfo.RequestID))
}
