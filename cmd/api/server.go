package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/ahmadramadhannn/mudah-titip/agreement"
	"github.com/ahmadramadhannn/mudah-titip/auth"
	"github.com/ahmadramadhannn/mudah-titip/idempotency"
	"github.com/ahmadramadhannn/mudah-titip/metrics"
	"github.com/ahmadramadhannn/mudah-titip/notification"
	"github.com/ahmadramadhannn/mudah-titip/settlement"
)

type ctxKey string

const (
	ctxKeyUserID ctxKey = "user_id"
	ctxKeyRole   ctxKey = "role"
)

type agreementService interface {
	Propose(ctx context.Context, params agreement.ProposeParams) (agreement.Agreement, error)
	Counter(ctx context.Context, params agreement.CounterParams) (agreement.Agreement, error)
	Accept(ctx context.Context, params agreement.RespondParams) (agreement.Agreement, error)
	Reject(ctx context.Context, params agreement.RespondParams) (agreement.Agreement, error)
	Pending(ctx context.Context, userID string) ([]agreement.Agreement, error)
	History(ctx context.Context, agreementID, viewerID string) ([]agreement.Agreement, error)
	ListForConsignment(ctx context.Context, consignmentID, viewerID string) ([]agreement.Agreement, error)
}

type settlementService interface {
	Calculate(ctx context.Context, consignmentID string) (settlement.Result, error)
}

type notificationService interface {
	List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]notification.Notification, error)
	MarkRead(ctx context.Context, userID, id string) (notification.Notification, error)
}

type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	VerifyToken(token string) (auth.Identity, error)
	GetUserByID(ctx context.Context, userID string) (*auth.User, error)
}

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	agreementService    agreementService
	settlementService   settlementService
	notificationService notificationService
	authService         authService
	idempotency         *idempotency.Store
	metrics             *metrics.Metrics
	validate            *validator.Validate
	logger              *slog.Logger
	rateLimitPerMinute  int
}

func (s *Server) routes() http.Handler {
	if s.validate == nil {
		s.validate = validator.New()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.rateLimitPerMinute > 0 {
			r.Use(httprate.LimitByIP(s.rateLimitPerMinute, time.Minute))
		}

		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Use(idempotency.Middleware(s.idempotency, userIDFromRequest, s.logger))

			r.Get("/auth/me", s.handleMe)
			r.Post("/agreements/propose", s.handlePropose)
			r.Get("/agreements/pending", s.handlePending)
			r.Get("/agreements/settlement/{consignmentID}", s.handleSettlement)
			r.Post("/agreements/{id}/counter", s.handleCounter)
			r.Post("/agreements/{id}/accept", s.handleAccept)
			r.Post("/agreements/{id}/reject", s.handleReject)
			r.Get("/agreements/{id}/history", s.handleHistory)
			r.Get("/consignments/{id}/agreements", s.handleConsignmentAgreements)

			r.Get("/notifications", s.handleNotifications)
			r.Post("/notifications/{id}/read", s.handleMarkNotificationRead)
		})
	})
	return r
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
			return
		}

		identity, err := s.authService.VerifyToken(strings.TrimSpace(token))
		if err != nil {
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUserID, identity.UserID)
		ctx = context.WithValue(ctx, ctxKeyRole, identity.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFromRequest(r *http.Request) string {
	userID, _ := r.Context().Value(ctxKeyUserID).(string)
	return userID
}
