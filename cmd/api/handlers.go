package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ahmadramadhannn/mudah-titip/agreement"
	"github.com/ahmadramadhannn/mudah-titip/auth"
)

const maxBodyBytes = 1 << 20

type termsRequest struct {
	CommissionType        string           `json:"commissionType" validate:"required,oneof=PERCENTAGE FIXED_PER_ITEM TIERED_BONUS"`
	CommissionValue       *decimal.Decimal `json:"commissionValue"`
	BonusThresholdPercent *int             `json:"bonusThresholdPercent" validate:"omitempty,min=0"`
	BonusAmount           *decimal.Decimal `json:"bonusAmount"`
	TermsNote             string           `json:"termsNote" validate:"max=2000"`
}

func (t termsRequest) toTerms() agreement.Terms {
	terms := agreement.Terms{
		CommissionType:        agreement.CommissionType(t.CommissionType),
		BonusThresholdPercent: t.BonusThresholdPercent,
		TermsNote:             t.TermsNote,
	}
	if t.CommissionValue != nil {
		terms.CommissionValue = *t.CommissionValue
	}
	if t.BonusAmount != nil {
		terms.BonusAmount = decimal.NewNullDecimal(*t.BonusAmount)
	}
	return terms
}

type proposeRequest struct {
	ConsignmentID string `json:"consignmentId" validate:"required"`
	termsRequest
}

type acceptRequest struct {
	Message string `json:"message" validate:"max=2000"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required"`
	Phone    string `json:"phone"`
	Role     string `json:"role" validate:"omitempty,oneof=shop_owner consignor"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decode(w, r, &req, true) {
		return
	}
	user, err := s.authService.Register(r.Context(), auth.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Phone:    req.Phone,
		Role:     auth.Role(req.Role),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(*user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req, true) {
		return
	}
	result, err := s.authService.Login(r.Context(), auth.LoginRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt.UTC().Format(time.RFC3339),
		User:      toUserResponse(result.User),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.authService.GetUserByID(r.Context(), userIDFromRequest(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(*user))
}

func (s *Server) handlePropose(w http.ResponseWriter, r *http.Request) {
	var req proposeRequest
	if !s.decode(w, r, &req, true) {
		return
	}
	created, err := s.agreementService.Propose(r.Context(), agreement.ProposeParams{
		ConsignmentID: req.ConsignmentID,
		ProposerID:    userIDFromRequest(r),
		Terms:         req.toTerms(),
	})
	s.metrics.ObserveTransition("propose", outcome(err))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAgreementResponse(created))
}

func (s *Server) handleCounter(w http.ResponseWriter, r *http.Request) {
	var req termsRequest
	if !s.decode(w, r, &req, true) {
		return
	}
	created, err := s.agreementService.Counter(r.Context(), agreement.CounterParams{
		PreviousID: chi.URLParam(r, "id"),
		ProposerID: userIDFromRequest(r),
		Terms:      req.toTerms(),
	})
	s.metrics.ObserveTransition("counter", outcome(err))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAgreementResponse(created))
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	updated, err := s.agreementService.Accept(r.Context(), agreement.RespondParams{
		AgreementID: chi.URLParam(r, "id"),
		ResponderID: userIDFromRequest(r),
		Message:     req.Message,
	})
	s.metrics.ObserveTransition("accept", outcome(err))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAgreementResponse(updated))
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	updated, err := s.agreementService.Reject(r.Context(), agreement.RespondParams{
		AgreementID: chi.URLParam(r, "id"),
		ResponderID: userIDFromRequest(r),
		Message:     req.Reason,
	})
	s.metrics.ObserveTransition("reject", outcome(err))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAgreementResponse(updated))
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	items, err := s.agreementService.Pending(r.Context(), userIDFromRequest(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAgreementList(items))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	items, err := s.agreementService.History(r.Context(), chi.URLParam(r, "id"), userIDFromRequest(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAgreementList(items))
}

func (s *Server) handleConsignmentAgreements(w http.ResponseWriter, r *http.Request) {
	items, err := s.agreementService.ListForConsignment(r.Context(), chi.URLParam(r, "id"), userIDFromRequest(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAgreementList(items))
}

func (s *Server) handleSettlement(w http.ResponseWriter, r *http.Request) {
	result, err := s.settlementService.Calculate(r.Context(), chi.URLParam(r, "consignmentID"))
	s.metrics.ObserveSettlement(outcome(err))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementResponse(result))
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	unreadOnly := query.Get("unread") == "true"
	limit := 0
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeProblem(w, http.StatusBadRequest, "Bad Request", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	items, err := s.notificationService.List(r.Context(), userIDFromRequest(r), unreadOnly, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := notificationListResponse{Items: make([]notificationResponse, 0, len(items))}
	for _, n := range items {
		out.Items = append(out.Items, toNotificationResponse(n))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.notificationService.MarkRead(r.Context(), userIDFromRequest(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toNotificationResponse(n))
}

// decode reads a JSON body into dst and validates it. An empty body is
// accepted when required is false. It writes the problem response itself and
// reports whether the handler should continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any, required bool) bool {
	if r.Body == nil || r.ContentLength == 0 {
		if required {
			writeProblem(w, http.StatusBadRequest, "Bad Request", "request body is required")
			return false
		}
		return true
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && !required {
			return true
		}
		writeProblem(w, http.StatusBadRequest, "Bad Request", fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.writeError(w, r, err)
		return false
	}
	return true
}
