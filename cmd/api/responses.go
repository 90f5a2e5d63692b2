package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ahmadramadhannn/mudah-titip/agreement"
	"github.com/ahmadramadhannn/mudah-titip/auth"
	"github.com/ahmadramadhannn/mudah-titip/consignment"
	"github.com/ahmadramadhannn/mudah-titip/notification"
	"github.com/ahmadramadhannn/mudah-titip/settlement"
)

// problemDetail follows RFC 7807.
type problemDetail struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type termsResponse struct {
	CommissionType        string  `json:"commissionType"`
	CommissionValue       string  `json:"commissionValue"`
	BonusThresholdPercent *int    `json:"bonusThresholdPercent,omitempty"`
	BonusAmount           *string `json:"bonusAmount,omitempty"`
	TermsNote             string  `json:"termsNote,omitempty"`
}

type agreementResponse struct {
	ID                string        `json:"id"`
	ConsignmentID     string        `json:"consignmentId"`
	ProposedBy        string        `json:"proposedBy"`
	Status            string        `json:"status"`
	Terms             termsResponse `json:"terms"`
	ResponseMessage   *string       `json:"responseMessage,omitempty"`
	PreviousVersionID *string       `json:"previousVersionId,omitempty"`
	CreatedAt         string        `json:"createdAt"`
	UpdatedAt         string        `json:"updatedAt"`
}

type agreementListResponse struct {
	Items []agreementResponse `json:"items"`
}

type settlementResponse struct {
	ConsignmentID       string `json:"consignmentId"`
	AgreementID         string `json:"agreementId"`
	ProductName         string `json:"productName"`
	ShopName            string `json:"shopName"`
	ConsignorName       string `json:"consignorName"`
	CommissionType      string `json:"commissionType"`
	InitialQuantity     int    `json:"initialQuantity"`
	SoldQuantity        int    `json:"soldQuantity"`
	RemainingQuantity   int    `json:"remainingQuantity"`
	SoldPercentage      string `json:"soldPercentage"`
	TotalSales          string `json:"totalSales"`
	ShopCommission      string `json:"shopCommission"`
	BonusAmount         string `json:"bonusAmount"`
	TotalShopEarning    string `json:"totalShopEarning"`
	ConsignorEarning    string `json:"consignorEarning"`
	CommissionBreakdown string `json:"commissionBreakdown"`
	BonusApplied        bool   `json:"bonusApplied"`
}

type notificationResponse struct {
	ID          string  `json:"id"`
	Kind        string  `json:"kind"`
	Subject     string  `json:"subject"`
	Message     string  `json:"message"`
	ReferenceID *string `json:"referenceId,omitempty"`
	Read        bool    `json:"read"`
	CreatedAt   string  `json:"createdAt"`
}

type notificationListResponse struct {
	Items []notificationResponse `json:"items"`
}

type userResponse struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	Name      string  `json:"name"`
	Phone     *string `json:"phone,omitempty"`
	Role      string  `json:"role"`
	CreatedAt string  `json:"createdAt"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expiresAt"`
	User      userResponse `json:"user"`
}

func toAgreementResponse(a agreement.Agreement) agreementResponse {
	terms := termsResponse{
		CommissionType:        string(a.Terms.CommissionType),
		CommissionValue:       a.Terms.CommissionValue.StringFixed(2),
		BonusThresholdPercent: a.Terms.BonusThresholdPercent,
		TermsNote:             a.Terms.TermsNote,
	}
	if a.Terms.BonusAmount.Valid {
		amount := a.Terms.BonusAmount.Decimal.StringFixed(2)
		terms.BonusAmount = &amount
	}
	return agreementResponse{
		ID:                a.ID,
		ConsignmentID:     a.ConsignmentID,
		ProposedBy:        a.ProposedBy,
		Status:            string(a.Status),
		Terms:             terms,
		ResponseMessage:   a.ResponseMessage,
		PreviousVersionID: a.PreviousVersionID,
		CreatedAt:         a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:         a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toAgreementList(items []agreement.Agreement) agreementListResponse {
	out := agreementListResponse{Items: make([]agreementResponse, 0, len(items))}
	for _, a := range items {
		out.Items = append(out.Items, toAgreementResponse(a))
	}
	return out
}

func toSettlementResponse(r settlement.Result) settlementResponse {
	return settlementResponse{
		ConsignmentID:       r.ConsignmentID,
		AgreementID:         r.AgreementID,
		ProductName:         r.ProductName,
		ShopName:            r.ShopName,
		ConsignorName:       r.ConsignorName,
		CommissionType:      string(r.CommissionType),
		InitialQuantity:     r.InitialQuantity,
		SoldQuantity:        r.SoldQuantity,
		RemainingQuantity:   r.RemainingQuantity,
		SoldPercentage:      r.SoldPercentage.StringFixed(2),
		TotalSales:          r.TotalSales.StringFixed(2),
		ShopCommission:      r.ShopCommission.StringFixed(2),
		BonusAmount:         r.BonusAmount.StringFixed(2),
		TotalShopEarning:    r.TotalShopEarning.StringFixed(2),
		ConsignorEarning:    r.ConsignorEarning.StringFixed(2),
		CommissionBreakdown: r.CommissionBreakdown,
		BonusApplied:        r.BonusApplied,
	}
}

func toNotificationResponse(n notification.Notification) notificationResponse {
	return notificationResponse{
		ID:          n.ID,
		Kind:        n.Kind,
		Subject:     n.Subject,
		Message:     n.Message,
		ReferenceID: n.ReferenceID,
		Read:        n.Read(),
		CreatedAt:   n.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toUserResponse(u auth.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Phone:     u.Phone,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problemDetail{
		Type:   "about:blank",
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// writeError maps domain errors onto problem responses. Unknown errors are
// logged and hidden behind a generic 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErrs validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrs):
		writeProblem(w, http.StatusBadRequest, "Validation failed", validationErrs.Error())
	case errors.Is(err, agreement.ErrInvalidTerms), errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrInvalidInput):
		writeProblem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, settlement.ErrIntegrity):
		s.logger.Error("settlement integrity violation", "path", r.URL.Path, "error", err)
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "data integrity violation")
	case errors.Is(err, agreement.ErrNotFound), errors.Is(err, consignment.ErrNotFound),
		errors.Is(err, notification.ErrNotFound), errors.Is(err, auth.ErrUserNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, agreement.ErrConflict), errors.Is(err, agreement.ErrInvalidState), errors.Is(err, auth.ErrDuplicateEmail):
		writeProblem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, agreement.ErrSelfAction), errors.Is(err, agreement.ErrNotParty):
		writeProblem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
	}
}

// outcome classifies err for metrics labels.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, agreement.ErrNotFound), errors.Is(err, consignment.ErrNotFound):
		return "not_found"
	case errors.Is(err, agreement.ErrConflict):
		return "conflict"
	case errors.Is(err, agreement.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, agreement.ErrSelfAction), errors.Is(err, agreement.ErrNotParty):
		return "forbidden"
	case errors.Is(err, agreement.ErrInvalidTerms):
		return "invalid_terms"
	case errors.Is(err, settlement.ErrIntegrity):
		return "integrity"
	default:
		return "error"
	}
}
