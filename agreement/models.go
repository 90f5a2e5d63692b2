package agreement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the negotiation state of a single agreement version.
type Status string

const (
	StatusProposed Status = "PROPOSED"
	// StatusCounter marks a version superseded by a counter offer. It is terminal.
	StatusCounter  Status = "COUNTER"
	StatusAccepted Status = "ACCEPTED"
	StatusRejected Status = "REJECTED"
)

// CommissionType selects how the shop's commission is derived from sales.
type CommissionType string

const (
	CommissionPercentage   CommissionType = "PERCENTAGE"
	CommissionFixedPerItem CommissionType = "FIXED_PER_ITEM"
	CommissionTieredBonus  CommissionType = "TIERED_BONUS"
)

// Valid reports whether t is one of the supported commission schemes.
func (t CommissionType) Valid() bool {
	switch t {
	case CommissionPercentage, CommissionFixedPerItem, CommissionTieredBonus:
		return true
	default:
		return false
	}
}

// Terms is the commission arrangement carried by a proposal or counter offer.
type Terms struct {
	CommissionType CommissionType
	// CommissionValue holds percentage points for PERCENTAGE and a currency
	// amount per unit for FIXED_PER_ITEM. It is ignored for TIERED_BONUS.
	CommissionValue       decimal.Decimal
	BonusThresholdPercent *int
	BonusAmount           decimal.NullDecimal
	TermsNote             string
}

// Validate checks the terms payload before any state is touched.
func (t Terms) Validate() error {
	if !t.CommissionType.Valid() {
		return fmt.Errorf("%w: unknown commission type %q", ErrInvalidTerms, t.CommissionType)
	}
	if t.CommissionValue.IsNegative() {
		return fmt.Errorf("%w: commission value must not be negative", ErrInvalidTerms)
	}
	if t.BonusThresholdPercent != nil && *t.BonusThresholdPercent < 0 {
		return fmt.Errorf("%w: bonus threshold must not be negative", ErrInvalidTerms)
	}
	if t.BonusAmount.Valid && t.BonusAmount.Decimal.IsNegative() {
		return fmt.Errorf("%w: bonus amount must not be negative", ErrInvalidTerms)
	}
	return nil
}

// Agreement is one version in the negotiation chain of a consignment.
type Agreement struct {
	ID                string
	ConsignmentID     string
	ProposedBy        string
	Status            Status
	Terms             Terms
	ResponseMessage   *string
	PreviousVersionID *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// EventKind names a negotiation event delivered to the notification sink.
type EventKind string

const (
	EventProposed  EventKind = "AGREEMENT_PROPOSED"
	EventCountered EventKind = "AGREEMENT_COUNTERED"
	EventAccepted  EventKind = "AGREEMENT_ACCEPTED"
	EventRejected  EventKind = "AGREEMENT_REJECTED"
)

// Event is handed to the Notifier after a transition has been committed.
type Event struct {
	RecipientID string
	Kind        EventKind
	Subject     string
	Message     string
	ReferenceID string
}
