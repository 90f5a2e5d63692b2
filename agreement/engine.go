package agreement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ahmadramadhannn/mudah-titip/consignment"
)

var (
	// ErrNotFound is returned when no agreement exists for the provided identifier.
	ErrNotFound = errors.New("agreement: not found")
	// ErrConflict signals the consignment already has an accepted agreement.
	ErrConflict = errors.New("agreement: agreement already exists")
	// ErrInvalidState signals a transition that the current status does not allow.
	ErrInvalidState = errors.New("agreement: invalid state")
	// ErrSelfAction signals a party responding to its own proposal.
	ErrSelfAction = errors.New("agreement: self action")
	// ErrNotParty signals an actor on neither side of the consignment.
	ErrNotParty = errors.New("agreement: actor is not a party to the consignment")
	// ErrInvalidTerms signals a malformed commission payload.
	ErrInvalidTerms = errors.New("agreement: invalid terms")
)

// Notifier receives committed negotiation events. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// ProposeParams opens a negotiation on a consignment.
type ProposeParams struct {
	ConsignmentID string
	ProposerID    string
	Terms         Terms
}

// CounterParams supersedes a pending version with new terms.
type CounterParams struct {
	PreviousID string
	ProposerID string
	Terms      Terms
}

// RespondParams accepts or rejects a pending version.
type RespondParams struct {
	AgreementID string
	ResponderID string
	Message     string
}

// Engine drives the agreement state machine. All writes for a consignment are
// serialized through Store.WithConsignment.
type Engine struct {
	store       Store
	notifier    Notifier
	logger      *slog.Logger
	idGenerator func() string
	now         func() time.Time
}

func NewEngine(store Store, notifier Notifier, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:       store,
		notifier:    notifier,
		logger:      logger,
		idGenerator: uuid.NewString,
		now:         time.Now,
	}
}

func (e *Engine) WithIDGenerator(gen func() string) *Engine {
	e.idGenerator = gen
	return e
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Propose creates the opening PROPOSED version for a consignment that has no
// accepted agreement yet.
func (e *Engine) Propose(ctx context.Context, params ProposeParams) (Agreement, error) {
	if params.ConsignmentID == "" {
		return Agreement{}, fmt.Errorf("agreement: missing consignment id")
	}
	if params.ProposerID == "" {
		return Agreement{}, fmt.Errorf("agreement: missing proposer id")
	}
	if err := params.Terms.Validate(); err != nil {
		return Agreement{}, err
	}

	var (
		created Agreement
		cons    consignment.Consignment
	)
	err := e.store.WithConsignment(ctx, params.ConsignmentID, func(ctx context.Context, tx StoreTx, c consignment.Consignment) error {
		cons = c
		if c.SideOf(params.ProposerID) == consignment.SideNone {
			return ErrNotParty
		}

		accepted, err := tx.ListByConsignment(ctx, c.ID, StatusAccepted)
		if err != nil {
			return err
		}
		if len(accepted) > 0 {
			return ErrConflict
		}

		created, err = tx.Insert(ctx, e.newVersion(c.ID, params.ProposerID, params.Terms, nil))
		if err != nil {
			return err
		}
		return tx.AppendEvent(ctx, created.ID, string(EventProposed), params.ProposerID, map[string]any{
			"consignment_id":  c.ID,
			"commission_type": created.Terms.CommissionType,
			"next_status":     created.Status,
		})
	})
	if err != nil {
		return Agreement{}, err
	}

	if recipient, ok := cons.Counterparty(params.ProposerID); ok {
		e.notify(ctx, Event{
			RecipientID: recipient,
			Kind:        EventProposed,
			Subject:     "New agreement proposal",
			Message:     fmt.Sprintf("A commission agreement was proposed for %s", cons.ProductName),
			ReferenceID: created.ID,
		})
	} else {
		e.logger.Warn("agreement: counterparty has no account, skipping notification",
			"agreement_id", created.ID, "consignment_id", cons.ID)
	}

	return created, nil
}

// Counter marks the referenced version COUNTER and appends a new PROPOSED
// version pointing back to it. Both writes commit together.
func (e *Engine) Counter(ctx context.Context, params CounterParams) (Agreement, error) {
	if params.PreviousID == "" {
		return Agreement{}, fmt.Errorf("agreement: missing previous agreement id")
	}
	if params.ProposerID == "" {
		return Agreement{}, fmt.Errorf("agreement: missing proposer id")
	}
	if err := params.Terms.Validate(); err != nil {
		return Agreement{}, err
	}

	head, err := e.store.Get(ctx, params.PreviousID)
	if err != nil {
		return Agreement{}, err
	}

	var (
		previous Agreement
		created  Agreement
		cons     consignment.Consignment
	)
	err = e.store.WithConsignment(ctx, head.ConsignmentID, func(ctx context.Context, tx StoreTx, c consignment.Consignment) error {
		cons = c
		if c.SideOf(params.ProposerID) == consignment.SideNone {
			return ErrNotParty
		}

		var err error
		previous, err = tx.GetForUpdate(ctx, params.PreviousID)
		if err != nil {
			return err
		}
		if previous.Status != StatusProposed && previous.Status != StatusCounter {
			return fmt.Errorf("%w: cannot counter an agreement with status %s", ErrInvalidState, previous.Status)
		}

		if previous.Status != StatusCounter {
			if previous, err = tx.UpdateStatus(ctx, previous.ID, StatusCounter, nil, e.now()); err != nil {
				return err
			}
		}

		prevID := previous.ID
		created, err = tx.Insert(ctx, e.newVersion(c.ID, params.ProposerID, params.Terms, &prevID))
		if err != nil {
			return err
		}
		return tx.AppendEvent(ctx, created.ID, string(EventCountered), params.ProposerID, map[string]any{
			"consignment_id":   c.ID,
			"previous_version": prevID,
			"commission_type":  created.Terms.CommissionType,
		})
	})
	if err != nil {
		return Agreement{}, err
	}

	if previous.ProposedBy != params.ProposerID {
		e.notify(ctx, Event{
			RecipientID: previous.ProposedBy,
			Kind:        EventCountered,
			Subject:     "Counter offer received",
			Message:     fmt.Sprintf("There is a counter offer for %s", cons.ProductName),
			ReferenceID: created.ID,
		})
	}

	return created, nil
}

// Accept finalizes a pending version. It fails if any other version of the
// same consignment was accepted in the meantime.
func (e *Engine) Accept(ctx context.Context, params RespondParams) (Agreement, error) {
	return e.respond(ctx, params, StatusAccepted)
}

// Reject closes a pending version with the responder's reason.
func (e *Engine) Reject(ctx context.Context, params RespondParams) (Agreement, error) {
	return e.respond(ctx, params, StatusRejected)
}

func (e *Engine) respond(ctx context.Context, params RespondParams, next Status) (Agreement, error) {
	if params.AgreementID == "" {
		return Agreement{}, fmt.Errorf("agreement: missing agreement id")
	}
	if params.ResponderID == "" {
		return Agreement{}, fmt.Errorf("agreement: missing responder id")
	}

	head, err := e.store.Get(ctx, params.AgreementID)
	if err != nil {
		return Agreement{}, err
	}

	verb, kind := "accept", EventAccepted
	if next == StatusRejected {
		verb, kind = "reject", EventRejected
	}

	var (
		updated Agreement
		cons    consignment.Consignment
	)
	err = e.store.WithConsignment(ctx, head.ConsignmentID, func(ctx context.Context, tx StoreTx, c consignment.Consignment) error {
		cons = c
		current, err := tx.GetForUpdate(ctx, params.AgreementID)
		if err != nil {
			return err
		}

		// Checked before status so the rule holds for every status.
		if current.ProposedBy == params.ResponderID {
			return fmt.Errorf("%w: cannot %s your own proposal", ErrSelfAction, verb)
		}
		if c.SideOf(params.ResponderID) == consignment.SideNone {
			return ErrNotParty
		}
		if current.Status != StatusProposed {
			return fmt.Errorf("%w: only pending proposals can be %sed", ErrInvalidState, verb)
		}

		if next == StatusAccepted {
			accepted, err := tx.ListByConsignment(ctx, c.ID, StatusAccepted)
			if err != nil {
				return err
			}
			if len(accepted) > 0 {
				return ErrConflict
			}
		}

		message := params.Message
		updated, err = tx.UpdateStatus(ctx, current.ID, next, &message, e.now())
		if err != nil {
			return err
		}
		return tx.AppendEvent(ctx, updated.ID, string(kind), params.ResponderID, map[string]any{
			"previous_status": current.Status,
			"next_status":     next,
		})
	})
	if err != nil {
		return Agreement{}, err
	}

	ev := Event{
		RecipientID: updated.ProposedBy,
		Kind:        kind,
		ReferenceID: updated.ID,
	}
	if next == StatusAccepted {
		ev.Subject = "Agreement accepted"
		ev.Message = fmt.Sprintf("The agreement for %s has been accepted", cons.ProductName)
	} else {
		ev.Subject = "Agreement rejected"
		ev.Message = fmt.Sprintf("The agreement for %s was rejected. %s", cons.ProductName, params.Message)
	}
	e.notify(ctx, ev)

	return updated, nil
}

// Pending lists PROPOSED versions that userID must respond to, oldest first.
func (e *Engine) Pending(ctx context.Context, userID string) ([]Agreement, error) {
	if userID == "" {
		return nil, fmt.Errorf("agreement: missing user id")
	}
	return e.store.ListPending(ctx, userID)
}

// History returns the negotiation chain ending at agreementID, newest first.
func (e *Engine) History(ctx context.Context, agreementID, viewerID string) ([]Agreement, error) {
	chain, err := e.store.Chain(ctx, agreementID)
	if err != nil {
		return nil, err
	}
	if err := e.authorizeViewer(ctx, chain[0].ConsignmentID, viewerID); err != nil {
		return nil, err
	}
	return chain, nil
}

// ListForConsignment returns every version recorded for a consignment.
func (e *Engine) ListForConsignment(ctx context.Context, consignmentID, viewerID string) ([]Agreement, error) {
	if err := e.authorizeViewer(ctx, consignmentID, viewerID); err != nil {
		return nil, err
	}
	return e.store.ListByConsignment(ctx, consignmentID)
}

func (e *Engine) authorizeViewer(ctx context.Context, consignmentID, viewerID string) error {
	c, err := e.store.Consignment(ctx, consignmentID)
	if err != nil {
		return err
	}
	if c.SideOf(viewerID) == consignment.SideNone {
		return ErrNotParty
	}
	return nil
}

func (e *Engine) newVersion(consignmentID, proposerID string, terms Terms, previousID *string) Agreement {
	now := e.now().UTC()
	return Agreement{
		ID:                e.idGenerator(),
		ConsignmentID:     consignmentID,
		ProposedBy:        proposerID,
		Status:            StatusProposed,
		Terms:             terms,
		PreviousVersionID: previousID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (e *Engine) notify(ctx context.Context, ev Event) {
	if e.notifier == nil || ev.RecipientID == "" {
		return
	}
	if err := e.notifier.Notify(ctx, ev); err != nil {
		e.logger.Warn("agreement: notification failed",
			"agreement_id", ev.ReferenceID,
			"recipient_id", ev.RecipientID,
			"kind", ev.Kind,
			"error", err,
		)
	}
}
