package actors

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ahmadramadhannn/mudah-titip/agreement"
)

// Party is one side of a consignment as seen by the actors.
type Party struct {
	ShopOwnerID string
	ConsignorID string
}

// Stats counts outcomes across all actors. Unexpected errors are recorded
// rather than returned.
type Stats struct {
	Proposed   atomic.Int64
	Countered  atomic.Int64
	Accepted   atomic.Int64
	Rejected   atomic.Int64
	Refused    atomic.Int64
	Unexpected atomic.Int64
	LastError  atomic.Value
}

func (s *Stats) record(counter *atomic.Int64, err error) {
	switch {
	case err == nil:
		counter.Add(1)
	case isDomainRefusal(err):
		s.Refused.Add(1)
	default:
		s.Unexpected.Add(1)
		s.LastError.Store(err.Error())
	}
}

func isDomainRefusal(err error) bool {
	return errors.Is(err, agreement.ErrConflict) ||
		errors.Is(err, agreement.ErrInvalidState) ||
		errors.Is(err, agreement.ErrSelfAction) ||
		errors.Is(err, agreement.ErrNotFound)
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, agreement.Event) error { return nil }

func randomTerms() agreement.Terms {
	switch rand.Intn(3) {
	case 0:
		return agreement.Terms{
			CommissionType:  agreement.CommissionPercentage,
			CommissionValue: decimal.NewFromInt(int64(5 + rand.Intn(20))),
		}
	case 1:
		return agreement.Terms{
			CommissionType:  agreement.CommissionFixedPerItem,
			CommissionValue: decimal.NewFromInt(int64(500 * (1 + rand.Intn(10)))),
		}
	default:
		threshold := 50 + rand.Intn(50)
		return agreement.Terms{
			CommissionType:        agreement.CommissionTieredBonus,
			BonusThresholdPercent: &threshold,
			BonusAmount:           decimal.NewNullDecimal(decimal.NewFromInt(50000)),
		}
	}
}

func pick(p Party) string {
	if rand.Intn(2) == 0 {
		return p.ShopOwnerID
	}
	return p.ConsignorID
}

func other(p Party, userID string) string {
	if userID == p.ShopOwnerID {
		return p.ConsignorID
	}
	return p.ShopOwnerID
}

func stopped(ctx context.Context, stop <-chan struct{}) (bool, error) {
	select {
	case <-ctx.Done():
		return true, ctx.Err()
	case <-stop:
		return true, nil
	default:
		return false, nil
	}
}

// Proposer keeps opening negotiations on random consignments.
func Proposer(ctx context.Context, engine *agreement.Engine, consignments []string, party Party, stats *Stats, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		_, err := engine.Propose(ctx, agreement.ProposeParams{
			ConsignmentID: consignments[rand.Intn(len(consignments))],
			ProposerID:    pick(party),
			Terms:         randomTerms(),
		})
		stats.record(&stats.Proposed, err)
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// Counterer supersedes random pending versions, mostly from the opposite side.
func Counterer(ctx context.Context, pool *pgxpool.Pool, engine *agreement.Engine, party Party, stats *Stats, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		id, proposer, ok := randomPending(ctx, pool)
		if ok {
			actor := other(party, proposer)
			if rand.Intn(5) == 0 {
				actor = proposer
			}
			_, err := engine.Counter(ctx, agreement.CounterParams{
				PreviousID: id,
				ProposerID: actor,
				Terms:      randomTerms(),
			})
			stats.record(&stats.Countered, err)
		}
		time.Sleep(time.Duration(15+rand.Intn(35)) * time.Millisecond)
	}
}

// Responder races accepts and rejects against pending versions. Every few
// attempts it answers its own proposal to exercise the self-action guard.
func Responder(ctx context.Context, pool *pgxpool.Pool, engine *agreement.Engine, party Party, stats *Stats, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		id, proposer, ok := randomPending(ctx, pool)
		if ok {
			actor := other(party, proposer)
			if rand.Intn(10) == 0 {
				actor = proposer
			}
			params := agreement.RespondParams{AgreementID: id, ResponderID: actor, Message: "stress"}
			if rand.Intn(4) == 0 {
				_, err := engine.Reject(ctx, params)
				stats.record(&stats.Rejected, err)
			} else {
				_, err := engine.Accept(ctx, params)
				stats.record(&stats.Accepted, err)
			}
		}
		time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
	}
}

func randomPending(ctx context.Context, pool *pgxpool.Pool) (string, string, bool) {
	var id, proposer string
	err := pool.QueryRow(ctx, `SELECT id::text, proposed_by::text FROM agreements WHERE status = 'PROPOSED' ORDER BY random() LIMIT 1`).Scan(&id, &proposer)
	if err != nil {
		return "", "", false
	}
	return id, proposer, true
}
