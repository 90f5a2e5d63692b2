package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ahmadramadhannn/mudah-titip/agreement"
	"github.com/ahmadramadhannn/mudah-titip/consignment"
)

var (
	// ErrNoAcceptedAgreement is returned when a consignment has no accepted agreement.
	ErrNoAcceptedAgreement = fmt.Errorf("%w: no accepted agreement", agreement.ErrNotFound)
	// ErrIntegrity signals stored state that should be impossible, such as two
	// accepted agreements for one consignment.
	ErrIntegrity = errors.New("settlement: data integrity violation")
)

// Result is a settlement snapshot computed on demand. It is never persisted.
type Result struct {
	ConsignmentID     string
	AgreementID       string
	ProductName       string
	ShopName          string
	ConsignorName     string
	CommissionType    agreement.CommissionType
	InitialQuantity   int
	SoldQuantity      int
	RemainingQuantity int
	SoldPercentage    decimal.Decimal
	TotalSales        decimal.Decimal
	ShopCommission    decimal.Decimal
	BonusAmount       decimal.Decimal
	TotalShopEarning  decimal.Decimal
	// ConsignorEarning is not clamped and goes negative when the bonus exceeds sales.
	ConsignorEarning    decimal.Decimal
	CommissionBreakdown string
	BonusApplied        bool
}

// Source provides the read side the calculator depends on. agreement.PGStore
// satisfies it.
type Source interface {
	Consignment(ctx context.Context, consignmentID string) (consignment.Consignment, error)
	ListByConsignment(ctx context.Context, consignmentID string, statuses ...agreement.Status) ([]agreement.Agreement, error)
}

// Calculator computes settlements for consignments with an accepted agreement.
type Calculator struct {
	source  Source
	printer *message.Printer
}

func NewCalculator(source Source) *Calculator {
	return &Calculator{
		source:  source,
		printer: message.NewPrinter(language.Indonesian),
	}
}

// WithLanguage switches the locale used to format the commission breakdown.
func (c *Calculator) WithLanguage(tag language.Tag) *Calculator {
	c.printer = message.NewPrinter(tag)
	return c
}

// Calculate loads the consignment and its accepted agreement and computes the split.
func (c *Calculator) Calculate(ctx context.Context, consignmentID string) (Result, error) {
	cons, err := c.source.Consignment(ctx, consignmentID)
	if err != nil {
		return Result{}, err
	}

	accepted, err := c.source.ListByConsignment(ctx, consignmentID, agreement.StatusAccepted)
	if err != nil {
		return Result{}, err
	}
	switch len(accepted) {
	case 0:
		return Result{}, ErrNoAcceptedAgreement
	case 1:
	default:
		return Result{}, fmt.Errorf("%w: consignment %s has %d accepted agreements", ErrIntegrity, consignmentID, len(accepted))
	}

	return Compute(cons, accepted[0], c.printer)
}

// Compute is the pure settlement calculation. Currency values are rounded
// half-up to two decimals.
func Compute(cons consignment.Consignment, agr agreement.Agreement, p *message.Printer) (Result, error) {
	if err := cons.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	if agr.Status != agreement.StatusAccepted {
		return Result{}, fmt.Errorf("%w: agreement %s is %s", ErrIntegrity, agr.ID, agr.Status)
	}
	s, err := schemeFor(agr.Terms)
	if err != nil {
		return Result{}, err
	}
	if p == nil {
		p = message.NewPrinter(language.Indonesian)
	}

	sold := cons.Sold()
	soldPercent := decimal.NewFromInt(int64(sold)).
		DivRound(decimal.NewFromInt(int64(cons.InitialQuantity)), 4).
		Mul(hundred).
		Round(2)
	totalSales := cons.SellingPrice.Mul(decimal.NewFromInt(int64(sold))).Round(2)

	commission := s.commission(sold, totalSales)
	bonus := bonusFor(agr.Terms, soldPercent)
	shopEarning := commission.Add(bonus)

	return Result{
		ConsignmentID:       cons.ID,
		AgreementID:         agr.ID,
		ProductName:         cons.ProductName,
		ShopName:            cons.ShopName,
		ConsignorName:       cons.ConsignorName,
		CommissionType:      agr.Terms.CommissionType,
		InitialQuantity:     cons.InitialQuantity,
		SoldQuantity:        sold,
		RemainingQuantity:   cons.CurrentQuantity,
		SoldPercentage:      soldPercent,
		TotalSales:          totalSales,
		ShopCommission:      commission,
		BonusAmount:         bonus,
		TotalShopEarning:    shopEarning,
		ConsignorEarning:    totalSales.Sub(shopEarning),
		CommissionBreakdown: s.breakdown(p, sold, totalSales, commission),
		BonusApplied:        bonus.IsPositive(),
	}, nil
}
