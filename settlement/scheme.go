package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/message"

	"github.com/ahmadramadhannn/mudah-titip/agreement"
)

var hundred = decimal.NewFromInt(100)

// scheme is the commission strategy selected by an agreement's commission type.
type scheme interface {
	commission(sold int, totalSales decimal.Decimal) decimal.Decimal
	breakdown(p *message.Printer, sold int, totalSales, commission decimal.Decimal) string
}

type percentage struct {
	points decimal.Decimal
}

func (s percentage) commission(_ int, totalSales decimal.Decimal) decimal.Decimal {
	rate := s.points.DivRound(hundred, 4)
	return totalSales.Mul(rate).Round(2)
}

func (s percentage) breakdown(p *message.Printer, _ int, totalSales, commission decimal.Decimal) string {
	return p.Sprintf("%.2f%% × Rp%.0f = Rp%.0f",
		s.points.InexactFloat64(), totalSales.InexactFloat64(), commission.InexactFloat64())
}

type fixedPerItem struct {
	perItem decimal.Decimal
}

func (s fixedPerItem) commission(sold int, _ decimal.Decimal) decimal.Decimal {
	return s.perItem.Mul(decimal.NewFromInt(int64(sold))).Round(2)
}

func (s fixedPerItem) breakdown(p *message.Printer, sold int, _, commission decimal.Decimal) string {
	return p.Sprintf("Rp%.0f × %d item = Rp%.0f",
		s.perItem.InexactFloat64(), sold, commission.InexactFloat64())
}

// tieredBonus earns nothing up front; the shop is paid only through the bonus clause.
type tieredBonus struct{}

func (tieredBonus) commission(int, decimal.Decimal) decimal.Decimal {
	return decimal.Zero
}

func (tieredBonus) breakdown(p *message.Printer, _ int, _, _ decimal.Decimal) string {
	return p.Sprintf("Bonus based on sales threshold")
}

func schemeFor(terms agreement.Terms) (scheme, error) {
	switch terms.CommissionType {
	case agreement.CommissionPercentage:
		return percentage{points: terms.CommissionValue}, nil
	case agreement.CommissionFixedPerItem:
		return fixedPerItem{perItem: terms.CommissionValue}, nil
	case agreement.CommissionTieredBonus:
		return tieredBonus{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown commission type %q", agreement.ErrInvalidTerms, terms.CommissionType)
	}
}

// bonusFor applies the bonus clause. The clause is active for TIERED_BONUS or
// whenever a threshold is set; an unset threshold counts as zero.
func bonusFor(terms agreement.Terms, soldPercent decimal.Decimal) decimal.Decimal {
	if terms.CommissionType != agreement.CommissionTieredBonus && terms.BonusThresholdPercent == nil {
		return decimal.Zero
	}

	threshold := 0
	if terms.BonusThresholdPercent != nil {
		threshold = *terms.BonusThresholdPercent
	}
	if soldPercent.LessThan(decimal.NewFromInt(int64(threshold))) {
		return decimal.Zero
	}
	if !terms.BonusAmount.Valid {
		return decimal.Zero
	}
	return terms.BonusAmount.Decimal
}
