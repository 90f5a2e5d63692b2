package consignment

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Side identifies which party of a consignment a user acts for.
type Side string

const (
	SideNone      Side = ""
	SideShop      Side = "shop"
	SideConsignor Side = "consignor"
)

// Consignment is the read model of a product batch placed at a shop. Only the
// fields consumed by negotiation and settlement are mapped.
type Consignment struct {
	ID              string
	ProductName     string
	ShopName        string
	ShopOwnerID     string
	ConsignorID     *string
	ConsignorName   string
	InitialQuantity int
	CurrentQuantity int
	SellingPrice    decimal.Decimal
}

// Sold returns the number of units sold so far.
func (c Consignment) Sold() int {
	return c.InitialQuantity - c.CurrentQuantity
}

// SideOf resolves the side userID sits on. A user that owns both the shop and
// the product is treated as the shop side.
func (c Consignment) SideOf(userID string) Side {
	switch {
	case userID == "":
		return SideNone
	case userID == c.ShopOwnerID:
		return SideShop
	case c.ConsignorID != nil && *c.ConsignorID == userID:
		return SideConsignor
	default:
		return SideNone
	}
}

// Counterparty returns the user on the opposite side of userID. The boolean is
// false when the opposite side has no registered account (guest consignor).
func (c Consignment) Counterparty(userID string) (string, bool) {
	if userID == c.ShopOwnerID {
		if c.ConsignorID == nil || *c.ConsignorID == "" {
			return "", false
		}
		return *c.ConsignorID, true
	}
	return c.ShopOwnerID, c.ShopOwnerID != ""
}

// Validate checks the quantity and price invariants.
func (c Consignment) Validate() error {
	if c.InitialQuantity <= 0 {
		return fmt.Errorf("consignment: initial quantity must be positive, got %d", c.InitialQuantity)
	}
	if c.CurrentQuantity < 0 || c.CurrentQuantity > c.InitialQuantity {
		return fmt.Errorf("consignment: current quantity %d outside [0,%d]", c.CurrentQuantity, c.InitialQuantity)
	}
	if !c.SellingPrice.IsPositive() {
		return fmt.Errorf("consignment: selling price must be positive")
	}
	return nil
}
