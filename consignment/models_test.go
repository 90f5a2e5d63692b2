package consignment

import (
	"testing"

	"github.com/shopspring/decimal"
)

func strPtr(s string) *string { return &s }

func TestSideOf(t *testing.T) {
	c := Consignment{ShopOwnerID: "shop-1", ConsignorID: strPtr("cons-1")}

	cases := map[string]Side{
		"shop-1": SideShop,
		"cons-1": SideConsignor,
		"other":  SideNone,
		"":       SideNone,
	}
	for user, want := range cases {
		if got := c.SideOf(user); got != want {
			t.Errorf("SideOf(%q): expected %q got %q", user, want, got)
		}
	}
}

func TestCounterparty(t *testing.T) {
	c := Consignment{ShopOwnerID: "shop-1", ConsignorID: strPtr("cons-1")}

	if got, ok := c.Counterparty("shop-1"); !ok || got != "cons-1" {
		t.Fatalf("expected consignor as counterparty of shop owner, got %q ok=%v", got, ok)
	}
	if got, ok := c.Counterparty("cons-1"); !ok || got != "shop-1" {
		t.Fatalf("expected shop owner as counterparty of consignor, got %q ok=%v", got, ok)
	}

	guest := Consignment{ShopOwnerID: "shop-1"}
	if _, ok := guest.Counterparty("shop-1"); ok {
		t.Fatal("expected no counterparty for a guest consignor")
	}
}

func TestValidate(t *testing.T) {
	valid := Consignment{InitialQuantity: 100, CurrentQuantity: 50, SellingPrice: decimal.NewFromInt(12000)}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if valid.Sold() != 50 {
		t.Fatalf("expected 50 sold, got %d", valid.Sold())
	}

	bad := []Consignment{
		{InitialQuantity: 0, CurrentQuantity: 0, SellingPrice: decimal.NewFromInt(1)},
		{InitialQuantity: 10, CurrentQuantity: 11, SellingPrice: decimal.NewFromInt(1)},
		{InitialQuantity: 10, CurrentQuantity: -1, SellingPrice: decimal.NewFromInt(1)},
		{InitialQuantity: 10, CurrentQuantity: 5, SellingPrice: decimal.Zero},
	}
	for i, c := range bad {
		if err := c.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}
