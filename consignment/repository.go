package consignment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ErrNotFound signals the requested consignment does not exist.
var ErrNotFound = errors.New("consignment: not found")

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const selectConsignmentSQL = `
	SELECT c.id::text,
	       p.name,
	       s.name,
	       s.owner_id::text,
	       p.owner_id::text,
	       COALESCE(u.name, p.guest_owner_name, ''),
	       c.initial_quantity,
	       c.current_quantity,
	       c.selling_price::text
	FROM consignments c
	JOIN products p ON p.id = c.product_id
	JOIN shops s ON s.id = c.shop_id
	LEFT JOIN users u ON u.id = p.owner_id
	WHERE c.id = $1
`

// Get loads a consignment through q without locking.
func Get(ctx context.Context, q Querier, id string) (Consignment, error) {
	if uuid.Validate(id) != nil {
		return Consignment{}, ErrNotFound
	}
	return scan(q.QueryRow(ctx, selectConsignmentSQL, id))
}

// Lock loads a consignment and holds its row lock until tx ends. Every
// negotiation write on the consignment goes through this lock.
func Lock(ctx context.Context, tx pgx.Tx, id string) (Consignment, error) {
	if uuid.Validate(id) != nil {
		return Consignment{}, ErrNotFound
	}
	return scan(tx.QueryRow(ctx, selectConsignmentSQL+" FOR UPDATE OF c", id))
}

func scan(row pgx.Row) (Consignment, error) {
	var (
		c           Consignment
		consignorID *string
		price       string
	)
	err := row.Scan(
		&c.ID,
		&c.ProductName,
		&c.ShopName,
		&c.ShopOwnerID,
		&consignorID,
		&c.ConsignorName,
		&c.InitialQuantity,
		&c.CurrentQuantity,
		&price,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Consignment{}, ErrNotFound
		}
		return Consignment{}, fmt.Errorf("consignment: query by id: %w", err)
	}

	c.SellingPrice, err = decimal.NewFromString(price)
	if err != nil {
		return Consignment{}, fmt.Errorf("consignment: parse selling price %q: %w", price, err)
	}
	c.ConsignorID = consignorID
	return c, nil
}
