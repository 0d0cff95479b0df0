package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry. Products are immutable once loaded.
type Product struct {
	ID          string          `json:"id"`
	SellerID    string          `json:"sellerId,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`
	Price       decimal.Decimal `json:"price"`
	OfferPrice  decimal.Decimal `json:"offerPrice"`
	Images      []string        `json:"images,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Catalog indexes products by id for cart math.
type Catalog map[string]Product

// NewCatalog builds an index over products. Later duplicates win.
func NewCatalog(products []Product) Catalog {
	idx := make(Catalog, len(products))
	for _, p := range products {
		idx[p.ID] = p
	}
	return idx
}
