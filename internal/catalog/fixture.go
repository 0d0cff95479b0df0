package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"storefront/internal/domain"
)

//go:embed fixtures/products.json
var fixtureProducts []byte

// Fixture serves the embedded demo catalog.
type Fixture struct {
	products []domain.Product
}

// NewFixture parses the embedded demo catalog.
func NewFixture() (*Fixture, error) {
	return NewFixtureFromJSON(fixtureProducts)
}

// NewFixtureFromJSON builds a Fixture from a JSON array of products.
func NewFixtureFromJSON(data []byte) (*Fixture, error) {
	var products []domain.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("parse fixture products: %w", err)
	}
	return &Fixture{products: products}, nil
}

func (f *Fixture) FetchProducts(ctx context.Context) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]domain.Product, len(f.products))
	copy(out, f.products)
	return out, nil
}
