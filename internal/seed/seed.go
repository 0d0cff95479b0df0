package seed

import (
	"context"
	"fmt"

	"storefront/internal/catalog"
	"storefront/internal/domain"
)

// Apply copies every product from src into dst. Upserts keep it idempotent.
func Apply(ctx context.Context, src catalog.Source, dst catalog.ProductWriter) (int, error) {
	products, err := src.FetchProducts(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch seed products: %w", err)
	}
	for i, p := range products {
		if err := upsertProduct(ctx, dst, p); err != nil {
			return i, err
		}
	}
	return len(products), nil
}

func upsertProduct(ctx context.Context, dst catalog.ProductWriter, p domain.Product) error {
	if _, err := dst.Upsert(ctx, p); err != nil {
		return fmt.Errorf("upsert product %s: %w", p.ID, err)
	}
	return nil
}
