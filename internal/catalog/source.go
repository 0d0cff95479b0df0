// Package catalog provides the product sources a storefront store loads from.
package catalog

import (
	"context"

	"storefront/internal/domain"
)

// Source supplies the full product set. Implementations return a fresh slice
// on every call; callers may keep it.
type Source interface {
	FetchProducts(ctx context.Context) ([]domain.Product, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]domain.Product, error)

func (f SourceFunc) FetchProducts(ctx context.Context) ([]domain.Product, error) {
	return f(ctx)
}
