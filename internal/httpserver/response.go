package httpserver

import (
	"errors"
	"net/http"
	"time"

	"storefront/internal/domain"
	"storefront/internal/identity"
	"storefront/internal/session"
	"storefront/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type stateView struct {
	Version       uint64           `json:"version"`
	Currency      string           `json:"currency"`
	User          *domain.User     `json:"user"`
	IsSeller      bool             `json:"isSeller"`
	Products      []domain.Product `json:"products"`
	Cart          domain.Cart      `json:"cart"`
	CartCount     int              `json:"cartCount"`
	CartAmount    decimal.Decimal  `json:"cartAmount"`
	CatalogStatus statusView       `json:"catalogStatus"`
	UserStatus    statusView       `json:"userStatus"`
}

type statusView struct {
	Loaded   bool       `json:"loaded"`
	Stale    bool       `json:"stale"`
	LoadedAt *time.Time `json:"loadedAt,omitempty"`
	Error    string     `json:"error,omitempty"`
}

type cartView struct {
	Version  uint64          `json:"version"`
	Currency string          `json:"currency"`
	Items    domain.Cart     `json:"items"`
	Count    int             `json:"count"`
	Amount   decimal.Decimal `json:"amount"`
	Unknown  []string        `json:"unknownProductIds,omitempty"`
}

func toStateView(snap store.Snapshot) stateView {
	amount, _ := snap.CartAmount()
	products := snap.Products
	if products == nil {
		products = []domain.Product{}
	}
	return stateView{
		Version:       snap.Version,
		Currency:      snap.Currency,
		User:          snap.User,
		IsSeller:      snap.IsSeller,
		Products:      products,
		Cart:          snap.Cart,
		CartCount:     snap.CartCount(),
		CartAmount:    amount,
		CatalogStatus: toStatusView(snap.CatalogStatus),
		UserStatus:    toStatusView(snap.UserStatus),
	}
}

func toCartView(snap store.Snapshot) cartView {
	amount, missing := snap.CartAmount()
	return cartView{
		Version:  snap.Version,
		Currency: snap.Currency,
		Items:    snap.Cart,
		Count:    snap.CartCount(),
		Amount:   amount,
		Unknown:  missing,
	}
}

func toStatusView(s store.LoadStatus) statusView {
	out := statusView{Loaded: s.Loaded, Stale: s.Stale}
	if !s.LoadedAt.IsZero() {
		t := s.LoadedAt
		out.LoadedAt = &t
	}
	if s.Err != nil {
		out.Error = s.Err.Error()
	}
	return out
}

// writeError maps domain errors to HTTP status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal"
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		status, code = http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, session.ErrInvalidToken), errors.Is(err, identity.ErrUnauthenticated):
		status, code = http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, session.ErrTooManySessions):
		status, code = http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, domain.ErrLoadFailed):
		status, code = http.StatusBadGateway, "load_failed"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": code, "message": err.Error()})
}
