// Package store holds a storefront session's catalog, identity and cart, and
// publishes an immutable snapshot after every change.
package store

import (
	"context"
	"io"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"storefront/internal/catalog"
	"storefront/internal/domain"
	"storefront/internal/identity"

	"github.com/shopspring/decimal"
)

// DefaultSellerRole is the identity role that grants merchant privileges.
const DefaultSellerRole = "seller"

// LoadStatus describes the outcome of the most recent catalog or identity load.
// When a load fails the previous data stays in the snapshot and Stale is set.
type LoadStatus struct {
	Loaded   bool      `json:"loaded"`
	Stale    bool      `json:"stale"`
	LoadedAt time.Time `json:"loadedAt,omitempty"`
	Err      error     `json:"-"`
}

// Failed reports whether the most recent load attempt failed.
func (s LoadStatus) Failed() bool {
	return s.Err != nil
}

// Snapshot is a view of the store at one version. Every Snapshot handed out
// by a Store owns its products and user, so writes to it stay local.
type Snapshot struct {
	Version       uint64
	Currency      string
	User          *domain.User
	IsSeller      bool
	Products      []domain.Product
	Cart          domain.Cart
	CatalogStatus LoadStatus
	UserStatus    LoadStatus

	catalog domain.Catalog
}

// CartCount returns the total quantity across all cart lines.
func (s Snapshot) CartCount() int {
	return s.Cart.Count()
}

// CartAmount returns the floored offer-price total and the cart ids that have
// no catalog entry.
func (s Snapshot) CartAmount() (decimal.Decimal, []string) {
	return domain.CartAmount(s.Cart, s.catalog)
}

// Product looks up a product by id in the snapshot's catalog.
func (s Snapshot) Product(id string) (domain.Product, bool) {
	p, ok := s.catalog[id]
	if ok {
		p.Images = slices.Clone(p.Images)
	}
	return p, ok
}

func (s Snapshot) clone() Snapshot {
	out := s
	if s.Products != nil {
		out.Products = make([]domain.Product, len(s.Products))
		for i, p := range s.Products {
			p.Images = slices.Clone(p.Images)
			out.Products[i] = p
		}
	}
	if s.User != nil {
		u := *s.User
		u.Roles = slices.Clone(u.Roles)
		out.User = &u
	}
	return out
}

// Options configures a Store.
type Options struct {
	Currency   string
	SellerRole string
	Logger     *log.Logger
}

// Store is the cart and catalog state container for one storefront session.
// It is safe for concurrent use.
type Store struct {
	source     catalog.Source
	identity   identity.Provider
	sellerRole string
	logger     *log.Logger
	now        func() time.Time

	mu      sync.RWMutex
	state   Snapshot
	subs    map[int]chan Snapshot
	nextSub int
}

func New(source catalog.Source, provider identity.Provider, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	role := strings.TrimSpace(opts.SellerRole)
	if role == "" {
		role = DefaultSellerRole
	}
	return &Store{
		source:     source,
		identity:   provider,
		sellerRole: role,
		logger:     logger,
		now:        time.Now,
		state: Snapshot{
			Currency: opts.Currency,
			Cart:     domain.NewCart(nil),
			catalog:  domain.Catalog{},
		},
		subs: make(map[int]chan Snapshot),
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// LoadCatalog fetches the product set and replaces the stored set wholesale.
// On failure the previous products remain and the catalog status is marked
// stale with the cause; the returned error matches domain.ErrLoadFailed.
func (s *Store) LoadCatalog(ctx context.Context) error {
	if s.source == nil {
		return s.failCatalog(&domain.LoadError{Source: "catalog", Err: domain.InvalidArgument("no catalog source configured")})
	}
	products, err := s.source.FetchProducts(ctx)
	if err != nil {
		return s.failCatalog(&domain.LoadError{Source: "catalog", Err: err})
	}

	owned := make([]domain.Product, len(products))
	copy(owned, products)
	idx := domain.NewCatalog(owned)

	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state
	next.Products = owned
	next.catalog = idx
	next.CatalogStatus = LoadStatus{Loaded: true, LoadedAt: s.now()}
	s.publishLocked(next)
	s.logger.Printf("store: catalog loaded count=%d", len(owned))
	return nil
}

func (s *Store) failCatalog(err *domain.LoadError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state
	next.CatalogStatus = LoadStatus{
		Loaded:   s.state.CatalogStatus.Loaded,
		Stale:    true,
		LoadedAt: s.state.CatalogStatus.LoadedAt,
		Err:      err,
	}
	s.publishLocked(next)
	s.logger.Printf("store: catalog load failed error=%v", err.Err)
	return err
}

// LoadUser fetches the current identity and replaces the stored user. The
// seller flag is derived from the user's roles. Failure keeps the previous
// user and marks the user status stale.
func (s *Store) LoadUser(ctx context.Context) error {
	if s.identity == nil {
		return s.failUser(&domain.LoadError{Source: "identity", Err: domain.InvalidArgument("no identity provider configured")})
	}
	user, err := s.identity.CurrentUser(ctx)
	if err != nil {
		return s.failUser(&domain.LoadError{Source: "identity", Err: err})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state
	next.User = user
	next.IsSeller = user.HasRole(s.sellerRole)
	next.UserStatus = LoadStatus{Loaded: true, LoadedAt: s.now()}
	s.publishLocked(next)
	if user != nil {
		s.logger.Printf("store: user loaded id=%s seller=%t", user.ID, next.IsSeller)
	}
	return nil
}

func (s *Store) failUser(err *domain.LoadError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state
	next.UserStatus = LoadStatus{
		Loaded:   s.state.UserStatus.Loaded,
		Stale:    true,
		LoadedAt: s.state.UserStatus.LoadedAt,
		Err:      err,
	}
	s.publishLocked(next)
	s.logger.Printf("store: user load failed error=%v", err.Err)
	return err
}

// SetSeller overrides the seller flag derived from the identity.
func (s *Store) SetSeller(isSeller bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state
	next.IsSeller = isSeller
	s.publishLocked(next)
}

// AddToCart increments the quantity for productID, creating the line at 1.
// Product ids missing from the catalog are accepted and stored verbatim.
func (s *Store) AddToCart(productID string) error {
	if strings.TrimSpace(productID) == "" {
		return domain.InvalidArgument("product id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	qty := s.state.Cart.Quantity(productID)
	if qty >= domain.MaxLineQuantity {
		return domain.InvalidArgument("quantity for %s must not exceed %d", productID, domain.MaxLineQuantity)
	}
	next := s.state
	next.Cart = s.state.Cart.With(productID, qty+1)
	s.publishLocked(next)
	return nil
}

// UpdateCartQuantity sets the quantity for productID. Zero removes the line;
// negative quantities and quantities above domain.MaxLineQuantity are rejected.
func (s *Store) UpdateCartQuantity(productID string, quantity int) error {
	if strings.TrimSpace(productID) == "" {
		return domain.InvalidArgument("product id required")
	}
	if err := checkQuantity(productID, quantity); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state
	if quantity == 0 {
		next.Cart = s.state.Cart.Without(productID)
	} else {
		next.Cart = s.state.Cart.With(productID, quantity)
	}
	s.publishLocked(next)
	return nil
}

// ReplaceCart swaps the whole cart. Zero-quantity lines are dropped; a blank
// id or an out-of-range quantity rejects the replacement.
func (s *Store) ReplaceCart(lines map[string]int) error {
	for id, qty := range lines {
		if strings.TrimSpace(id) == "" {
			return domain.InvalidArgument("product id required")
		}
		if err := checkQuantity(id, qty); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state
	next.Cart = domain.NewCart(lines)
	s.publishLocked(next)
	return nil
}

func checkQuantity(productID string, quantity int) error {
	if quantity < 0 {
		return domain.InvalidArgument("quantity for %s must not be negative, got %d", productID, quantity)
	}
	if quantity > domain.MaxLineQuantity {
		return domain.InvalidArgument("quantity for %s must not exceed %d, got %d", productID, domain.MaxLineQuantity, quantity)
	}
	return nil
}

// CartCount returns the sum of all cart quantities.
func (s *Store) CartCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.CartCount()
}

// CartAmount returns the offer-price total floored to two decimals. Cart lines
// whose product is not in the catalog are skipped and logged.
func (s *Store) CartAmount() decimal.Decimal {
	s.mu.RLock()
	snap := s.state
	s.mu.RUnlock()
	amount, missing := snap.CartAmount()
	if len(missing) > 0 {
		s.logger.Printf("store: cart references unknown products ids=%s version=%d", strings.Join(missing, ","), snap.Version)
	}
	return amount
}

// Subscribe returns a channel that always holds the latest snapshot. Slow
// readers skip intermediate versions. The current snapshot is delivered
// immediately. Call cancel to release the subscription; it closes the channel.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.state.clone()
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// publishLocked installs next as the current state and hands it to every
// subscriber. Caller must hold s.mu for writing.
func (s *Store) publishLocked(next Snapshot) {
	next.Version = s.state.Version + 1
	s.state = next
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- next.clone()
	}
}
