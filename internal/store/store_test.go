package store

import (
	"bytes"
	"context"
	"errors"
	"log"
	"math"
	"strings"
	"sync"
	"testing"

	"storefront/internal/catalog"
	"storefront/internal/domain"
	"storefront/internal/identity"

	"github.com/shopspring/decimal"
)

type stubSource struct {
	products []domain.Product
	err      error
	calls    int
}

func (s *stubSource) FetchProducts(_ context.Context) ([]domain.Product, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.products, nil
}

type stubIdentity struct {
	user *domain.User
	err  error
}

func (s *stubIdentity) CurrentUser(_ context.Context) (*domain.User, error) {
	return s.user, s.err
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newTestStore(t *testing.T, products ...domain.Product) (*Store, *stubSource) {
	t.Helper()
	src := &stubSource{products: products}
	s := New(src, &stubIdentity{user: &domain.User{ID: "u1"}}, Options{Currency: "USD"})
	if err := s.LoadCatalog(context.Background()); err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	return s, src
}

func TestInitialState(t *testing.T) {
	s := New(nil, nil, Options{Currency: "EUR"})
	snap := s.Snapshot()
	if snap.Currency != "EUR" || snap.User != nil || snap.IsSeller || len(snap.Products) != 0 || snap.Cart.Len() != 0 {
		t.Fatalf("unexpected initial snapshot %+v", snap)
	}
	if snap.CatalogStatus.Loaded || snap.UserStatus.Loaded {
		t.Fatalf("nothing should be loaded yet")
	}
	if s.CartCount() != 0 || !s.CartAmount().IsZero() {
		t.Fatalf("empty store must report zero count and amount")
	}
}

func TestAddTwiceThenAmountFloors(t *testing.T) {
	s, _ := newTestStore(t, domain.Product{ID: "p1", OfferPrice: dec("19.995")})

	for i := 0; i < 2; i++ {
		if err := s.AddToCart("p1"); err != nil {
			t.Fatalf("AddToCart: %v", err)
		}
	}

	if q := s.Snapshot().Cart.Quantity("p1"); q != 2 {
		t.Fatalf("expected quantity 2, got %d", q)
	}
	if c := s.CartCount(); c != 2 {
		t.Fatalf("expected count 2, got %d", c)
	}
	if a := s.CartAmount(); !a.Equal(dec("39.99")) {
		t.Fatalf("expected amount 39.99, got %s", a)
	}

	if err := s.UpdateCartQuantity("p1", 0); err != nil {
		t.Fatalf("UpdateCartQuantity: %v", err)
	}
	snap := s.Snapshot()
	if snap.Cart.Len() != 0 || s.CartCount() != 0 || !s.CartAmount().IsZero() {
		t.Fatalf("expected empty cart, got %v", snap.Cart.Lines())
	}
}

func TestAddUnknownProductIsCountedButNotPriced(t *testing.T) {
	var buf bytes.Buffer
	src := &stubSource{products: []domain.Product{{ID: "p1", OfferPrice: dec("5")}}}
	s := New(src, nil, Options{Logger: log.New(&buf, "", 0)})
	if err := s.LoadCatalog(context.Background()); err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}

	if err := s.AddToCart("unknown"); err != nil {
		t.Fatalf("AddToCart: %v", err)
	}
	if s.CartCount() != 1 {
		t.Fatalf("expected count 1, got %d", s.CartCount())
	}
	if !s.CartAmount().IsZero() {
		t.Fatalf("expected zero amount, got %s", s.CartAmount())
	}
	if !strings.Contains(buf.String(), "unknown products ids=unknown") {
		t.Fatalf("expected anomaly to be logged, got %q", buf.String())
	}
}

func TestAddCountMatchesNumberOfAdds(t *testing.T) {
	s, _ := newTestStore(t)
	adds := map[string]int{"a": 3, "b": 1, "c": 7}
	for id, n := range adds {
		for i := 0; i < n; i++ {
			if err := s.AddToCart(id); err != nil {
				t.Fatalf("AddToCart: %v", err)
			}
		}
	}
	snap := s.Snapshot()
	total := 0
	for id, n := range adds {
		if got := snap.Cart.Quantity(id); got != n {
			t.Fatalf("quantity for %s = %d, want %d", id, got, n)
		}
		total += n
	}
	if s.CartCount() != total {
		t.Fatalf("count %d, want %d", s.CartCount(), total)
	}
}

func TestAddToCartRejectsBlankID(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.AddToCart("  "); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestAddToCartKeepsIDVerbatim(t *testing.T) {
	s, _ := newTestStore(t)
	_ = s.AddToCart("p1")
	_ = s.AddToCart(" p1")
	cart := s.Snapshot().Cart
	if cart.Len() != 2 || cart.Quantity("p1") != 1 || cart.Quantity(" p1") != 1 {
		t.Fatalf("ids must not be rewritten, got %v", cart.Lines())
	}
}

func TestQuantityLimit(t *testing.T) {
	s, _ := newTestStore(t)

	if err := s.UpdateCartQuantity("a", domain.MaxLineQuantity); err != nil {
		t.Fatalf("UpdateCartQuantity at limit: %v", err)
	}
	before := s.Snapshot()
	if err := s.AddToCart("a"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument past the limit, got %v", err)
	}
	after := s.Snapshot()
	if after.Version != before.Version || after.Cart.Quantity("a") != domain.MaxLineQuantity {
		t.Fatalf("rejected add must leave the line untouched, got %d", after.Cart.Quantity("a"))
	}

	for _, qty := range []int{domain.MaxLineQuantity + 1, math.MaxInt} {
		if err := s.UpdateCartQuantity("b", qty); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("UpdateCartQuantity(%d): expected invalid argument, got %v", qty, err)
		}
		if err := s.ReplaceCart(map[string]int{"b": qty}); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("ReplaceCart(%d): expected invalid argument, got %v", qty, err)
		}
	}
	if got := s.CartCount(); got != domain.MaxLineQuantity {
		t.Fatalf("count %d, want %d", got, domain.MaxLineQuantity)
	}
}

func TestSnapshotsOwnTheirData(t *testing.T) {
	s, _ := newTestStore(t, domain.Product{ID: "p1", Name: "One", Images: []string{"a.jpg"}})
	s.identity = &stubIdentity{user: &domain.User{ID: "u1", Roles: []string{"seller"}}}
	if err := s.LoadUser(context.Background()); err != nil {
		t.Fatalf("LoadUser: %v", err)
	}

	snap := s.Snapshot()
	snap.Products[0].Name = "changed"
	snap.Products[0].Images[0] = "changed.jpg"
	snap.User.Roles[0] = "admin"
	p, _ := snap.Product("p1")
	p.Images[0] = "changed.jpg"

	fresh := s.Snapshot()
	if fresh.Products[0].Name != "One" || fresh.Products[0].Images[0] != "a.jpg" {
		t.Fatalf("product mutation leaked: %+v", fresh.Products[0])
	}
	if fresh.User.Roles[0] != "seller" {
		t.Fatalf("user mutation leaked: %+v", fresh.User)
	}
	if p, _ := fresh.Product("p1"); p.Images[0] != "a.jpg" {
		t.Fatalf("catalog mutation leaked: %+v", p)
	}
}

func TestUpdateCartQuantity(t *testing.T) {
	s, _ := newTestStore(t, domain.Product{ID: "p1", OfferPrice: dec("2.50")})

	if err := s.UpdateCartQuantity("p1", 4); err != nil {
		t.Fatalf("UpdateCartQuantity: %v", err)
	}
	if a := s.CartAmount(); !a.Equal(dec("10")) {
		t.Fatalf("expected 10, got %s", a)
	}

	before := s.Snapshot()
	if err := s.UpdateCartQuantity("p1", -1); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	after := s.Snapshot()
	if after.Version != before.Version || after.Cart.Quantity("p1") != 4 {
		t.Fatalf("rejected update must not publish")
	}

	if err := s.UpdateCartQuantity("", 1); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for blank id, got %v", err)
	}

	if err := s.UpdateCartQuantity("absent", 0); err != nil {
		t.Fatalf("removing an absent line should succeed: %v", err)
	}
}

func TestMutatorsLeavePublishedSnapshotsUntouched(t *testing.T) {
	s, _ := newTestStore(t, domain.Product{ID: "p1", OfferPrice: dec("1")})
	if err := s.AddToCart("p1"); err != nil {
		t.Fatalf("AddToCart: %v", err)
	}
	old := s.Snapshot()

	_ = s.AddToCart("p1")
	_ = s.AddToCart("p2")
	_ = s.UpdateCartQuantity("p1", 0)

	if old.Cart.Quantity("p1") != 1 || old.Cart.Len() != 1 {
		t.Fatalf("old snapshot changed: %v", old.Cart.Lines())
	}
	if cur := s.Snapshot(); cur.Version <= old.Version {
		t.Fatalf("expected version to advance, old=%d cur=%d", old.Version, cur.Version)
	}
}

func TestCartNeverHoldsZeroQuantity(t *testing.T) {
	s, _ := newTestStore(t)
	ops := []func() error{
		func() error { return s.AddToCart("a") },
		func() error { return s.UpdateCartQuantity("a", 0) },
		func() error { return s.UpdateCartQuantity("b", 3) },
		func() error { return s.ReplaceCart(map[string]int{"c": 0, "d": 2}) },
		func() error { return s.AddToCart("c") },
	}
	for i, op := range ops {
		if err := op(); err != nil {
			t.Fatalf("op %d: %v", i, err)
		}
		for id, qty := range s.Snapshot().Cart.Lines() {
			if qty < 1 {
				t.Fatalf("op %d left %s with quantity %d", i, id, qty)
			}
		}
	}
}

func TestReplaceCart(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.ReplaceCart(map[string]int{"a": 2, "b": 0}); err != nil {
		t.Fatalf("ReplaceCart: %v", err)
	}
	if s.CartCount() != 2 || s.Snapshot().Cart.Len() != 1 {
		t.Fatalf("unexpected cart %v", s.Snapshot().Cart.Lines())
	}
	if err := s.ReplaceCart(map[string]int{"a": -1}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if err := s.ReplaceCart(map[string]int{"": 1}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if s.Snapshot().Cart.Quantity("a") != 2 {
		t.Fatalf("rejected replacement must keep previous cart")
	}
}

func TestAmountIgnoresCatalogEntriesOutsideCart(t *testing.T) {
	small, _ := newTestStore(t, domain.Product{ID: "p1", OfferPrice: dec("3.33")})
	big, _ := newTestStore(t,
		domain.Product{ID: "p1", OfferPrice: dec("3.33")},
		domain.Product{ID: "p2", OfferPrice: dec("100")},
	)
	for _, s := range []*Store{small, big} {
		_ = s.UpdateCartQuantity("p1", 3)
	}
	if !small.CartAmount().Equal(big.CartAmount()) {
		t.Fatalf("amount depends on unrelated catalog entries: %s vs %s", small.CartAmount(), big.CartAmount())
	}
}

func TestLoadCatalogReplacesWholesale(t *testing.T) {
	s, src := newTestStore(t, domain.Product{ID: "p1"}, domain.Product{ID: "p2"})
	src.products = []domain.Product{{ID: "p3"}}
	if err := s.LoadCatalog(context.Background()); err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	snap := s.Snapshot()
	if len(snap.Products) != 1 || snap.Products[0].ID != "p3" {
		t.Fatalf("unexpected products %+v", snap.Products)
	}
	if _, ok := snap.Product("p1"); ok {
		t.Fatalf("old catalog entry still indexed")
	}
	if _, ok := snap.Product("p3"); !ok {
		t.Fatalf("new catalog entry not indexed")
	}
}

func TestLoadCatalogFailureKeepsStaleData(t *testing.T) {
	s, src := newTestStore(t, domain.Product{ID: "p1"})
	cause := errors.New("upstream down")
	src.err = cause

	err := s.LoadCatalog(context.Background())
	if !errors.Is(err, domain.ErrLoadFailed) || !errors.Is(err, cause) {
		t.Fatalf("expected load failure wrapping cause, got %v", err)
	}

	snap := s.Snapshot()
	if len(snap.Products) != 1 || snap.Products[0].ID != "p1" {
		t.Fatalf("previous products must stay visible, got %+v", snap.Products)
	}
	if !snap.CatalogStatus.Stale || !snap.CatalogStatus.Failed() || !snap.CatalogStatus.Loaded {
		t.Fatalf("unexpected catalog status %+v", snap.CatalogStatus)
	}

	src.err = nil
	if err := s.LoadCatalog(context.Background()); err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if st := s.Snapshot().CatalogStatus; st.Stale || st.Failed() {
		t.Fatalf("successful reload must clear stale state, got %+v", st)
	}
}

func TestLoadCatalogWithoutSource(t *testing.T) {
	s := New(nil, nil, Options{})
	if err := s.LoadCatalog(context.Background()); !errors.Is(err, domain.ErrLoadFailed) {
		t.Fatalf("expected load failure, got %v", err)
	}
}

func TestLoadCatalogFromFixture(t *testing.T) {
	f, err := catalog.NewFixture()
	if err != nil {
		t.Fatalf("NewFixture: %v", err)
	}
	s := New(f, identity.NewStatic(identity.DemoUser()), Options{})
	if err := s.LoadCatalog(context.Background()); err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if len(s.Snapshot().Products) == 0 {
		t.Fatalf("expected fixture products")
	}
}

func TestLoadUserDerivesSellerFlag(t *testing.T) {
	idp := &stubIdentity{user: &domain.User{ID: "u1", Roles: []string{"seller"}}}
	s := New(&stubSource{}, idp, Options{})
	if err := s.LoadUser(context.Background()); err != nil {
		t.Fatalf("LoadUser: %v", err)
	}
	snap := s.Snapshot()
	if snap.User == nil || snap.User.ID != "u1" || !snap.IsSeller {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	idp.user = &domain.User{ID: "u2"}
	if err := s.LoadUser(context.Background()); err != nil {
		t.Fatalf("LoadUser: %v", err)
	}
	if s.Snapshot().IsSeller {
		t.Fatalf("seller flag must follow identity roles")
	}
}

func TestLoadUserCustomSellerRole(t *testing.T) {
	idp := &stubIdentity{user: &domain.User{ID: "u1", Roles: []string{"merchant"}}}
	s := New(nil, idp, Options{SellerRole: "merchant"})
	if err := s.LoadUser(context.Background()); err != nil {
		t.Fatalf("LoadUser: %v", err)
	}
	if !s.Snapshot().IsSeller {
		t.Fatalf("expected merchant role to grant seller flag")
	}
}

func TestLoadUserFailureKeepsPreviousUser(t *testing.T) {
	idp := &stubIdentity{user: &domain.User{ID: "u1"}}
	s := New(nil, idp, Options{})
	if err := s.LoadUser(context.Background()); err != nil {
		t.Fatalf("LoadUser: %v", err)
	}
	idp.err = identity.ErrUnauthenticated
	err := s.LoadUser(context.Background())
	if !errors.Is(err, domain.ErrLoadFailed) || !errors.Is(err, identity.ErrUnauthenticated) {
		t.Fatalf("expected load failure, got %v", err)
	}
	snap := s.Snapshot()
	if snap.User == nil || snap.User.ID != "u1" || !snap.UserStatus.Stale {
		t.Fatalf("expected stale previous user, got %+v", snap)
	}
}

func TestSetSellerOverrides(t *testing.T) {
	s := New(nil, nil, Options{})
	s.SetSeller(true)
	if !s.Snapshot().IsSeller {
		t.Fatalf("expected seller flag set")
	}
	s.SetSeller(false)
	if s.Snapshot().IsSeller {
		t.Fatalf("expected seller flag cleared")
	}
}

func TestSubscribeReceivesLatestSnapshot(t *testing.T) {
	s, _ := newTestStore(t)
	ch, cancel := s.Subscribe()
	defer cancel()

	first := <-ch
	if first.Version != s.Snapshot().Version {
		t.Fatalf("expected current snapshot on subscribe")
	}

	_ = s.AddToCart("a")
	_ = s.AddToCart("a")
	_ = s.AddToCart("b")

	latest := <-ch
	if latest.Version != s.Snapshot().Version {
		t.Fatalf("expected coalesced latest version %d, got %d", s.Snapshot().Version, latest.Version)
	}
	if latest.Cart.Quantity("a") != 2 || latest.Cart.Quantity("b") != 1 {
		t.Fatalf("unexpected cart %v", latest.Cart.Lines())
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra snapshot version %d", extra.Version)
	default:
	}
}

func TestSubscribeCancelClosesChannel(t *testing.T) {
	s, _ := newTestStore(t)
	ch, cancel := s.Subscribe()
	<-ch
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	if err := s.AddToCart("a"); err != nil {
		t.Fatalf("AddToCart after cancel: %v", err)
	}
}

func TestConcurrentAddsAreNotLost(t *testing.T) {
	s, _ := newTestStore(t)
	ch, cancel := s.Subscribe()
	defer cancel()

	const workers, perWorker = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_ = s.AddToCart("p1")
			}
		}()
	}
	wg.Wait()

	if got := s.CartCount(); got != workers*perWorker {
		t.Fatalf("expected %d, got %d", workers*perWorker, got)
	}
	last := <-ch
	if last.Cart.Quantity("p1") != workers*perWorker {
		t.Fatalf("subscriber missed final state, got %d", last.Cart.Quantity("p1"))
	}
}
