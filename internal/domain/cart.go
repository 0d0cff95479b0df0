package domain

import (
	"encoding/json"
	"sort"

	"github.com/shopspring/decimal"
)

// Cart maps product ids to quantities. A Cart value is never mutated after
// construction; With and Without return new carts and leave the receiver as is.
// Quantities stored in a Cart are always between 1 and MaxLineQuantity.
type Cart struct {
	lines map[string]int
}

// MaxLineQuantity bounds a single cart line so counts cannot overflow.
const MaxLineQuantity = 9999

// NewCart builds a cart from lines, dropping entries with quantity <= 0 and
// clamping the rest to MaxLineQuantity.
func NewCart(lines map[string]int) Cart {
	out := make(map[string]int, len(lines))
	for id, qty := range lines {
		if qty > 0 {
			out[id] = min(qty, MaxLineQuantity)
		}
	}
	return Cart{lines: out}
}

// Quantity returns the quantity stored for productID, or 0 when absent.
func (c Cart) Quantity(productID string) int {
	return c.lines[productID]
}

// Len returns the number of distinct lines.
func (c Cart) Len() int {
	return len(c.lines)
}

// Lines returns a copy of the cart contents.
func (c Cart) Lines() map[string]int {
	out := make(map[string]int, len(c.lines))
	for id, qty := range c.lines {
		out[id] = qty
	}
	return out
}

// ProductIDs returns the ids in the cart in lexical order.
func (c Cart) ProductIDs() []string {
	ids := make([]string, 0, len(c.lines))
	for id := range c.lines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// With returns a cart where productID has quantity qty. A qty <= 0 removes the
// line; quantities above MaxLineQuantity are clamped.
func (c Cart) With(productID string, qty int) Cart {
	if qty <= 0 {
		return c.Without(productID)
	}
	next := c.Lines()
	next[productID] = min(qty, MaxLineQuantity)
	return Cart{lines: next}
}

// Without returns a cart with productID removed.
func (c Cart) Without(productID string) Cart {
	next := c.Lines()
	delete(next, productID)
	return Cart{lines: next}
}

// Count sums all positive quantities.
func (c Cart) Count() int {
	total := 0
	for _, qty := range c.lines {
		if qty > 0 {
			total += qty
		}
	}
	return total
}

func (c Cart) MarshalJSON() ([]byte, error) {
	if c.lines == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c.lines)
}

func (c *Cart) UnmarshalJSON(data []byte) error {
	var lines map[string]int
	if err := json.Unmarshal(data, &lines); err != nil {
		return err
	}
	*c = NewCart(lines)
	return nil
}

var hundred = decimal.NewFromInt(100)

// CartAmount sums OfferPrice*quantity for every line whose product is in the
// catalog and floors the result to two decimal places. Ids without a catalog
// entry are skipped and returned in lexical order.
func CartAmount(cart Cart, catalog Catalog) (decimal.Decimal, []string) {
	total := decimal.Zero
	var missing []string
	for _, id := range cart.ProductIDs() {
		qty := cart.lines[id]
		p, ok := catalog[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		if qty > 0 {
			total = total.Add(p.OfferPrice.Mul(decimal.NewFromInt(int64(qty))))
		}
	}
	return total.Mul(hundred).Floor().Div(hundred), missing
}
