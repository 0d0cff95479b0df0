package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"storefront/internal/domain"

	"github.com/shopspring/decimal"
)

type ProductWriter interface {
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
}

// CSVImporter reads product CSV exports and upserts them through a ProductWriter.
//
// Expected headers: id, sellerId, name, description, category, price,
// offerPrice, image. A row with an empty id continues the previous product
// and only contributes its image.
type CSVImporter struct {
	reader *csv.Reader
	writer ProductWriter
}

func NewCSVImporter(r io.Reader, writer ProductWriter) *CSVImporter {
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	return &CSVImporter{reader: csvr, writer: writer}
}

type csvRow struct {
	ID          string
	SellerID    string
	Name        string
	Description string
	Category    string
	Price       string
	OfferPrice  string
	Images      []string
}

// Run parses CSV rows and upserts one product per id. It returns the number of
// products written.
func (i *CSVImporter) Run(ctx context.Context) (int, error) {
	headers, err := i.reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)

	var (
		current  *csvRow
		imported int
	)

	for {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("read row: %w", err)
		}

		row := parseRow(record, index)
		if row == nil {
			continue
		}

		if row.ID != "" {
			if current != nil {
				if err := i.save(ctx, current); err != nil {
					return imported, err
				}
				imported++
			}
			current = row
			continue
		}

		if current != nil && len(row.Images) > 0 {
			current.Images = append(current.Images, row.Images...)
		}
	}

	if current != nil {
		if err := i.save(ctx, current); err != nil {
			return imported, err
		}
		imported++
	}

	return imported, nil
}

func (i *CSVImporter) save(ctx context.Context, row *csvRow) error {
	if row.Name == "" || row.Price == "" {
		return fmt.Errorf("invalid product row (missing required fields) for id %q", row.ID)
	}
	price, err := decimal.NewFromString(row.Price)
	if err != nil {
		return fmt.Errorf("invalid price for id %q: %w", row.ID, err)
	}
	offer := price
	if row.OfferPrice != "" {
		offer, err = decimal.NewFromString(row.OfferPrice)
		if err != nil {
			return fmt.Errorf("invalid offer price for id %q: %w", row.ID, err)
		}
	}
	if price.IsNegative() || offer.IsNegative() {
		return fmt.Errorf("negative price for id %q", row.ID)
	}

	p := domain.Product{
		ID:          row.ID,
		SellerID:    row.SellerID,
		Name:        row.Name,
		Description: row.Description,
		Category:    row.Category,
		Price:       price,
		OfferPrice:  offer,
		Images:      row.Images,
	}
	if _, err := i.writer.Upsert(ctx, p); err != nil {
		return fmt.Errorf("upsert product %q: %w", row.ID, err)
	}
	return nil
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.TrimSpace(h)] = i
	}
	return idx
}

func parseRow(record []string, index map[string]int) *csvRow {
	id := pick(record, index, "id")
	image := pick(record, index, "image")
	if id == "" && image == "" {
		return nil
	}
	row := &csvRow{
		ID:          id,
		SellerID:    pick(record, index, "sellerId"),
		Name:        pick(record, index, "name"),
		Description: pick(record, index, "description"),
		Category:    pick(record, index, "category"),
		Price:       pick(record, index, "price"),
		OfferPrice:  pick(record, index, "offerPrice"),
	}
	if image != "" {
		row.Images = []string{image}
	}
	return row
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}
