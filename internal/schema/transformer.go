package schema

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/domain"
)

// CanonicalRow is the normalized, typed form of one validated source row.
type CanonicalRow struct {
	InvoiceNo   string
	InvoiceDate time.Time
	StoreName   string
	ProductName string
	Quantity    float64
	UnitPrice   float64
	Total       float64
}

// Transform converts a validator-approved, canonically-mapped record into
// a CanonicalRow. It is total for valid input: any error here indicates a
// row that slipped past validation and is reported under the transform
// category by the caller.
func Transform(rec RawRecord, rules RuleSet) (*CanonicalRow, error) {
	date, err := ParseDate(rec[FieldInvoiceDate])
	if err != nil {
		return nil, fmt.Errorf("invoice date: %w", err)
	}

	qty, err := ParseNumber(rec[FieldQuantity])
	if err != nil {
		return nil, fmt.Errorf("quantity: %w", err)
	}
	price, err := ParseNumber(rec[FieldUnitPrice])
	if err != nil {
		return nil, fmt.Errorf("unit price: %w", err)
	}

	// Total is optional in the source; derive it when absent.
	total := qty * price
	if raw := strings.TrimSpace(rec[FieldTotal]); raw != "" {
		if parsed, perr := ParseNumber(raw); perr == nil {
			total = parsed
		}
	}

	return &CanonicalRow{
		InvoiceNo:   rec[FieldInvoiceNo],
		InvoiceDate: date,
		StoreName:   rec[FieldStoreName],
		ProductName: rec[FieldProductName],
		Quantity:    qty,
		UnitPrice:   price,
		Total:       total,
	}, nil
}

// Hash returns the deterministic content hash over the canonical field
// values. Equal rows hash equal regardless of source formatting quirks
// ("$1,234.50" and "1234.5" produce the same hash).
func (r *CanonicalRow) Hash() string {
	payload := strings.Join([]string{
		r.InvoiceNo,
		r.InvoiceDate.Format("2006-01-02"),
		r.StoreName,
		r.ProductName,
		strconv.FormatFloat(r.Quantity, 'f', -1, 64),
		strconv.FormatFloat(r.UnitPrice, 'f', -1, 64),
		strconv.FormatFloat(r.Total, 'f', -1, 64),
	}, "|")
	sum := md5.Sum([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// BusinessKey returns the natural key of the row within the destination
// store.
func (r *CanonicalRow) BusinessKey() string {
	return r.InvoiceNo + "|" + r.ProductName
}

// ToInvoiceLine materializes the row as the storage model. The duplicate
// flag marks rows admitted under the flag dedup policy.
func (r *CanonicalRow) ToInvoiceLine(duplicate bool) domain.InvoiceLine {
	return domain.InvoiceLine{
		InvoiceNo:   r.InvoiceNo,
		InvoiceDate: r.InvoiceDate,
		StoreName:   r.StoreName,
		ProductName: r.ProductName,
		Quantity:    r.Quantity,
		UnitPrice:   r.UnitPrice,
		Total:       r.Total,
		RowHash:     r.Hash(),
		Duplicate:   duplicate,
	}
}
