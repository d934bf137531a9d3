// Package schema holds the caller-supplied description of an uploaded file:
// which columns map to which canonical fields, and which rules a row must
// pass before it is transformed and written. Validation and transformation
// are pure; everything stateful lives in the service layer.
package schema

import "strings"

// Canonical field names produced by header mapping. These are the only
// keys the validator and transformer look at.
const (
	FieldInvoiceNo   = "invoice_no"
	FieldInvoiceDate = "invoice_date"
	FieldStoreName   = "store_name"
	FieldProductName = "product_name"
	FieldQuantity    = "quantity"
	FieldUnitPrice   = "unit_price"
	FieldTotal       = "total"
)

// RawRecord is one source row as read from the file, keyed by column name.
type RawRecord map[string]string

// RuleSet describes the validation rules for one upload job. All fields
// have working defaults from DefaultRuleSet; callers override per job.
type RuleSet struct {
	RequiredFields []string          `json:"required_fields"`
	NumericFields  []string          `json:"numeric_fields"`
	PositiveFields []string          `json:"positive_fields"`
	DateFields     []string          `json:"date_fields"`
	Aliases        map[string]string `json:"aliases"` // source header -> canonical field
	Epsilon        float64           `json:"epsilon"`  // tolerance for total == quantity * unit_price
}

// DefaultRuleSet returns the rule set for the standard invoice export
// format. Column headers vary between export tools ("Invoice No",
// "InvoiceNo", "Invoice ID"), so the alias table is deliberately wide.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		RequiredFields: []string{FieldInvoiceNo, FieldInvoiceDate, FieldProductName, FieldQuantity, FieldUnitPrice},
		NumericFields:  []string{FieldQuantity, FieldUnitPrice, FieldTotal},
		PositiveFields: []string{FieldQuantity, FieldUnitPrice},
		DateFields:     []string{FieldInvoiceDate},
		Aliases:        defaultAliases(),
		Epsilon:        0.01,
	}
}

// Merge overlays non-zero fields of other onto a copy of r. Alias tables
// are merged key by key so a job can add mappings without repeating the
// defaults.
func (r RuleSet) Merge(other RuleSet) RuleSet {
	merged := r
	if len(other.RequiredFields) > 0 {
		merged.RequiredFields = other.RequiredFields
	}
	if len(other.NumericFields) > 0 {
		merged.NumericFields = other.NumericFields
	}
	if len(other.PositiveFields) > 0 {
		merged.PositiveFields = other.PositiveFields
	}
	if len(other.DateFields) > 0 {
		merged.DateFields = other.DateFields
	}
	if other.Epsilon > 0 {
		merged.Epsilon = other.Epsilon
	}
	if len(other.Aliases) > 0 {
		aliases := make(map[string]string, len(r.Aliases)+len(other.Aliases))
		for k, v := range r.Aliases {
			aliases[k] = v
		}
		for k, v := range other.Aliases {
			aliases[normalizeHeader(k)] = v
		}
		merged.Aliases = aliases
	}
	return merged
}

// MapRecord rewrites a raw row's column names to canonical field names
// using the alias table. Unmapped columns are dropped; values are
// whitespace-trimmed. Lookup is insensitive to case, spaces, underscores,
// and dots, so "Invoice No", "invoice_no" and "InvoiceNo" all map alike.
func (r RuleSet) MapRecord(raw RawRecord) RawRecord {
	mapped := make(RawRecord, len(raw))
	for header, value := range raw {
		if canonical, ok := r.Aliases[normalizeHeader(header)]; ok {
			mapped[canonical] = strings.TrimSpace(value)
		}
	}
	return mapped
}

func defaultAliases() map[string]string {
	aliases := map[string]string{}
	add := func(canonical string, headers ...string) {
		for _, h := range headers {
			aliases[normalizeHeader(h)] = canonical
		}
	}
	add(FieldInvoiceNo, "Invoice No", "InvoiceNo", "Invoice ID", "Invoice Number")
	add(FieldInvoiceDate, "Invoice Date", "Date", "Order Date")
	add(FieldStoreName, "Store Name", "Customer Name", "Store")
	add(FieldProductName, "Item Name", "Product Name", "Product", "Item")
	add(FieldQuantity, "Quantity", "Qty")
	add(FieldUnitPrice, "Item Price", "Unit Price", "Price", "Rate")
	add(FieldTotal, "Total", "Amount", "Line Total")
	return aliases
}

// normalizeHeader folds a column header to its lookup form.
func normalizeHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	replacer := strings.NewReplacer(" ", "", "_", "", ".", "", "-", "")
	return replacer.Replace(s)
}
