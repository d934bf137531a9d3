package schema

import (
	"testing"
)

func TestMapRecord(t *testing.T) {
	rules := DefaultRuleSet()

	raw := RawRecord{
		"Invoice No": "INV-7",
		"Date":       "01/02/2024",
		"Item Name":  "  Ghee 1L ",
		"Qty":        "2",
		"Item Price": "8.00",
		"Comments":   "ignore me",
	}

	mapped := rules.MapRecord(raw)

	if got := mapped[FieldInvoiceNo]; got != "INV-7" {
		t.Errorf("invoice_no = %q, want INV-7", got)
	}
	if got := mapped[FieldProductName]; got != "Ghee 1L" {
		t.Errorf("product_name = %q, want trimmed value", got)
	}
	if got := mapped[FieldQuantity]; got != "2" {
		t.Errorf("quantity = %q, want 2", got)
	}
	if _, ok := mapped["Comments"]; ok {
		t.Error("unmapped column should be dropped")
	}
}

func TestMapRecordHeaderNormalization(t *testing.T) {
	rules := DefaultRuleSet()

	// The same logical column under different export spellings.
	headers := []string{"Invoice No", "invoice_no", "INVOICENO", "invoice-no", "Invoice.No"}
	for _, h := range headers {
		mapped := rules.MapRecord(RawRecord{h: "X"})
		if mapped[FieldInvoiceNo] != "X" {
			t.Errorf("header %q did not map to %s", h, FieldInvoiceNo)
		}
	}
}

func TestTransformDerivesTotal(t *testing.T) {
	rules := DefaultRuleSet()
	rec := RawRecord{
		FieldInvoiceNo:   "INV-1",
		FieldInvoiceDate: "15/03/2024",
		FieldProductName: "Atta 10kg",
		FieldQuantity:    "4",
		FieldUnitPrice:   "5.25",
	}

	row, err := Transform(rec, rules)
	if err != nil {
		t.Fatalf("Transform returned error: %v", err)
	}
	if row.Total != 21 {
		t.Errorf("derived total = %v, want 21", row.Total)
	}

	// A declared total wins over the derived one.
	rec[FieldTotal] = "20.99"
	row, err = Transform(rec, rules)
	if err != nil {
		t.Fatalf("Transform returned error: %v", err)
	}
	if row.Total != 20.99 {
		t.Errorf("declared total = %v, want 20.99", row.Total)
	}
}

func TestHashIgnoresSourceFormatting(t *testing.T) {
	rules := DefaultRuleSet()

	a, err := Transform(RawRecord{
		FieldInvoiceNo:   "INV-9",
		FieldInvoiceDate: "15/03/2024",
		FieldProductName: "Dal 2kg",
		FieldQuantity:    "3",
		FieldUnitPrice:   "$1,234.50",
	}, rules)
	if err != nil {
		t.Fatalf("Transform returned error: %v", err)
	}

	b, err := Transform(RawRecord{
		FieldInvoiceNo:   "INV-9",
		FieldInvoiceDate: "2024-03-15",
		FieldProductName: "Dal 2kg",
		FieldQuantity:    "3.0",
		FieldUnitPrice:   "1234.5",
	}, rules)
	if err != nil {
		t.Fatalf("Transform returned error: %v", err)
	}

	if a.Hash() != b.Hash() {
		t.Errorf("formatting variants hash differently: %s vs %s", a.Hash(), b.Hash())
	}

	c := *a
	c.Quantity = 4
	if a.Hash() == c.Hash() {
		t.Error("different content must hash differently")
	}
}

func TestBusinessKey(t *testing.T) {
	row := &CanonicalRow{InvoiceNo: "INV-3", ProductName: "Oil 5L"}
	if got := row.BusinessKey(); got != "INV-3|Oil 5L" {
		t.Errorf("BusinessKey = %q", got)
	}
}

func TestToInvoiceLine(t *testing.T) {
	rules := DefaultRuleSet()
	row, err := Transform(validRecord(), rules)
	if err != nil {
		t.Fatalf("Transform returned error: %v", err)
	}

	line := row.ToInvoiceLine(true)
	if line.InvoiceNo != row.InvoiceNo || line.ProductName != row.ProductName {
		t.Error("natural key fields not carried over")
	}
	if line.RowHash != row.Hash() {
		t.Error("row hash not carried over")
	}
	if !line.Duplicate {
		t.Error("duplicate flag not carried over")
	}
}
