package domain

import "time"

// InvoiceLine is the canonical, typed representation of one validated and
// transformed source row, ready for storage. The natural key is
// (invoice_no, product_name); upserts on that key make re-ingestion
// idempotent. The quantity check backs the store-level guard the batch
// writer's savepoint retry relies on.
type InvoiceLine struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	InvoiceNo   string    `gorm:"type:text;not null;uniqueIndex:idx_invoice_lines_key" json:"invoice_no"`
	InvoiceDate time.Time `gorm:"not null" json:"invoice_date"`
	StoreName   string    `gorm:"type:text" json:"store_name"`
	ProductName string    `gorm:"type:text;not null;uniqueIndex:idx_invoice_lines_key" json:"product_name"`
	Quantity    float64   `gorm:"not null;check:quantity >= 0" json:"quantity"`
	UnitPrice   float64   `gorm:"not null" json:"unit_price"`
	Total       float64   `gorm:"not null" json:"total"`
	RowHash     string    `gorm:"type:text;index" json:"row_hash"`
	Duplicate   bool      `gorm:"default:false" json:"duplicate"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for InvoiceLine.
func (InvoiceLine) TableName() string {
	return "invoice_lines"
}
