package source

import "context"

// Row is one data row read from an uploaded file. Number is the
// zero-based index among data rows; the header row is not counted.
type Row struct {
	Number int64
	Fields map[string]string // column header -> raw value
}

// RowSource defines streamed access to the rows of one uploaded file.
// Implementations must support independent concurrent streams so each
// pool worker can read its own chunk range.
type RowSource interface {
	// CountRows scans the file and returns the number of data rows.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	// Returns:
	//   - int64: data row count, excluding the header.
	//   - error: non-nil if the file cannot be read.
	CountRows(ctx context.Context) (int64, error)

	// OpenRange opens a stream positioned at row start, yielding rows
	// up to but excluding row end.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - start: first row to yield (inclusive, zero-based).
	//   - end: row to stop before (exclusive).
	// Returns:
	//   - RowIterator: iterator over the requested range.
	//   - error: non-nil if the stream cannot be opened.
	OpenRange(ctx context.Context, start, end int64) (RowIterator, error)
}

// RowIterator yields rows one at a time. Next returns io.EOF after the
// last row of the range.
type RowIterator interface {
	Next() (Row, error)
	Close() error
}
