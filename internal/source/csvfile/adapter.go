// Package csvfile adapts a CSV file on local disk to the source.RowSource
// interface. Each OpenRange call opens its own file handle, so pool
// workers can stream disjoint chunk ranges concurrently.
package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/source"
)

// Adapter implements source.RowSource for a local CSV file. The first
// record is treated as the header row.
type Adapter struct {
	path string
}

// NewAdapter creates a CSV adapter for the file at path.
func NewAdapter(path string) *Adapter {
	return &Adapter{path: path}
}

// CountRows scans the whole file and returns the number of data rows.
func (a *Adapter) CountRows(ctx context.Context) (int64, error) {
	f, err := os.Open(a.path)
	if err != nil {
		return 0, fmt.Errorf("failed to open source file: %w", err)
	}
	defer f.Close()

	r := newReader(f)
	var count int64 = -1 // header row does not count
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if _, err := r.Read(); err != nil {
			if err == io.EOF {
				break
			}
			return 0, fmt.Errorf("failed to scan source file: %w", err)
		}
		count++
	}
	if count < 0 {
		count = 0
	}
	return count, nil
}

// OpenRange opens a stream over data rows [start, end).
func (a *Adapter) OpenRange(ctx context.Context, start, end int64) (source.RowIterator, error) {
	if start < 0 || end < start {
		return nil, fmt.Errorf("invalid row range [%d, %d)", start, end)
	}

	f, err := os.Open(a.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source file: %w", err)
	}

	r := newReader(f)
	header, err := r.Read()
	if err != nil {
		f.Close()
		if err == io.EOF {
			return nil, fmt.Errorf("source file has no header row")
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Skip rows before the chunk start.
	for skipped := int64(0); skipped < start; skipped++ {
		if err := ctx.Err(); err != nil {
			f.Close()
			return nil, err
		}
		if _, err := r.Read(); err != nil {
			f.Close()
			if err == io.EOF {
				return nil, fmt.Errorf("row range starts at %d but file ended at row %d", start, skipped)
			}
			return nil, fmt.Errorf("failed to seek to row %d: %w", start, err)
		}
	}

	return &iterator{
		file:   f,
		reader: r,
		header: header,
		next:   start,
		end:    end,
	}, nil
}

type iterator struct {
	file   *os.File
	reader *csv.Reader
	header []string
	next   int64
	end    int64
}

// Next yields the next row of the range, io.EOF once the range or the
// file is exhausted.
func (it *iterator) Next() (source.Row, error) {
	if it.next >= it.end {
		return source.Row{}, io.EOF
	}

	record, err := it.reader.Read()
	if err != nil {
		if err == io.EOF {
			return source.Row{}, io.EOF
		}
		return source.Row{}, fmt.Errorf("failed to read row %d: %w", it.next, err)
	}

	fields := make(map[string]string, len(it.header))
	for i, name := range it.header {
		if i < len(record) {
			fields[name] = record[i]
		}
	}

	row := source.Row{Number: it.next, Fields: fields}
	it.next++
	return row, nil
}

// Close releases the underlying file handle.
func (it *iterator) Close() error {
	return it.file.Close()
}

func newReader(f *os.File) *csv.Reader {
	r := csv.NewReader(f)
	// Exports disagree on trailing columns; length checks happen at
	// validation, not parse time.
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	return r
}
