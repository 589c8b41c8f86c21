// Package repository defines the persistent store contract and its in-memory
// implementation. Backends for workbooks, Google Sheets and Postgres live
// in subpackages.
//
// A store holds named resources. Each resource is a header row followed
// by data rows of strings, the same shape a spreadsheet tab has.
package repository

import "context"

// Store provides row-level access to named resources.
type Store interface {
	// Header returns the header row of resource, or nil when the resource
	// or its header does not exist yet.
	Header(ctx context.Context, resource string) ([]string, error)

	// SetHeader replaces the header row of resource, creating the resource
	// if needed. Data rows are left untouched.
	SetHeader(ctx context.Context, resource string, header []string) error

	// AppendRows appends rows after the last data row. A single call is
	// atomic: either every row is stored or none is.
	AppendRows(ctx context.Context, resource string, rows [][]string) error

	// ReadRows returns every data row of resource in append order,
	// excluding the header. A missing resource has no rows.
	ReadRows(ctx context.Context, resource string) ([][]string, error)

	// Overwrite replaces the whole resource with block. The first row of
	// block becomes the header.
	Overwrite(ctx context.Context, resource string, block [][]string) error
}

// cloneRows deep-copies rows so callers never share backing arrays with a store.
func cloneRows(rows [][]string) [][]string {
	if rows == nil {
		return nil
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}
