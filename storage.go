package tenantscope

import (
	"context"
)

// Page is keyset pagination over record ids. Only [OpReadMany] honours it.
type Page struct {
	// After skips every record whose id is not greater than After.
	After string
	// Limit caps the number of records, zero means no limit.
	Limit int
}

type Request struct {
	Op     Op
	Entity string
	Where  Filter
	// Data holds the payload of creates (one record per row) and updates
	// (exactly one record with the fields to set).
	Data []Record
	Page Page
}

// Result of an executed [Request]. Records is filled for reads and for the
// single-record forms of update, delete and create; Count is always set.
type Result struct {
	Records []Record
	Count   int
}

// Storage is the generic, tenant-unaware data client.
//
// Single-record operations act on the first match in id order and return
// [ErrNotFound] if nothing matches.
type Storage interface {
	Execute(ctx context.Context, req Request) (Result, error)

	Close() error
}
