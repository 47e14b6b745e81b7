package view

import "github.com/drpcorg/ordview/tuple"

const (
	DefaultPageSize  = 50
	DefaultCacheSize = 1024
)

// Row is a record as the grouping and sorting callbacks see it.
type Row struct {
	Tuple    tuple.Tuple
	Value    []byte
	Metadata []byte
}

// GroupingFunc puts a record into a group; ok=false keeps it out of the view.
type GroupingFunc func(row Row) (group string, ok bool)

// SortingFunc orders two records of the same group.
type SortingFunc func(group string, a, b Row) int

type Options struct {
	// PageSize is used until a transaction persists one with SetPageSize.
	PageSize int
	// CacheSize is the number of decoded pages kept per view.
	CacheSize int

	// With Grouping set, records written by a transaction are placed into the
	// view automatically: removed from their old position, then inserted into
	// their group at the position Sorting gives them (appended if Sorting is nil).
	Grouping GroupingFunc
	Sorting  SortingFunc
}

func (o *Options) SetDefaults() {
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.CacheSize <= 0 {
		o.CacheSize = DefaultCacheSize
	}
}
