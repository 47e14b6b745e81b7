// Package view keeps ordered, paged indexes over the records of an ordview
// store.
//
// # Overview
//
// A View partitions tuples into groups and keeps an explicit order inside
// each group. A tuple is in at most one group. Each group is a chain of pages;
// a page holds a contiguous run of the order, at most PageSize tuples once
// split. Positions are 0-based and addressed as (group, index).
//
// Lookups go both ways:
//
//  1. Forward, (group, index) -> tuple
//     The chain keeps a count per page, the page holding an index is found
//     by binary search over the running counts.
//
//  2. Reverse, tuple -> (group, index)
//     A reverse entry names the group and page of a tuple. The offset inside
//     the page is looked up in the decoded page.
//
// # Key layout in Pebble
//
// All keys start with 'V' + uvarint(len(name)) + name.
//
//   - Meta:    'M' -> page size, next page id, next page revision
//   - Chain:   'G' + group -> per page: id, revision, count
//   - Page:    'P' + id(u64, BE) -> id, revision, group, tuples, xxhash
//   - Reverse: 'R' + tuple key -> group, page id
//
// Every rewrite of a page gets a new revision. Decoded committed pages are
// cached by (id, revision), so a cached page is never stale.
//
// # Transactions
//
// ReadTx and WriteTx are bound to a host transaction and die with it.
// A ReadTx on a read-only host transaction reads the pebble snapshot. A
// WriteTx stages every change in memory on top of the host batch. At host
// commit the view applies, in order:
//
//   - queued Assign, Remove and Reposition operations
//   - removal of every record the host transaction deleted
//   - placement of the records it set, when Options.Grouping is given
//   - the repacking scheduled by SetPageSize
//
// and then writes the dirty records into the host batch. An error aborts the
// host transaction, discarding record and view changes together.
//
// # Page policy
//
// A page over PageSize tuples splits, the left half gets the odd tuple.
// After a removal an empty page is dropped; a page under half of PageSize
// merges into its smaller neighbour if both fit one page, otherwise the two
// pages share their tuples evenly. SetPageSize with a new size repacks every
// group into full pages at commit, chains already packed are kept as they are.
package view
