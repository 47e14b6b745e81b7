// Defines the contract between the ordview store and its extensions
package host

import (
	"context"

	"github.com/cockroachdb/pebble"
	"github.com/drpcorg/ordview/tuple"
	"github.com/drpcorg/ordview/utils"
)

// Host is the store an extension is attached to.
type Host interface {
	Logger() utils.Logger
	WriteOptions() *pebble.WriteOptions
}

// Tx is a host transaction as extensions see it. Read-only transactions read
// from a pebble snapshot, read-write ones through an indexed batch which is
// also where extensions put their own records.
type Tx interface {
	ID() string
	Context() context.Context
	Writable() bool
	// Check returns ErrInvalidTransactionState once the tx is committed or aborted.
	Check() error
	Reader() pebble.Reader
	// Batch is nil for read-only transactions.
	Batch() *pebble.Batch
	Get(t tuple.Tuple) (value []byte, ok bool, err error)
	GetMetadata(t tuple.Tuple) (metadata []byte, ok bool, err error)
	// Local and SetLocal keep per-transaction extension state.
	Local(name string) any
	SetLocal(name string, v any)
}

// Changes lists the records a read-write transaction touched, last action per
// tuple, in the order of those last actions.
type Changes struct {
	Set     []tuple.Tuple
	Removed []tuple.Tuple
}

func (c Changes) Empty() bool {
	return len(c.Set) == 0 && len(c.Removed) == 0
}

// Extension rides on the host commit pipeline. Commit runs before the batch is
// committed and may write into tx.Batch(); an error aborts the transaction.
type Extension interface {
	Name() string
	Attach(h Host) error
	Commit(ctx context.Context, tx Tx, changes Changes) error
	DidCommit(tx Tx)
	DidAbort(tx Tx)
}
