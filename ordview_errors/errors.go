// Provides common ordview errors definitions.
package ordview_errors

import "errors"

var (
	ErrIndexOutOfRange         = errors.New("ordview: index out of range")
	ErrInvalidTransactionState = errors.New("ordview: transaction already committed or aborted")
	ErrReadOnly                = errors.New("ordview: read-only transaction")
	ErrClosed                  = errors.New("ordview: store is not open")
	ErrCorrupted               = errors.New("ordview: view structure is inconsistent")
	ErrBadRecord               = errors.New("ordview: bad persisted record")
	ErrExtensionExists         = errors.New("ordview: extension already registered")
	ErrBadPageSize             = errors.New("ordview: page size must be positive")
	ErrBadTuple                = errors.New("ordview: bad tuple")
	ErrNoRecord                = errors.New("ordview: no such record")
)

var ErrBadOp = errors.New("ordview: unknown changeset operation")
