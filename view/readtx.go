package view

import "github.com/drpcorg/ordview/host"

// ReadTx reads one consistent state of the view. It lives as long as its
// host transaction.
type ReadTx struct {
	queries
	v *View
}

func newReadTx(v *View, tx host.Tx, src source) *ReadTx {
	return &ReadTx{
		queries: queries{src: src, tx: tx, check: tx.Check, name: v.name, log: v.log},
		v:       v,
	}
}

func (r *ReadTx) Writable() bool {
	return false
}

// SetPageSize does nothing on a read-only transaction.
func (r *ReadTx) SetPageSize(n int) error {
	return r.check()
}
