package view

import (
	"context"
	"errors"
	"fmt"

	"github.com/drpcorg/ordview/host"
	"github.com/drpcorg/ordview/ordview_errors"
	"github.com/drpcorg/ordview/tuple"
)

// WriteTx changes the view inside a read-write host transaction. Reads see
// the staged state; queued operations are applied at commit, ApplyChangeset
// applies right away. A failed application leaves the transaction only fit
// for abort.
type WriteTx struct {
	queries
	v  *View
	st *staged

	queued      Changeset
	restructure bool
	err         error
}

func newWriteTx(v *View, tx host.Tx, st *staged) *WriteTx {
	w := &WriteTx{v: v, st: st}
	w.queries = queries{src: st, tx: tx, check: w.checkState, name: v.name, log: v.log}
	return w
}

func (w *WriteTx) checkState() error {
	if err := w.tx.Check(); err != nil {
		return err
	}
	return w.err
}

func (w *WriteTx) Writable() bool {
	return true
}

// SetPageSize takes effect for the splits that follow; a changed size
// repacks the view at commit.
func (w *WriteTx) SetPageSize(n int) error {
	if err := w.checkState(); err != nil {
		return err
	}
	if n < 1 {
		return errors.Join(ordview_errors.ErrBadPageSize, fmt.Errorf("page size %d", n))
	}
	if n != w.st.m.pageSize {
		w.v.log.DebugCtx(w.tx.Context(), "page size changed", "view", w.v.name, "from", w.st.m.pageSize, "to", n)
		w.st.m.pageSize = n
		w.restructure = true
	}
	return nil
}

func (w *WriteTx) queue(op Op) error {
	if err := w.checkState(); err != nil {
		return err
	}
	w.queued = append(w.queued, op)
	return nil
}

// Assign queues t to be put into group at index.
func (w *WriteTx) Assign(t tuple.Tuple, group string, index int) error {
	return w.queue(Assign(t, group, index))
}

// Remove queues t to be taken out of the view.
func (w *WriteTx) Remove(t tuple.Tuple) error {
	return w.queue(Remove(t))
}

// Reposition queues t to be moved to index inside its group.
func (w *WriteTx) Reposition(t tuple.Tuple, index int) error {
	return w.queue(Reposition(t, index))
}

// Queued returns the operations waiting for commit.
func (w *WriteTx) Queued() Changeset {
	return append(Changeset{}, w.queued...)
}

func (w *WriteTx) editor(ctx context.Context) *editor {
	return &editor{st: w.st, view: w.v.name, log: w.v.log, ctx: ctx}
}

func (w *WriteTx) fail(err error) error {
	if err != nil {
		w.err = err
		if errors.Is(err, ordview_errors.ErrCorrupted) {
			w.v.log.ErrorCtx(w.tx.Context(), "view is inconsistent", "view", w.v.name, "err", err)
		}
	}
	return err
}

// ApplyChangeset applies cs to the staged view now.
func (w *WriteTx) ApplyChangeset(cs Changeset) error {
	if err := w.checkState(); err != nil {
		return err
	}
	return w.fail(w.editor(w.tx.Context()).apply(cs))
}

func (w *WriteTx) commit(ctx context.Context, changes host.Changes) error {
	if err := w.checkState(); err != nil {
		return err
	}
	e := w.editor(ctx)
	if err := e.apply(w.queued); err != nil {
		return w.fail(err)
	}
	w.queued = nil
	for _, t := range changes.Removed {
		if _, err := e.remove(t); err != nil {
			return w.fail(err)
		}
	}
	if w.v.opts.Grouping != nil {
		if err := e.placeRecords(&w.v.opts, w.tx, changes.Set); err != nil {
			return w.fail(err)
		}
	}
	if w.restructure {
		if err := e.restructure(); err != nil {
			return w.fail(err)
		}
		w.restructure = false
	}
	return w.fail(w.st.flush(w.v.name, w.tx.Batch()))
}
