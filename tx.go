package ordview

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/drpcorg/ordview/host"
	"github.com/drpcorg/ordview/ordview_errors"
	"github.com/drpcorg/ordview/tuple"
	"github.com/drpcorg/ordview/utils"
	"github.com/google/uuid"
)

type txState byte

const (
	txOpen txState = iota
	txCommitted
	txAborted
)

type change struct {
	seq     int
	removed bool
}

// Tx is a single-use transaction bound to one snapshot. A Tx must not be used
// from several goroutines at once.
type Tx struct {
	id       string
	ctx      context.Context
	store    *Store
	writable bool
	state    txState

	snap  *pebble.Snapshot
	batch *pebble.Batch

	seq     int
	touched map[tuple.Tuple]change
	locals  map[string]any
	start   time.Time
}

func newTx(ctx context.Context, s *Store, writable bool) *Tx {
	id := uuid.Must(uuid.NewV7()).String()
	kind := "ro"
	if writable {
		kind = "rw"
	}
	return &Tx{
		id:       id,
		ctx:      utils.WithDefaultArgs(ctx, "tx", id, "kind", kind),
		store:    s,
		writable: writable,
		touched:  make(map[tuple.Tuple]change),
		locals:   make(map[string]any),
		start:    time.Now(),
	}
}

func (tx *Tx) ID() string {
	return tx.id
}

func (tx *Tx) Context() context.Context {
	return tx.ctx
}

func (tx *Tx) Writable() bool {
	return tx.writable
}

func (tx *Tx) Check() error {
	if tx.state != txOpen {
		return ordview_errors.ErrInvalidTransactionState
	}
	return nil
}

func (tx *Tx) Reader() pebble.Reader {
	if tx.writable {
		return tx.batch
	}
	return tx.snap
}

func (tx *Tx) Batch() *pebble.Batch {
	return tx.batch
}

func (tx *Tx) Local(name string) any {
	return tx.locals[name]
}

func (tx *Tx) SetLocal(name string, v any) {
	tx.locals[name] = v
}

// Get returns a copy of the record value; ok is false for absent records.
func (tx *Tx) Get(t tuple.Tuple) (value []byte, ok bool, err error) {
	return tx.get(host.RecordKey(t))
}

// GetMetadata returns a copy of the record metadata; ok is false when the
// record has none.
func (tx *Tx) GetMetadata(t tuple.Tuple) (metadata []byte, ok bool, err error) {
	return tx.get(host.MetadataKey(t))
}

func (tx *Tx) get(key []byte) (value []byte, ok bool, err error) {
	if err = tx.Check(); err != nil {
		return
	}
	val, closer, err := tx.Reader().Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	value = append([]byte{}, val...)
	_ = closer.Close()
	return value, true, nil
}

// Set writes the record value, the metadata of the record is kept.
func (tx *Tx) Set(t tuple.Tuple, value []byte) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	if err := tx.batch.Set(host.RecordKey(t), value, nil); err != nil {
		return err
	}
	tx.touch(t, false)
	return nil
}

// SetMetadata replaces the metadata of an existing record, nil clears it.
// The record counts as set for the extensions.
func (tx *Tx) SetMetadata(t tuple.Tuple, metadata []byte) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	_, ok, err := tx.Get(t)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Join(ordview_errors.ErrNoRecord, fmt.Errorf("%s", t))
	}
	if metadata == nil {
		err = tx.batch.Delete(host.MetadataKey(t), nil)
	} else {
		err = tx.batch.Set(host.MetadataKey(t), metadata, nil)
	}
	if err != nil {
		return err
	}
	tx.touch(t, false)
	return nil
}

// Remove deletes the record and its metadata; removing an absent record is
// a no-op.
func (tx *Tx) Remove(t tuple.Tuple) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	_, ok, err := tx.Get(t)
	if err != nil || !ok {
		return err
	}
	if err = tx.batch.Delete(host.RecordKey(t), nil); err != nil {
		return err
	}
	if err = tx.batch.Delete(host.MetadataKey(t), nil); err != nil {
		return err
	}
	tx.touch(t, true)
	return nil
}

// Each walks the records of a collection in key order until fn returns false.
func (tx *Tx) Each(collection string, fn func(t tuple.Tuple, value []byte) bool) error {
	if err := tx.Check(); err != nil {
		return err
	}
	fro, til := host.CollectionRange(collection)
	it := tx.Reader().NewIter(&pebble.IterOptions{
		LowerBound: fro,
		UpperBound: til,
	})
	defer it.Close()
	for valid := it.First(); valid; valid = it.Next() {
		t, err := host.RecordKeyTuple(it.Key())
		if err != nil {
			return err
		}
		if !fn(t, it.Value()) {
			break
		}
	}
	return it.Error()
}

func (tx *Tx) checkWritable() error {
	if err := tx.Check(); err != nil {
		return err
	}
	if !tx.writable {
		return ordview_errors.ErrReadOnly
	}
	return nil
}

func (tx *Tx) touch(t tuple.Tuple, removed bool) {
	tx.seq++
	tx.touched[t] = change{seq: tx.seq, removed: removed}
}

func (tx *Tx) changes() (ch host.Changes) {
	type item struct {
		t tuple.Tuple
		change
	}
	items := make([]item, 0, len(tx.touched))
	for t, c := range tx.touched {
		items = append(items, item{t, c})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].seq < items[j].seq })
	for _, it := range items {
		if it.removed {
			ch.Removed = append(ch.Removed, it.t)
		} else {
			ch.Set = append(ch.Set, it.t)
		}
	}
	return
}

// Commit runs the extension commit hooks and then commits the batch. Any
// failure aborts the whole transaction.
func (tx *Tx) Commit() (err error) {
	if err = tx.Check(); err != nil {
		return
	}
	kind := tx.kind()
	if !tx.writable {
		tx.finish(txCommitted)
		CommitCount.WithLabelValues(kind, "ok").Inc()
		return nil
	}
	changes := tx.changes()
	exts := tx.store.extensions()
	for _, ext := range exts {
		if err = ext.Commit(tx.ctx, tx, changes); err != nil {
			tx.store.log.ErrorCtx(tx.ctx, "extension commit failed", "extension", ext.Name(), "err", err)
			tx.abort(exts)
			CommitCount.WithLabelValues(kind, "extension_error").Inc()
			return errors.Join(err, fmt.Errorf("extension %s", ext.Name()))
		}
	}
	if err = tx.batch.Commit(tx.store.opts.WriteOptions); err != nil {
		tx.store.log.ErrorCtx(tx.ctx, "batch commit failed", "err", err)
		tx.abort(exts)
		CommitCount.WithLabelValues(kind, "batch_error").Inc()
		return err
	}
	tx.finish(txCommitted)
	for _, ext := range exts {
		ext.DidCommit(tx)
	}
	CommitCount.WithLabelValues(kind, "ok").Inc()
	CommitDuration.WithLabelValues(kind).Observe(time.Since(tx.start).Seconds())
	tx.store.log.DebugCtx(tx.ctx, "commit", "set", len(changes.Set), "removed", len(changes.Removed))
	return nil
}

// Abort discards everything the transaction wrote. Aborting a finished
// transaction does nothing.
func (tx *Tx) Abort() error {
	if tx.state != txOpen {
		return nil
	}
	if tx.writable {
		tx.abort(tx.store.extensions())
	} else {
		tx.finish(txAborted)
	}
	CommitCount.WithLabelValues(tx.kind(), "aborted").Inc()
	return nil
}

func (tx *Tx) abort(exts []host.Extension) {
	tx.finish(txAborted)
	for _, ext := range exts {
		ext.DidAbort(tx)
	}
}

func (tx *Tx) finish(state txState) {
	tx.state = state
	if tx.snap != nil {
		_ = tx.snap.Close()
		tx.snap = nil
	}
	if tx.batch != nil {
		_ = tx.batch.Close()
		tx.batch = nil
		<-tx.store.wlock
	}
	tx.store.txs.Delete(tx.id)
}

func (tx *Tx) kind() string {
	if tx.writable {
		return "rw"
	}
	return "ro"
}
