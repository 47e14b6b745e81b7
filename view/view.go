package view

import (
	"context"
	"log/slog"

	"github.com/drpcorg/ordview/host"
	"github.com/drpcorg/ordview/ordview_errors"
	"github.com/drpcorg/ordview/tuple"
	"github.com/drpcorg/ordview/utils"
	lru "github.com/hashicorp/golang-lru/v2"
)

// View is a named ordered index over the records of a host store. It plugs
// into the host commit pipeline as an extension.
type View struct {
	name  string
	opts  Options
	host  host.Host
	log   utils.Logger
	cache *lru.Cache[pageKey, *page]
}

func New(name string, opts Options) *View {
	opts.SetDefaults()
	cache, err := lru.New[pageKey, *page](opts.CacheSize)
	if err != nil {
		panic(err)
	}
	return &View{
		name:  name,
		opts:  opts,
		log:   utils.NewDefaultLogger(slog.LevelWarn),
		cache: cache,
	}
}

func (v *View) Name() string {
	return v.name
}

func (v *View) Attach(h host.Host) error {
	v.host = h
	if l := h.Logger(); l != nil {
		v.log = l
	}
	return nil
}

// Transaction is the view surface common to ReadTx and WriteTx.
type Transaction interface {
	Writable() bool
	PageSize() (int, error)
	SetPageSize(n int) error

	NumberOfGroups() (int, error)
	AllGroups() ([]string, error)
	NumberOfKeysInGroup(group string) (int, error)
	NumberOfKeysInAllGroups() (int, error)
	TupleAt(index int, group string) (tuple.Tuple, error)
	GroupFor(t tuple.Tuple) (string, bool, error)
	Position(t tuple.Tuple) (Position, bool, error)
	Enumerate(group string, opts EnumOptions, fn Visitor) error
	EnumerateRange(group string, opts EnumOptions, r Range, fn Visitor) error
	Pages(group string) ([]PageInfo, error)
	Verify() error

	ValueAt(index int, group string) ([]byte, bool, error)
	EnumerateValues(group string, opts EnumOptions, r Range, fn ValueVisitor) error
	MetadataAt(index int, group string) ([]byte, bool, error)
	EnumerateMetadata(group string, opts EnumOptions, r Range, fn ValueVisitor) error
	EnumerateRecords(group string, opts EnumOptions, r Range, fn RecordVisitor) error
}

// local is what the view keeps in a host transaction.
type local struct {
	read  *ReadTx
	write *WriteTx
}

func (v *View) localKey() string {
	return "view:" + v.name
}

func (v *View) local(tx host.Tx) *local {
	if l, ok := tx.Local(v.localKey()).(*local); ok {
		return l
	}
	l := &local{}
	tx.SetLocal(v.localKey(), l)
	return l
}

// Read returns the read-only view of the host transaction. On a read-write
// host transaction it sees the view as staged so far.
func (v *View) Read(tx host.Tx) (*ReadTx, error) {
	if err := tx.Check(); err != nil {
		return nil, err
	}
	l := v.local(tx)
	if l.read != nil {
		return l.read, nil
	}
	if tx.Writable() {
		w, err := v.Write(tx)
		if err != nil {
			return nil, err
		}
		l.read = &ReadTx{queries: w.queries, v: v}
		return l.read, nil
	}
	src, err := newCommitted(v, tx.Reader())
	if err != nil {
		return nil, err
	}
	l.read = newReadTx(v, tx, src)
	return l.read, nil
}

// Write returns the read-write view of a read-write host transaction.
func (v *View) Write(tx host.Tx) (*WriteTx, error) {
	if err := tx.Check(); err != nil {
		return nil, err
	}
	if !tx.Writable() {
		return nil, ordview_errors.ErrReadOnly
	}
	l := v.local(tx)
	if l.write != nil {
		return l.write, nil
	}
	base, err := newCommitted(v, tx.Reader())
	if err != nil {
		return nil, err
	}
	l.write = newWriteTx(v, tx, newStaged(base))
	return l.write, nil
}

// Tx returns the view transaction matching the kind of the host one.
func (v *View) Tx(tx host.Tx) (Transaction, error) {
	if tx.Writable() {
		w, err := v.Write(tx)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
	r, err := v.Read(tx)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Commit applies the view changes of the host transaction and writes them
// into its batch.
func (v *View) Commit(ctx context.Context, tx host.Tx, changes host.Changes) error {
	l, _ := tx.Local(v.localKey()).(*local)
	if (l == nil || l.write == nil) && changes.Empty() {
		return nil
	}
	w, err := v.Write(tx)
	if err != nil {
		return err
	}
	return w.commit(ctx, changes)
}

// DidCommit publishes the pages the transaction wrote to the page cache.
func (v *View) DidCommit(tx host.Tx) {
	l, _ := tx.Local(v.localKey()).(*local)
	if l == nil || l.write == nil {
		return
	}
	for _, p := range l.write.st.flushed {
		v.cache.Add(p.key(), p)
	}
}

func (v *View) DidAbort(tx host.Tx) {
	l, _ := tx.Local(v.localKey()).(*local)
	if l == nil || l.write == nil {
		return
	}
	v.log.DebugCtx(tx.Context(), "view changes discarded", "view", v.name)
}
