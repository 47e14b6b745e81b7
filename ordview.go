package ordview

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/drpcorg/ordview/host"
	"github.com/drpcorg/ordview/ordview_errors"
	"github.com/drpcorg/ordview/utils"
	"github.com/puzpuzpuz/xsync/v3"
)

type Options struct {
	pebble.Options

	Logger       utils.Logger
	WriteOptions *pebble.WriteOptions
}

func (o *Options) SetDefaults() {
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelWarn)
	}
	if o.WriteOptions == nil {
		o.WriteOptions = pebble.Sync
	}
}

// Store keeps (collection, key) -> value records in pebble and runs the
// commit pipeline of its registered extensions. One read-write transaction
// at a time, any number of read-only ones.
type Store struct {
	db   *pebble.DB
	dir  string
	opts Options
	log  utils.Logger

	exts  *xsync.MapOf[string, host.Extension]
	order []string
	elock sync.Mutex

	txs *xsync.MapOf[string, *Tx]
	// single writer token
	wlock chan struct{}
	// guards db against Close
	lock sync.RWMutex
}

func Open(dirname string, opts Options) (*Store, error) {
	opts.SetDefaults()
	db, err := pebble.Open(dirname, &opts.Options)
	if err != nil {
		return nil, err
	}
	s := &Store{
		db:    db,
		dir:   dirname,
		opts:  opts,
		log:   opts.Logger,
		exts:  xsync.NewMapOf[string, host.Extension](),
		txs:   xsync.NewMapOf[string, *Tx](),
		wlock: make(chan struct{}, 1),
	}
	s.log.Debug("store open", "dir", dirname)
	return s, nil
}

// Close waits for the running read-write transaction to finish, then aborts
// the read-only ones still open and closes the database. Read-only
// transactions must not be in use by other goroutines while Close runs, and
// a goroutine holding an open read-write transaction must not call Close.
func (s *Store) Close() error {
	s.wlock <- struct{}{}
	defer func() { <-s.wlock }()
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.db == nil {
		return ordview_errors.ErrClosed
	}
	s.txs.Range(func(_ string, tx *Tx) bool {
		_ = tx.Abort()
		return true
	})
	err := s.db.Close()
	s.db = nil
	s.log.Debug("store closed", "dir", s.dir)
	return err
}

func (s *Store) Logger() utils.Logger {
	return s.log
}

func (s *Store) WriteOptions() *pebble.WriteOptions {
	return s.opts.WriteOptions
}

// Database is nil once the store is closed.
func (s *Store) Database() *pebble.DB {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.db
}

// Register attaches an extension. Commit hooks run in registration order.
func (s *Store) Register(ext host.Extension) error {
	s.elock.Lock()
	defer s.elock.Unlock()
	if _, loaded := s.exts.LoadOrStore(ext.Name(), ext); loaded {
		return errors.Join(ordview_errors.ErrExtensionExists, errors.New(ext.Name()))
	}
	if err := ext.Attach(s); err != nil {
		s.exts.Delete(ext.Name())
		return err
	}
	s.order = append(s.order, ext.Name())
	return nil
}

func (s *Store) Extension(name string) (host.Extension, bool) {
	return s.exts.Load(name)
}

func (s *Store) extensions() []host.Extension {
	s.elock.Lock()
	defer s.elock.Unlock()
	ret := make([]host.Extension, 0, len(s.order))
	for _, name := range s.order {
		if ext, ok := s.exts.Load(name); ok {
			ret = append(ret, ext)
		}
	}
	return ret
}

// BeginRead opens a read-only transaction on a fresh snapshot.
func (s *Store) BeginRead(ctx context.Context) (*Tx, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.db == nil {
		return nil, ordview_errors.ErrClosed
	}
	tx := newTx(ctx, s, false)
	tx.snap = s.db.NewSnapshot()
	s.txs.Store(tx.id, tx)
	return tx, nil
}

// BeginWrite waits for the writer token, ctx cancels the wait.
func (s *Store) BeginWrite(ctx context.Context) (*Tx, error) {
	select {
	case s.wlock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.db == nil {
		<-s.wlock
		return nil, ordview_errors.ErrClosed
	}
	tx := newTx(ctx, s, true)
	tx.batch = s.db.NewIndexedBatch()
	s.txs.Store(tx.id, tx)
	return tx, nil
}

// View runs fn in a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.BeginRead(ctx)
	if err != nil {
		return err
	}
	defer tx.Abort()
	return fn(tx)
}

// Update runs fn in a read-write transaction, committing when fn returns nil.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.BeginWrite(ctx)
	if err != nil {
		return err
	}
	if err = fn(tx); err != nil {
		_ = tx.Abort()
		return err
	}
	return tx.Commit()
}
