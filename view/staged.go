package view

import (
	"github.com/cockroachdb/pebble"
	"github.com/drpcorg/ordview/tuple"
)

type revState struct {
	entry   revEntry
	present bool
	// the persisted record differs from entry
	dirty bool
}

// staged is the state of a view inside a read-write transaction: the
// committed state read through the host batch plus every change made so far.
// Nothing reaches the batch before flush.
type staged struct {
	base *committed
	m    meta

	chains  map[string]*chain
	pages   map[uint64]*page
	dirty   map[uint64]bool
	dropped map[uint64]bool
	rev     map[tuple.Tuple]*revState

	flushed []*page
}

func newStaged(base *committed) *staged {
	return &staged{
		base:    base,
		m:       base.m,
		chains:  make(map[string]*chain),
		pages:   make(map[uint64]*page),
		dirty:   make(map[uint64]bool),
		dropped: make(map[uint64]bool),
		rev:     make(map[tuple.Tuple]*revState),
	}
}

func (s *staged) pageSize() int {
	return s.m.pageSize
}

func (s *staged) groups() ([]string, error) {
	committed, err := s.base.groups()
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(committed)+len(s.chains))
	for _, g := range committed {
		set[g] = true
	}
	for g, c := range s.chains {
		set[g] = c.total() > 0
	}
	return sortedGroups(set), nil
}

func (s *staged) chain(group string) (*chain, error) {
	if c, ok := s.chains[group]; ok {
		return c, nil
	}
	bc, err := s.base.chain(group)
	if err != nil {
		return nil, err
	}
	c := bc.clone()
	s.chains[group] = c
	return c, nil
}

func (s *staged) page(ref pageRef) (*page, error) {
	if p, ok := s.pages[ref.id]; ok {
		return p, nil
	}
	return s.base.page(ref)
}

// mutablePage returns a private copy of the page, marked for rewrite.
func (s *staged) mutablePage(ref pageRef) (*page, error) {
	p, ok := s.pages[ref.id]
	if !ok {
		cp, err := s.base.page(ref)
		if err != nil {
			return nil, err
		}
		p = cp.clone()
		s.pages[ref.id] = p
	}
	s.dirty[ref.id] = true
	return p, nil
}

func (s *staged) newPage(group string) *page {
	p := &page{id: s.m.nextPage, group: group}
	s.m.nextPage++
	s.putPage(p)
	return p
}

// putPage stages p as the full new content of its page id.
func (s *staged) putPage(p *page) {
	s.pages[p.id] = p
	s.dirty[p.id] = true
	delete(s.dropped, p.id)
}

func (s *staged) dropPage(id uint64) {
	delete(s.pages, id)
	delete(s.dirty, id)
	s.dropped[id] = true
}

func (s *staged) lookup(t tuple.Tuple) (e revEntry, ok bool, err error) {
	if st, found := s.rev[t]; found {
		e, ok = st.entry, st.present
	} else if e, ok, err = s.base.lookup(t); err != nil {
		return
	}
	if !ok {
		return
	}
	// offsets on rewritten pages are resolved against the staged copy
	if p, rewritten := s.pages[e.page]; rewritten {
		if e.offset = p.indexOf(t); e.offset < 0 {
			return e, false, corrupted("%s is not in its page %d", t, e.page)
		}
	}
	return e, true, nil
}

// place records the page a tuple is on now.
func (s *staged) place(t tuple.Tuple, group string, id uint64) {
	st, ok := s.rev[t]
	if !ok {
		st = &revState{dirty: true}
		s.rev[t] = st
	} else if !st.present || st.entry.group != group || st.entry.page != id {
		st.dirty = true
	}
	st.entry = revEntry{group: group, page: id, offset: -1}
	st.present = true
}

func (s *staged) unplace(t tuple.Tuple) {
	st, ok := s.rev[t]
	if !ok {
		st = &revState{}
		s.rev[t] = st
	}
	st.present = false
	st.dirty = true
}

func (s *staged) reverseTuples() ([]tuple.Tuple, error) {
	committed, err := s.base.reverseTuples()
	if err != nil {
		return nil, err
	}
	var tuples []tuple.Tuple
	seen := make(map[tuple.Tuple]bool, len(committed))
	for _, t := range committed {
		seen[t] = true
		if st, ok := s.rev[t]; ok && !st.present {
			continue
		}
		tuples = append(tuples, t)
	}
	for t, st := range s.rev {
		if st.present && !seen[t] {
			tuples = append(tuples, t)
		}
	}
	return tuples, nil
}

// flush writes every staged change into the batch. Rewritten pages get
// fresh revisions, so flush runs once, at commit.
func (s *staged) flush(view string, batch *pebble.Batch) (err error) {
	for id := range s.dropped {
		if err = batch.Delete(pageRecordKey(view, id), nil); err != nil {
			return
		}
	}
	for id := range s.dirty {
		p := s.pages[id]
		p.rev = s.m.nextRev
		s.m.nextRev++
		if c, ok := s.chains[p.group]; ok {
			c.setRev(p.id, p.rev)
		}
		if err = batch.Set(pageRecordKey(view, p.id), p.encode(), nil); err != nil {
			return
		}
		s.flushed = append(s.flushed, p)
	}
	for group, c := range s.chains {
		if !c.dirty {
			continue
		}
		if c.total() == 0 {
			err = batch.Delete(chainKey(view, group), nil)
		} else {
			err = batch.Set(chainKey(view, group), c.encode(), nil)
		}
		if err != nil {
			return
		}
	}
	for t, st := range s.rev {
		if !st.dirty {
			continue
		}
		if st.present {
			err = batch.Set(reverseKey(view, t), st.entry.encode(), nil)
		} else {
			err = batch.Delete(reverseKey(view, t), nil)
		}
		if err != nil {
			return
		}
	}
	if s.m != s.base.m {
		err = batch.Set(metaKey(view), s.m.encode(), nil)
	}
	return
}
