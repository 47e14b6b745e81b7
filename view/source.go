package view

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/cockroachdb/pebble"
	"github.com/drpcorg/ordview/host"
	"github.com/drpcorg/ordview/ordview_errors"
	"github.com/drpcorg/ordview/tuple"
)

// source is one consistent state of a view: the committed snapshot of a
// read-only transaction or the staged state of a read-write one.
type source interface {
	pageSize() int
	groups() ([]string, error)
	// chain never returns nil, unknown groups have an empty chain
	chain(group string) (*chain, error)
	page(ref pageRef) (*page, error)
	lookup(t tuple.Tuple) (revEntry, bool, error)
	reverseTuples() ([]tuple.Tuple, error)
}

func corrupted(format string, args ...any) error {
	return errors.Join(ordview_errors.ErrCorrupted, fmt.Errorf(format, args...))
}

// committed reads view records from a pebble reader. Chains are cached for
// the reader's lifetime, decoded pages go to the view-wide cache.
type committed struct {
	v      *View
	reader pebble.Reader
	m      meta
	chains map[string]*chain
}

func newCommitted(v *View, reader pebble.Reader) (*committed, error) {
	c := &committed{
		v:      v,
		reader: reader,
		m:      defaultMeta(v.opts.PageSize),
		chains: make(map[string]*chain),
	}
	val, closer, err := reader.Get(metaKey(v.name))
	if err == pebble.ErrNotFound {
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	if c.m, err = decodeMeta(val); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *committed) pageSize() int {
	return c.m.pageSize
}

func (c *committed) groups() (groups []string, err error) {
	fro, til := host.ViewRange(c.v.name, chainLit)
	it := c.reader.NewIter(&pebble.IterOptions{LowerBound: fro, UpperBound: til})
	defer it.Close()
	for valid := it.First(); valid; valid = it.Next() {
		groups = append(groups, string(it.Key()[len(fro):]))
	}
	return groups, it.Error()
}

func (c *committed) chain(group string) (*chain, error) {
	if ch, ok := c.chains[group]; ok {
		return ch, nil
	}
	val, closer, err := c.reader.Get(chainKey(c.v.name, group))
	var ch *chain
	switch err {
	case nil:
		ch, err = decodeChain(group, val)
		_ = closer.Close()
		if err != nil {
			return nil, err
		}
	case pebble.ErrNotFound:
		ch = newChain(group)
	default:
		return nil, err
	}
	c.chains[group] = ch
	return ch, nil
}

func (c *committed) page(ref pageRef) (*page, error) {
	key := pageKey{ref.id, ref.rev}
	if p, ok := c.v.cache.Get(key); ok {
		PageCache.WithLabelValues(c.v.name, "hit").Inc()
		return p, nil
	}
	PageCache.WithLabelValues(c.v.name, "miss").Inc()
	val, closer, err := c.reader.Get(pageRecordKey(c.v.name, ref.id))
	if err == pebble.ErrNotFound {
		return nil, corrupted("page %d is referenced but missing", ref.id)
	}
	if err != nil {
		return nil, err
	}
	p, err := decodePage(val)
	_ = closer.Close()
	if err != nil {
		return nil, err
	}
	if p.id != ref.id || p.rev != ref.rev || len(p.tuples) != ref.count {
		return nil, corrupted("page %d rev %d count %d, chain expects rev %d count %d",
			p.id, p.rev, len(p.tuples), ref.rev, ref.count)
	}
	c.v.cache.Add(key, p)
	return p, nil
}

func (c *committed) lookup(t tuple.Tuple) (e revEntry, ok bool, err error) {
	val, closer, err := c.reader.Get(reverseKey(c.v.name, t))
	if err == pebble.ErrNotFound {
		return e, false, nil
	}
	if err != nil {
		return e, false, err
	}
	e, err = decodeRevEntry(val)
	_ = closer.Close()
	if err != nil {
		return e, false, err
	}
	ch, err := c.chain(e.group)
	if err != nil {
		return e, false, err
	}
	pi := ch.find(e.page)
	if pi < 0 {
		return e, false, corrupted("%s points to page %d absent from group %q", t, e.page, e.group)
	}
	p, err := c.page(ch.refs[pi])
	if err != nil {
		return e, false, err
	}
	if e.offset = p.indexOf(t); e.offset < 0 {
		return e, false, corrupted("%s is not in its page %d", t, e.page)
	}
	return e, true, nil
}

func (c *committed) reverseTuples() (tuples []tuple.Tuple, err error) {
	fro, til := host.ViewRange(c.v.name, reverseLit)
	it := c.reader.NewIter(&pebble.IterOptions{LowerBound: fro, UpperBound: til})
	defer it.Close()
	for valid := it.First(); valid; valid = it.Next() {
		t, err := tuple.ParseKey(bytes.Clone(it.Key()[len(fro):]))
		if err != nil {
			return nil, err
		}
		tuples = append(tuples, t)
	}
	return tuples, it.Error()
}

// sortedGroups is nil for a view with no groups, like committed.groups.
func sortedGroups(set map[string]bool) (groups []string) {
	for g, in := range set {
		if in {
			groups = append(groups, g)
		}
	}
	sort.Strings(groups)
	return
}
