package view

import (
	"errors"
	"fmt"
	"iter"

	"github.com/drpcorg/ordview/host"
	"github.com/drpcorg/ordview/ordview_errors"
	"github.com/drpcorg/ordview/tuple"
	"github.com/drpcorg/ordview/utils"
)

// Position is where an indexed tuple is.
type Position struct {
	Group string
	Index int
}

type EnumOptions struct {
	Reverse bool
}

// Range is the half-open index range [Start, End).
type Range struct {
	Start, End int
}

// Visitor gets every enumerated tuple with its index; false stops the walk.
type Visitor func(t tuple.Tuple, index int) bool

type PageInfo struct {
	ID    uint64
	Count int
}

// queries is the read surface shared by both transaction kinds.
type queries struct {
	src   source
	tx    host.Tx
	check func() error
	name  string
	log   utils.Logger
}

func (q *queries) PageSize() (int, error) {
	if err := q.check(); err != nil {
		return 0, err
	}
	return q.src.pageSize(), nil
}

func (q *queries) AllGroups() ([]string, error) {
	if err := q.check(); err != nil {
		return nil, err
	}
	return q.src.groups()
}

func (q *queries) NumberOfGroups() (int, error) {
	groups, err := q.AllGroups()
	return len(groups), err
}

func (q *queries) NumberOfKeysInGroup(group string) (int, error) {
	if err := q.check(); err != nil {
		return 0, err
	}
	c, err := q.src.chain(group)
	if err != nil {
		return 0, err
	}
	return c.total(), nil
}

func (q *queries) NumberOfKeysInAllGroups() (sum int, err error) {
	groups, err := q.AllGroups()
	if err != nil {
		return 0, err
	}
	for _, g := range groups {
		c, err := q.src.chain(g)
		if err != nil {
			return 0, err
		}
		sum += c.total()
	}
	return sum, nil
}

func (q *queries) TupleAt(index int, group string) (t tuple.Tuple, err error) {
	if err = q.check(); err != nil {
		return
	}
	c, err := q.src.chain(group)
	if err != nil {
		return
	}
	pi, off, err := c.locate(index)
	if err != nil {
		return
	}
	p, err := q.src.page(c.refs[pi])
	if err != nil {
		return
	}
	return p.tuples[off], nil
}

func (q *queries) GroupFor(t tuple.Tuple) (string, bool, error) {
	if err := q.check(); err != nil {
		return "", false, err
	}
	e, ok, err := q.src.lookup(t)
	return e.group, ok, err
}

func (q *queries) Position(t tuple.Tuple) (pos Position, ok bool, err error) {
	if err = q.check(); err != nil {
		return
	}
	e, ok, err := q.src.lookup(t)
	if err != nil || !ok {
		return pos, false, err
	}
	c, err := q.src.chain(e.group)
	if err != nil {
		return pos, false, err
	}
	pi := c.find(e.page)
	if pi < 0 {
		return pos, false, corrupted("%s points to page %d absent from group %q", t, e.page, e.group)
	}
	return Position{Group: e.group, Index: c.start(pi) + e.offset}, true, nil
}

// Enumerate walks the whole group.
func (q *queries) Enumerate(group string, opts EnumOptions, fn Visitor) error {
	if err := q.check(); err != nil {
		return err
	}
	c, err := q.src.chain(group)
	if err != nil {
		return err
	}
	return q.walk(c, opts, Range{0, c.total()}, fn)
}

// EnumerateRange walks the tuples at indices r.Start..r.End-1.
func (q *queries) EnumerateRange(group string, opts EnumOptions, r Range, fn Visitor) error {
	if err := q.check(); err != nil {
		return err
	}
	c, err := q.src.chain(group)
	if err != nil {
		return err
	}
	if r.Start < 0 || r.Start > r.End || r.End > c.total() {
		return errors.Join(ordview_errors.ErrIndexOutOfRange,
			fmt.Errorf("range [%d, %d), count %d", r.Start, r.End, c.total()))
	}
	return q.walk(c, opts, r, fn)
}

func (q *queries) walk(c *chain, opts EnumOptions, r Range, fn Visitor) error {
	if r.Start == r.End {
		return nil
	}
	if !opts.Reverse {
		pi, off, err := c.locate(r.Start)
		if err != nil {
			return err
		}
		for index := r.Start; index < r.End; pi, off = pi+1, 0 {
			p, err := q.src.page(c.refs[pi])
			if err != nil {
				return err
			}
			for ; off < len(p.tuples) && index < r.End; off, index = off+1, index+1 {
				if !fn(p.tuples[off], index) {
					return nil
				}
			}
		}
		return nil
	}
	pi, off, err := c.locate(r.End - 1)
	if err != nil {
		return err
	}
	for index := r.End - 1; index >= r.Start; pi-- {
		p, err := q.src.page(c.refs[pi])
		if err != nil {
			return err
		}
		for ; off >= 0 && index >= r.Start; off, index = off-1, index-1 {
			if !fn(p.tuples[off], index) {
				return nil
			}
		}
		if pi > 0 {
			off = c.refs[pi-1].count - 1
		}
	}
	return nil
}

// Tuples iterates a group in order. An error ends the iteration and is
// logged, Enumerate reports it instead.
func (q *queries) Tuples(group string, opts EnumOptions) iter.Seq2[int, tuple.Tuple] {
	return func(yield func(int, tuple.Tuple) bool) {
		err := q.Enumerate(group, opts, func(t tuple.Tuple, index int) bool {
			return yield(index, t)
		})
		if err != nil {
			q.log.ErrorCtx(q.tx.Context(), "tuple iteration failed", "view", q.name, "group", group, "err", err)
		}
	}
}

// Pages lists the pages of a group in chain order.
func (q *queries) Pages(group string) ([]PageInfo, error) {
	if err := q.check(); err != nil {
		return nil, err
	}
	c, err := q.src.chain(group)
	if err != nil {
		return nil, err
	}
	infos := make([]PageInfo, 0, len(c.refs))
	for _, r := range c.refs {
		infos = append(infos, PageInfo{ID: r.id, Count: r.count})
	}
	return infos, nil
}
