package view

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/drpcorg/ordview/ordview_errors"
	"github.com/drpcorg/ordview/protocol"
)

type pageRef struct {
	id    uint64
	rev   uint64
	count int
}

// chain is the ordered list of pages of one group. starts[i] is the global
// index of the first tuple of refs[i]; starts[len(refs)] is the total.
type chain struct {
	group  string
	refs   []pageRef
	starts []int
	pos    map[uint64]int
	dirty  bool
}

func newChain(group string) *chain {
	return &chain{group: group, starts: []int{0}}
}

func outOfRange(index, count int) error {
	return errors.Join(ordview_errors.ErrIndexOutOfRange, fmt.Errorf("index %d, count %d", index, count))
}

func (c *chain) total() int {
	return c.starts[len(c.refs)]
}

func (c *chain) start(pi int) int {
	return c.starts[pi]
}

// locate finds the page holding the global index and the offset inside it.
func (c *chain) locate(index int) (pi, off int, err error) {
	if index < 0 || index >= c.total() {
		return 0, 0, outOfRange(index, c.total())
	}
	pi = sort.Search(len(c.refs), func(i int) bool { return c.starts[i+1] > index })
	return pi, index - c.starts[pi], nil
}

// find returns the chain position of a page id, -1 if absent.
func (c *chain) find(id uint64) int {
	if c.pos == nil {
		c.pos = make(map[uint64]int, len(c.refs))
		for i, r := range c.refs {
			c.pos[r.id] = i
		}
	}
	if pi, ok := c.pos[id]; ok {
		return pi
	}
	return -1
}

// recount refreshes starts from page pi onwards.
func (c *chain) recount(pi int) {
	if n := len(c.refs) + 1; cap(c.starts) >= n {
		c.starts = c.starts[:n]
	} else {
		c.starts = append(c.starts, make([]int, n-len(c.starts))...)
	}
	c.starts[0] = 0
	for i := pi; i < len(c.refs); i++ {
		c.starts[i+1] = c.starts[i] + c.refs[i].count
	}
}

func (c *chain) setCount(pi, count int) {
	c.refs[pi].count = count
	c.dirty = true
	c.recount(pi)
}

func (c *chain) insertRef(pi int, ref pageRef) {
	c.refs = slices.Insert(c.refs, pi, ref)
	c.pos = nil
	c.dirty = true
	c.recount(pi)
}

func (c *chain) removeRef(pi int) {
	c.refs = slices.Delete(c.refs, pi, pi+1)
	c.pos = nil
	c.dirty = true
	c.recount(pi)
}

func (c *chain) setRefs(refs []pageRef) {
	c.refs = refs
	c.pos = nil
	c.dirty = true
	c.recount(0)
}

func (c *chain) setRev(id, rev uint64) {
	if pi := c.find(id); pi >= 0 {
		c.refs[pi].rev = rev
		c.dirty = true
	}
}

// packed reports whether every page but the last holds exactly size tuples.
func (c *chain) packed(size int) bool {
	for i, r := range c.refs {
		if i < len(c.refs)-1 && r.count != size {
			return false
		}
		if i == len(c.refs)-1 && (r.count < 1 || r.count > size) {
			return false
		}
	}
	return true
}

func (c *chain) clone() *chain {
	return &chain{
		group:  c.group,
		refs:   slices.Clone(c.refs),
		starts: slices.Clone(c.starts),
	}
}

func (c *chain) encode() []byte {
	var buf []byte
	for _, r := range c.refs {
		body := protocol.AppendUint(nil, 'I', r.id)
		body = protocol.AppendUint(body, 'R', r.rev)
		body = protocol.AppendUint(body, 'C', uint64(r.count))
		buf = protocol.Append(buf, 'p', body)
	}
	return buf
}

func decodeChain(group string, data []byte) (*chain, error) {
	c := newChain(group)
	rest := data
	for len(rest) > 0 {
		body, tail, err := protocol.TakeWary('P', rest)
		if err != nil {
			return nil, badChain(group, err)
		}
		rest = tail
		var r pageRef
		var count uint64
		if r.id, body, err = protocol.TakeUint('I', body); err != nil {
			return nil, badChain(group, err)
		}
		if r.rev, body, err = protocol.TakeUint('R', body); err != nil {
			return nil, badChain(group, err)
		}
		if count, _, err = protocol.TakeUint('C', body); err != nil {
			return nil, badChain(group, err)
		}
		r.count = int(count)
		c.refs = append(c.refs, r)
	}
	c.recount(0)
	return c, nil
}

func badChain(group string, err error) error {
	return errors.Join(ordview_errors.ErrBadRecord, fmt.Errorf("chain of group %q: %w", group, err))
}
