package view

import (
	"context"
	"slices"
	"time"

	"github.com/drpcorg/ordview/tuple"
	"github.com/drpcorg/ordview/utils"
)

// editor performs the structural mutations of page chains over a staged state.
// Every tuple that changes page is re-placed in the reverse index; offsets on
// rewritten pages are resolved from the staged pages.
type editor struct {
	st   *staged
	view string
	log  utils.Logger
	ctx  context.Context
}

func (e *editor) event(name string) {
	PageEvents.WithLabelValues(e.view, name).Inc()
}

// insert puts t at index of the group, index == count appends.
func (e *editor) insert(t tuple.Tuple, group string, index int) error {
	c, err := e.st.chain(group)
	if err != nil {
		return err
	}
	total := c.total()
	if index < 0 || index > total {
		return outOfRange(index, total)
	}
	if len(c.refs) == 0 {
		p := e.st.newPage(group)
		p.tuples = []tuple.Tuple{t}
		c.insertRef(0, pageRef{id: p.id, count: 1})
		e.st.place(t, group, p.id)
		return nil
	}
	var pi, off int
	if index == total {
		pi = len(c.refs) - 1
		off = c.refs[pi].count
	} else if pi, off, err = c.locate(index); err != nil {
		return err
	}
	p, err := e.st.mutablePage(c.refs[pi])
	if err != nil {
		return err
	}
	p.tuples = slices.Insert(p.tuples, off, t)
	c.setCount(pi, len(p.tuples))
	e.st.place(t, group, p.id)
	return e.split(c, pi)
}

// split halves page pi while it holds more than a page size.
func (e *editor) split(c *chain, pi int) error {
	size := e.st.pageSize()
	if c.refs[pi].count <= size {
		return nil
	}
	p, err := e.st.mutablePage(c.refs[pi])
	if err != nil {
		return err
	}
	left := (len(p.tuples) + 1) / 2
	np := e.st.newPage(c.group)
	np.tuples = slices.Clone(p.tuples[left:])
	p.tuples = slices.Clip(p.tuples[:left])
	for _, t := range np.tuples {
		e.st.place(t, c.group, np.id)
	}
	c.setCount(pi, len(p.tuples))
	c.insertRef(pi+1, pageRef{id: np.id, count: len(np.tuples)})
	e.event(eventSplit)
	e.log.DebugCtx(e.ctx, "page split", "view", e.view, "group", c.group,
		"page", p.id, "new", np.id, "left", len(p.tuples), "right", len(np.tuples))
	if err = e.split(c, pi+1); err != nil {
		return err
	}
	return e.split(c, pi)
}

// remove takes t out of its group; ok is false if t was not indexed.
func (e *editor) remove(t tuple.Tuple) (ok bool, err error) {
	entry, ok, err := e.st.lookup(t)
	if err != nil || !ok {
		return false, err
	}
	c, err := e.st.chain(entry.group)
	if err != nil {
		return false, err
	}
	pi := c.find(entry.page)
	if pi < 0 {
		return false, corrupted("%s points to page %d absent from group %q", t, entry.page, entry.group)
	}
	p, err := e.st.mutablePage(c.refs[pi])
	if err != nil {
		return false, err
	}
	p.tuples = slices.Delete(p.tuples, entry.offset, entry.offset+1)
	c.setCount(pi, len(p.tuples))
	e.st.unplace(t)
	return true, e.rebalance(c, pi)
}

// rebalance fixes an underfull page pi: empty pages are dropped, a page
// under half the page size merges into its smaller neighbour when both fit
// one page, otherwise the two share their tuples evenly.
func (e *editor) rebalance(c *chain, pi int) error {
	n := c.refs[pi].count
	if n == 0 {
		e.st.dropPage(c.refs[pi].id)
		c.removeRef(pi)
		e.event(eventDrop)
		return nil
	}
	size := e.st.pageSize()
	if 2*n >= size {
		return nil
	}
	nb := -1
	if pi > 0 {
		nb = pi - 1
	}
	if pi+1 < len(c.refs) && (nb < 0 || c.refs[pi+1].count < c.refs[nb].count) {
		nb = pi + 1
	}
	if nb < 0 {
		return nil
	}
	li, ri := min(pi, nb), max(pi, nb)
	lp, err := e.st.mutablePage(c.refs[li])
	if err != nil {
		return err
	}
	rp, err := e.st.mutablePage(c.refs[ri])
	if err != nil {
		return err
	}
	if len(lp.tuples)+len(rp.tuples) <= size {
		for _, t := range rp.tuples {
			e.st.place(t, c.group, lp.id)
		}
		lp.tuples = append(lp.tuples, rp.tuples...)
		c.setCount(li, len(lp.tuples))
		e.st.dropPage(rp.id)
		c.removeRef(ri)
		e.event(eventMerge)
		e.log.DebugCtx(e.ctx, "pages merged", "view", e.view, "group", c.group,
			"page", lp.id, "dropped", rp.id, "count", len(lp.tuples))
		return nil
	}
	all := append(slices.Clone(lp.tuples), rp.tuples...)
	half := (len(all) + 1) / 2
	lp.tuples = slices.Clone(all[:half])
	rp.tuples = slices.Clone(all[half:])
	for _, t := range lp.tuples {
		e.st.place(t, c.group, lp.id)
	}
	for _, t := range rp.tuples {
		e.st.place(t, c.group, rp.id)
	}
	c.setCount(li, len(lp.tuples))
	c.setCount(ri, len(rp.tuples))
	e.event(eventRedistribute)
	e.log.DebugCtx(e.ctx, "pages redistributed", "view", e.view, "group", c.group,
		"left", lp.id, "right", rp.id, "counts", []int{len(lp.tuples), len(rp.tuples)})
	return nil
}

// move changes the index of an indexed tuple inside its group. A move that
// stays inside one page rotates that page only.
func (e *editor) move(t tuple.Tuple, index int) error {
	entry, ok, err := e.st.lookup(t)
	if err != nil || !ok {
		return err
	}
	c, err := e.st.chain(entry.group)
	if err != nil {
		return err
	}
	if index < 0 || index >= c.total() {
		return outOfRange(index, c.total())
	}
	pi := c.find(entry.page)
	if pi < 0 {
		return corrupted("%s points to page %d absent from group %q", t, entry.page, entry.group)
	}
	from, start := c.start(pi)+entry.offset, c.start(pi)
	if from == index {
		return nil
	}
	if index >= start && index < start+c.refs[pi].count {
		p, err := e.st.mutablePage(c.refs[pi])
		if err != nil {
			return err
		}
		p.tuples = slices.Delete(p.tuples, entry.offset, entry.offset+1)
		p.tuples = slices.Insert(p.tuples, index-start, t)
		return nil
	}
	if _, err = e.remove(t); err != nil {
		return err
	}
	return e.insert(t, entry.group, index)
}

// restructure repacks every group into full pages of the current page size.
// Page ids are reused in chain order; chains already packed are left alone.
func (e *editor) restructure() error {
	started := time.Now()
	defer func() {
		RestructureDuration.WithLabelValues(e.view).Observe(time.Since(started).Seconds())
	}()
	groups, err := e.st.groups()
	if err != nil {
		return err
	}
	size := e.st.pageSize()
	for _, group := range groups {
		c, err := e.st.chain(group)
		if err != nil {
			return err
		}
		if c.packed(size) {
			continue
		}
		var all []tuple.Tuple
		var from []uint64
		for _, ref := range c.refs {
			p, err := e.st.page(ref)
			if err != nil {
				return err
			}
			for _, t := range p.tuples {
				all = append(all, t)
				from = append(from, p.id)
			}
		}
		ids := make([]uint64, 0, len(c.refs))
		for _, ref := range c.refs {
			ids = append(ids, ref.id)
		}
		refs := make([]pageRef, 0, (len(all)+size-1)/size)
		for i := 0; i < len(all); i += size {
			chunk := slices.Clone(all[i:min(i+size, len(all))])
			var p *page
			if k := len(refs); k < len(ids) {
				p = &page{id: ids[k], group: group, tuples: chunk}
				e.st.putPage(p)
			} else {
				p = e.st.newPage(group)
				p.tuples = chunk
			}
			for j, t := range chunk {
				if from[i+j] != p.id {
					e.st.place(t, group, p.id)
				}
			}
			refs = append(refs, pageRef{id: p.id, count: len(chunk)})
		}
		for _, id := range ids[min(len(refs), len(ids)):] {
			e.st.dropPage(id)
		}
		before := len(c.refs)
		c.setRefs(refs)
		e.event(eventRestructure)
		e.log.DebugCtx(e.ctx, "group restructured", "view", e.view, "group", group,
			"size", size, "pages_before", before, "pages_after", len(refs))
	}
	return nil
}
