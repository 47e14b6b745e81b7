package view

import "github.com/drpcorg/ordview/tuple"

// Verify checks the whole view: chain counts against pages, every tuple
// against its reverse entry, and the number of reverse entries against the
// number of indexed tuples. Any mismatch is ErrCorrupted.
func (q *queries) Verify() error {
	if err := q.check(); err != nil {
		return err
	}
	groups, err := q.src.groups()
	if err != nil {
		return err
	}
	seen := make(map[tuple.Tuple]Position)
	for _, group := range groups {
		c, err := q.src.chain(group)
		if err != nil {
			return err
		}
		for pi, ref := range c.refs {
			if ref.count == 0 {
				return corrupted("group %q has empty page %d", group, ref.id)
			}
			p, err := q.src.page(ref)
			if err != nil {
				return err
			}
			if len(p.tuples) != ref.count || p.group != group {
				return corrupted("page %d of group %q holds %d tuples of group %q, chain says %d",
					p.id, group, len(p.tuples), p.group, ref.count)
			}
			for off, t := range p.tuples {
				index := c.start(pi) + off
				if prev, dup := seen[t]; dup {
					return corrupted("%s is at %s@%d and %s@%d", t, prev.Group, prev.Index, group, index)
				}
				seen[t] = Position{group, index}
				e, ok, err := q.src.lookup(t)
				if err != nil {
					return err
				}
				if !ok || e.group != group || e.page != p.id || e.offset != off {
					return corrupted("%s at %s@%d has reverse entry %+v (found %v)", t, group, index, e, ok)
				}
			}
		}
	}
	reverse, err := q.src.reverseTuples()
	if err != nil {
		return err
	}
	if len(reverse) != len(seen) {
		return corrupted("%d reverse entries for %d indexed tuples", len(reverse), len(seen))
	}
	return nil
}
