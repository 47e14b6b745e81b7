package view

import (
	"errors"
	"fmt"
	"sort"

	"github.com/drpcorg/ordview/host"
	"github.com/drpcorg/ordview/ordview_errors"
	"github.com/drpcorg/ordview/tuple"
)

type OpKind byte

const (
	// OpAssign puts a tuple into Group at Index, moving it if already indexed.
	OpAssign OpKind = 'A'
	// OpRemove takes a tuple out of the view.
	OpRemove OpKind = 'R'
	// OpReposition moves an indexed tuple to Index inside its group.
	OpReposition OpKind = 'P'
)

func (k OpKind) String() string {
	switch k {
	case OpAssign:
		return "assign"
	case OpRemove:
		return "remove"
	case OpReposition:
		return "reposition"
	default:
		return fmt.Sprintf("op(%d)", byte(k))
	}
}

type Op struct {
	Kind  OpKind
	Tuple tuple.Tuple
	Group string
	Index int
}

func Assign(t tuple.Tuple, group string, index int) Op {
	return Op{Kind: OpAssign, Tuple: t, Group: group, Index: index}
}

func Remove(t tuple.Tuple) Op {
	return Op{Kind: OpRemove, Tuple: t}
}

func Reposition(t tuple.Tuple, index int) Op {
	return Op{Kind: OpReposition, Tuple: t, Index: index}
}

func (op Op) String() string {
	switch op.Kind {
	case OpAssign:
		return fmt.Sprintf("assign %s %s@%d", op.Tuple, op.Group, op.Index)
	case OpReposition:
		return fmt.Sprintf("reposition %s @%d", op.Tuple, op.Index)
	default:
		return fmt.Sprintf("%s %s", op.Kind, op.Tuple)
	}
}

// Changeset is an ordered list of operations. Indices are the final positions
// the tuples must end up at once the whole changeset is applied.
type Changeset []Op

type pending struct {
	Op
	seq int
}

// coalesce keeps the last operation per tuple, in the order of those last
// operations. A reposition takes its group from the assign before it or from
// the current index; repositioning a tuple that is not indexed is dropped.
func (e *editor) coalesce(cs Changeset) ([]pending, error) {
	last := make(map[tuple.Tuple]pending, len(cs))
	for seq, op := range cs {
		switch op.Kind {
		case OpAssign, OpReposition:
			if op.Index < 0 {
				return nil, outOfRange(op.Index, 0)
			}
		case OpRemove:
		default:
			return nil, errors.Join(ordview_errors.ErrBadOp, fmt.Errorf("%s", op))
		}
		ChangesetOps.WithLabelValues(e.view, op.Kind.String()).Inc()
		if op.Kind == OpReposition {
			if prev, ok := last[op.Tuple]; ok {
				if prev.Kind == OpRemove {
					e.log.WarnCtx(e.ctx, "reposition of a removed tuple ignored", "view", e.view, "tuple", op.Tuple)
					continue
				}
				op.Group = prev.Group
			} else {
				entry, ok, err := e.st.lookup(op.Tuple)
				if err != nil {
					return nil, err
				}
				if !ok {
					e.log.WarnCtx(e.ctx, "reposition of an unindexed tuple ignored", "view", e.view, "tuple", op.Tuple)
					continue
				}
				op.Group = entry.group
			}
		}
		last[op.Tuple] = pending{Op: op, seq: seq}
	}
	ops := make([]pending, 0, len(last))
	for _, p := range last {
		ops = append(ops, p)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].seq < ops[j].seq })
	return ops, nil
}

// apply runs a changeset: every touched tuple is taken out first, then each
// group gets its tuples inserted in ascending target order so each lands at
// its requested index.
func (e *editor) apply(cs Changeset) error {
	ops, err := e.coalesce(cs)
	if err != nil || len(ops) == 0 {
		return err
	}
	if len(ops) == 1 && ops[0].Kind != OpRemove {
		op := ops[0]
		entry, ok, err := e.st.lookup(op.Tuple)
		if err != nil {
			return err
		}
		if ok && entry.group == op.Group {
			return e.move(op.Tuple, op.Index)
		}
	}
	for _, op := range ops {
		if _, err = e.remove(op.Tuple); err != nil {
			return err
		}
	}
	byGroup := make(map[string][]pending)
	var groups []string
	for _, op := range ops {
		if op.Kind == OpRemove {
			continue
		}
		if _, ok := byGroup[op.Group]; !ok {
			groups = append(groups, op.Group)
		}
		byGroup[op.Group] = append(byGroup[op.Group], op)
	}
	for _, group := range groups {
		inserts := byGroup[group]
		sort.SliceStable(inserts, func(i, j int) bool { return inserts[i].Index < inserts[j].Index })
		for _, op := range inserts {
			if err = e.insert(op.Tuple, group, op.Index); err != nil {
				return err
			}
		}
	}
	return nil
}

// placeRecords puts records the host transaction wrote where the grouping
// and sorting functions want them.
func (e *editor) placeRecords(opts *Options, tx host.Tx, set []tuple.Tuple) error {
	for _, t := range set {
		value, ok, err := tx.Get(t)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		metadata, _, err := tx.GetMetadata(t)
		if err != nil {
			return err
		}
		row := Row{Tuple: t, Value: value, Metadata: metadata}
		group, in := opts.Grouping(row)
		if _, err = e.remove(t); err != nil {
			return err
		}
		if !in {
			continue
		}
		index, err := e.sortedIndex(opts.Sorting, tx, group, row)
		if err != nil {
			return err
		}
		if err = e.insert(t, group, index); err != nil {
			return err
		}
	}
	return nil
}

// sortedIndex is the index after the last row of the group not greater than
// row, the group count when there is no sorting.
func (e *editor) sortedIndex(sorting SortingFunc, tx host.Tx, group string, row Row) (int, error) {
	c, err := e.st.chain(group)
	if err != nil {
		return 0, err
	}
	lo, hi := 0, c.total()
	if sorting == nil {
		return hi, nil
	}
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		pi, off, err := c.locate(mid)
		if err != nil {
			return 0, err
		}
		p, err := e.st.page(c.refs[pi])
		if err != nil {
			return 0, err
		}
		other, err := recordRow(tx, p.tuples[off])
		if err != nil {
			return 0, err
		}
		if sorting(group, row, other) < 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo, nil
}

func recordRow(tx host.Tx, t tuple.Tuple) (row Row, err error) {
	row.Tuple = t
	if row.Value, _, err = tx.Get(t); err != nil {
		return
	}
	row.Metadata, _, err = tx.GetMetadata(t)
	return
}
