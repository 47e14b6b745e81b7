package repl

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/drpcorg/ordview"
	"github.com/drpcorg/ordview/tuple"
	"github.com/drpcorg/ordview/view"
	dto "github.com/prometheus/client_model/go"
)

const help = `put c k value        store a record
get c k              print a record
del c k              delete a record
assign c k group i   put c/k into group at index i
move c k i           move c/k to index i of its group
unassign c k         take c/k out of the view
at group i           the tuple at index i of group
where c k            group and index of c/k
list group [a b] [desc]  tuples and values of a group
groups               groups with their sizes
pages group          page ids and sizes of a group
pagesize [n]         show or change the page size
verify               check the view structure
stats                print metrics
exit`

var (
	HelpPut      = errors.New("put c k value")
	HelpTuple    = errors.New("expected a collection and a key")
	HelpAssign   = errors.New("assign c k group index")
	HelpMove     = errors.New("move c k index")
	HelpAt       = errors.New("at group index")
	HelpList     = errors.New("list group [from to] [desc]")
	HelpPages    = errors.New("pages group")
	HelpPageSize = errors.New("pagesize [n]")
)

func parseTuple(args []string, help error) (tuple.Tuple, []string, error) {
	if len(args) < 2 {
		return tuple.Tuple{}, nil, help
	}
	return tuple.New(args[0], args[1]), args[2:], nil
}

func parseIndex(arg string, help error) (int, error) {
	i, err := strconv.Atoi(arg)
	if err != nil {
		return 0, errors.Join(help, err)
	}
	return i, nil
}

func (repl *REPL) update(ctx context.Context, fn func(tx *ordview.Tx, w *view.WriteTx) error) error {
	return repl.Store.Update(ctx, func(tx *ordview.Tx) error {
		w, err := repl.View.Write(tx)
		if err != nil {
			return err
		}
		return fn(tx, w)
	})
}

func (repl *REPL) read(ctx context.Context, fn func(tx *ordview.Tx, r *view.ReadTx) error) error {
	return repl.Store.View(ctx, func(tx *ordview.Tx) error {
		r, err := repl.View.Read(tx)
		if err != nil {
			return err
		}
		return fn(tx, r)
	})
}

func (repl *REPL) CommandPut(ctx context.Context, args []string) error {
	t, rest, err := parseTuple(args, HelpPut)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		return HelpPut
	}
	return repl.Store.Update(ctx, func(tx *ordview.Tx) error {
		return tx.Set(t, []byte(strings.Join(rest, " ")))
	})
}

func (repl *REPL) CommandGet(ctx context.Context, args []string) error {
	t, _, err := parseTuple(args, HelpTuple)
	if err != nil {
		return err
	}
	return repl.Store.View(ctx, func(tx *ordview.Tx) error {
		value, ok, err := tx.Get(t)
		if err != nil {
			return err
		}
		if !ok {
			repl.printf("%s not found\n", t)
			return nil
		}
		repl.printf("%s\t%s\n", t, value)
		return nil
	})
}

func (repl *REPL) CommandDel(ctx context.Context, args []string) error {
	t, _, err := parseTuple(args, HelpTuple)
	if err != nil {
		return err
	}
	return repl.Store.Update(ctx, func(tx *ordview.Tx) error {
		return tx.Remove(t)
	})
}

func (repl *REPL) CommandAssign(ctx context.Context, args []string) error {
	t, rest, err := parseTuple(args, HelpAssign)
	if err != nil {
		return err
	}
	if len(rest) != 2 {
		return HelpAssign
	}
	index, err := parseIndex(rest[1], HelpAssign)
	if err != nil {
		return err
	}
	return repl.update(ctx, func(_ *ordview.Tx, w *view.WriteTx) error {
		return w.Assign(t, rest[0], index)
	})
}

func (repl *REPL) CommandMove(ctx context.Context, args []string) error {
	t, rest, err := parseTuple(args, HelpMove)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return HelpMove
	}
	index, err := parseIndex(rest[0], HelpMove)
	if err != nil {
		return err
	}
	return repl.update(ctx, func(_ *ordview.Tx, w *view.WriteTx) error {
		return w.Reposition(t, index)
	})
}

func (repl *REPL) CommandUnassign(ctx context.Context, args []string) error {
	t, _, err := parseTuple(args, HelpTuple)
	if err != nil {
		return err
	}
	return repl.update(ctx, func(_ *ordview.Tx, w *view.WriteTx) error {
		return w.Remove(t)
	})
}

func (repl *REPL) CommandPageSize(ctx context.Context, args []string) error {
	switch len(args) {
	case 0:
		return repl.read(ctx, func(_ *ordview.Tx, r *view.ReadTx) error {
			n, err := r.PageSize()
			if err != nil {
				return err
			}
			repl.printf("%d\n", n)
			return nil
		})
	case 1:
		n, err := parseIndex(args[0], HelpPageSize)
		if err != nil {
			return err
		}
		return repl.update(ctx, func(_ *ordview.Tx, w *view.WriteTx) error {
			return w.SetPageSize(n)
		})
	default:
		return HelpPageSize
	}
}

func (repl *REPL) CommandAt(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return HelpAt
	}
	index, err := parseIndex(args[1], HelpAt)
	if err != nil {
		return err
	}
	return repl.read(ctx, func(_ *ordview.Tx, r *view.ReadTx) error {
		t, err := r.TupleAt(index, args[0])
		if err != nil {
			return err
		}
		repl.printf("%s\n", t)
		return nil
	})
}

func (repl *REPL) CommandWhere(ctx context.Context, args []string) error {
	t, _, err := parseTuple(args, HelpTuple)
	if err != nil {
		return err
	}
	return repl.read(ctx, func(_ *ordview.Tx, r *view.ReadTx) error {
		pos, ok, err := r.Position(t)
		if err != nil {
			return err
		}
		if !ok {
			repl.printf("%s not indexed\n", t)
			return nil
		}
		repl.printf("%s@%d\n", pos.Group, pos.Index)
		return nil
	})
}

func (repl *REPL) CommandList(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return HelpList
	}
	group, args := args[0], args[1:]
	var opts view.EnumOptions
	if len(args) > 0 && args[len(args)-1] == "desc" {
		opts.Reverse = true
		args = args[:len(args)-1]
	}
	if len(args) != 0 && len(args) != 2 {
		return HelpList
	}
	return repl.read(ctx, func(_ *ordview.Tx, r *view.ReadTx) error {
		n, err := r.NumberOfKeysInGroup(group)
		if err != nil {
			return err
		}
		rng := view.Range{Start: 0, End: n}
		if len(args) == 2 {
			if rng.Start, err = parseIndex(args[0], HelpList); err != nil {
				return err
			}
			if rng.End, err = parseIndex(args[1], HelpList); err != nil {
				return err
			}
		}
		return r.EnumerateValues(group, opts, rng, func(t tuple.Tuple, index int, value []byte) bool {
			repl.printf("%d\t%s\t%s\n", index, t, value)
			return true
		})
	})
}

func (repl *REPL) CommandGroups(ctx context.Context, _ []string) error {
	return repl.read(ctx, func(_ *ordview.Tx, r *view.ReadTx) error {
		groups, err := r.AllGroups()
		if err != nil {
			return err
		}
		for _, g := range groups {
			n, err := r.NumberOfKeysInGroup(g)
			if err != nil {
				return err
			}
			repl.printf("%s\t%d\n", g, n)
		}
		total, err := r.NumberOfKeysInAllGroups()
		if err != nil {
			return err
		}
		repl.printf("%d groups, %d tuples\n", len(groups), total)
		return nil
	})
}

func (repl *REPL) CommandPages(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return HelpPages
	}
	return repl.read(ctx, func(_ *ordview.Tx, r *view.ReadTx) error {
		pages, err := r.Pages(args[0])
		if err != nil {
			return err
		}
		for i, p := range pages {
			repl.printf("%d\tpage %d\t%d\n", i, p.ID, p.Count)
		}
		return nil
	})
}

func (repl *REPL) CommandVerify(ctx context.Context, _ []string) error {
	return repl.read(ctx, func(_ *ordview.Tx, r *view.ReadTx) error {
		if err := r.Verify(); err != nil {
			return err
		}
		repl.printf("ok\n")
		return nil
	})
}

func (repl *REPL) CommandStats(_ context.Context, _ []string) error {
	families, err := repl.Registry.Gather()
	if err != nil {
		return err
	}
	sort.Slice(families, func(i, j int) bool { return families[i].GetName() < families[j].GetName() })
	for _, f := range families {
		for _, m := range f.GetMetric() {
			repl.printf("%s%s\t%s\n", f.GetName(), labels(m), value(m))
		}
	}
	return nil
}

func labels(m *dto.Metric) string {
	if len(m.GetLabel()) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(m.GetLabel()))
	for _, l := range m.GetLabel() {
		pairs = append(pairs, l.GetName()+"="+strconv.Quote(l.GetValue()))
	}
	return "{" + strings.Join(pairs, ",") + "}"
}

func value(m *dto.Metric) string {
	switch {
	case m.Counter != nil:
		return fmt.Sprint(m.GetCounter().GetValue())
	case m.Gauge != nil:
		return fmt.Sprint(m.GetGauge().GetValue())
	case m.Histogram != nil:
		return fmt.Sprintf("count=%d sum=%g", m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum())
	default:
		return "?"
	}
}
