package view

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/drpcorg/ordview"
	"github.com/drpcorg/ordview/ordview_errors"
	"github.com/drpcorg/ordview/tuple"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, name string, opts Options) (*ordview.Store, *View) {
	s, err := ordview.Open("db", ordview.Options{Options: pebble.Options{FS: vfs.NewMem()}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	v := New(name, opts)
	require.NoError(t, s.Register(v))
	return s, v
}

func tk(i int) tuple.Tuple {
	return tuple.New("c", fmt.Sprintf("t%04d", i))
}

func update(t *testing.T, s *ordview.Store, v *View, fn func(w *WriteTx) error) error {
	return s.Update(context.Background(), func(tx *ordview.Tx) error {
		w, err := v.Write(tx)
		require.NoError(t, err)
		return fn(w)
	})
}

func read(t *testing.T, s *ordview.Store, v *View, fn func(r *ReadTx)) {
	require.NoError(t, s.View(context.Background(), func(tx *ordview.Tx) error {
		r, err := v.Read(tx)
		require.NoError(t, err)
		fn(r)
		return nil
	}))
}

func pageSize(t *testing.T, q Transaction) int {
	n, err := q.PageSize()
	require.NoError(t, err)
	return n
}

func pageCounts(t *testing.T, q Transaction, group string) []int {
	pages, err := q.Pages(group)
	require.NoError(t, err)
	counts := make([]int, 0, len(pages))
	for _, p := range pages {
		counts = append(counts, p.Count)
	}
	return counts
}

func groupTuples(t *testing.T, q Transaction, group string) []tuple.Tuple {
	var got []tuple.Tuple
	require.NoError(t, q.Enumerate(group, EnumOptions{}, func(tu tuple.Tuple, index int) bool {
		assert.Equal(t, len(got), index)
		got = append(got, tu)
		return true
	}))
	return got
}

func fill(t *testing.T, s *ordview.Store, v *View, group string, n int) {
	require.NoError(t, update(t, s, v, func(w *WriteTx) error {
		for i := 0; i < n; i++ {
			if err := w.Assign(tk(i+1), group, i); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestInsertSplitsPages(t *testing.T) {
	s, v := testStore(t, "main", Options{PageSize: 2})
	fill(t, s, v, "G", 5)

	read(t, s, v, func(r *ReadTx) {
		assert.Equal(t, []int{2, 2, 1}, pageCounts(t, r, "G"))
		got, err := r.TupleAt(3, "G")
		require.NoError(t, err)
		assert.Equal(t, tk(4), got)

		group, ok, err := r.GroupFor(tk(4))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "G", group)
		pos, ok, err := r.Position(tk(4))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, Position{Group: "G", Index: 3}, pos)

		_, err = r.TupleAt(5, "G")
		assert.ErrorIs(t, err, ordview_errors.ErrIndexOutOfRange)
		_, err = r.TupleAt(0, "nope")
		assert.ErrorIs(t, err, ordview_errors.ErrIndexOutOfRange)
		assert.NoError(t, r.Verify())
	})
}

func TestRemoveRebalances(t *testing.T) {
	s, v := testStore(t, "main", Options{PageSize: 2})
	fill(t, s, v, "G", 5)
	require.NoError(t, update(t, s, v, func(w *WriteTx) error {
		return w.Remove(tk(3))
	}))

	read(t, s, v, func(r *ReadTx) {
		assert.Equal(t, []int{2, 1, 1}, pageCounts(t, r, "G"))
		n, err := r.NumberOfKeysInGroup("G")
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		assert.Equal(t, []tuple.Tuple{tk(1), tk(2), tk(4), tk(5)}, groupTuples(t, r, "G"))
		_, ok, err := r.Position(tk(3))
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, r.Verify())
	})
}

func TestMergeAndRedistribute(t *testing.T) {
	s, v := testStore(t, "main", Options{PageSize: 4})
	fill(t, s, v, "G", 10)
	read(t, s, v, func(r *ReadTx) {
		assert.Equal(t, []int{3, 3, 4}, pageCounts(t, r, "G"))
	})

	// page two drops under half and its smaller neighbour gets it all
	require.NoError(t, update(t, s, v, func(w *WriteTx) error {
		return w.ApplyChangeset(Changeset{Remove(tk(4)), Remove(tk(5))})
	}))
	read(t, s, v, func(r *ReadTx) {
		assert.Equal(t, []int{4, 4}, pageCounts(t, r, "G"))
		assert.NoError(t, r.Verify())
	})

	require.NoError(t, update(t, s, v, func(w *WriteTx) error {
		return w.ApplyChangeset(Changeset{Remove(tk(1)), Remove(tk(2)), Remove(tk(3))})
	}))
	read(t, s, v, func(r *ReadTx) {
		assert.Equal(t, []int{3, 2}, pageCounts(t, r, "G"))
		assert.Equal(t, []tuple.Tuple{tk(6), tk(7), tk(8), tk(9), tk(10)}, groupTuples(t, r, "G"))
		assert.NoError(t, r.Verify())
	})

	require.NoError(t, update(t, s, v, func(w *WriteTx) error {
		return w.ApplyChangeset(Changeset{Remove(tk(6)), Remove(tk(7)), Remove(tk(8)), Remove(tk(9)), Remove(tk(10))})
	}))
	read(t, s, v, func(r *ReadTx) {
		n, err := r.NumberOfGroups()
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Empty(t, pageCounts(t, r, "G"))
		assert.NoError(t, r.Verify())
	})
}

func TestRestructure(t *testing.T) {
	s, v := testStore(t, "main", Options{})
	fill(t, s, v, "G", 120)
	var before []tuple.Tuple
	read(t, s, v, func(r *ReadTx) {
		assert.Equal(t, DefaultPageSize, pageSize(t, r))
		assert.NotEqual(t, []int{50, 50, 20}, pageCounts(t, r, "G"))
		before = groupTuples(t, r, "G")
	})

	require.NoError(t, update(t, s, v, func(w *WriteTx) error {
		if err := w.SetPageSize(2); err != nil {
			return err
		}
		return w.SetPageSize(50)
	}))
	var pages []PageInfo
	read(t, s, v, func(r *ReadTx) {
		assert.Equal(t, []int{50, 50, 20}, pageCounts(t, r, "G"))
		assert.Equal(t, before, groupTuples(t, r, "G"))
		assert.NoError(t, r.Verify())
		var err error
		pages, err = r.Pages("G")
		require.NoError(t, err)
	})

	// the same size again changes nothing
	require.NoError(t, update(t, s, v, func(w *WriteTx) error {
		return w.SetPageSize(50)
	}))
	read(t, s, v, func(r *ReadTx) {
		again, err := r.Pages("G")
		require.NoError(t, err)
		assert.Equal(t, pages, again)
	})

	require.NoError(t, update(t, s, v, func(w *WriteTx) error {
		return w.SetPageSize(7)
	}))
	read(t, s, v, func(r *ReadTx) {
		assert.Equal(t, 7, pageSize(t, r))
		counts := pageCounts(t, r, "G")
		assert.Len(t, counts, 18)
		assert.Equal(t, 1, counts[17])
		assert.Equal(t, before, groupTuples(t, r, "G"))
		assert.NoError(t, r.Verify())
	})
}

func TestSetPageSizeWithinTransaction(t *testing.T) {
	s, v := testStore(t, "main", Options{})
	require.NoError(t, update(t, s, v, func(w *WriteTx) error {
		require.NoError(t, w.SetPageSize(2))
		assert.Equal(t, 2, pageSize(t, w))
		var cs Changeset
		for i := 0; i < 5; i++ {
			cs = append(cs, Assign(tk(i+1), "G", i))
		}
		require.NoError(t, w.ApplyChangeset(cs))
		assert.Equal(t, []int{2, 2, 1}, pageCounts(t, w, "G"))
		assert.NoError(t, w.Verify())
		return nil
	}))
	read(t, s, v, func(r *ReadTx) {
		assert.Equal(t, 2, pageSize(t, r))
		assert.Equal(t, []int{2, 2, 1}, pageCounts(t, r, "G"))
		assert.NoError(t, r.Verify())
	})

	// an aborted resize leaves no trace
	var before []PageInfo
	read(t, s, v, func(r *ReadTx) {
		var err error
		before, err = r.Pages("G")
		require.NoError(t, err)
	})
	tx, err := s.BeginWrite(context.Background())
	require.NoError(t, err)
	w, err := v.Write(tx)
	require.NoError(t, err)
	require.NoError(t, w.SetPageSize(9))
	assert.Equal(t, 9, pageSize(t, w))
	require.NoError(t, tx.Abort())
	read(t, s, v, func(r *ReadTx) {
		assert.Equal(t, 2, pageSize(t, r))
		pages, err := r.Pages("G")
		require.NoError(t, err)
		assert.Equal(t, before, pages)
	})
}

func TestPageSizeSurvivesReopen(t *testing.T) {
	fs := vfs.NewMem()
	open := func(opts Options) (*ordview.Store, *View) {
		s, err := ordview.Open("db", ordview.Options{Options: pebble.Options{FS: fs}})
		require.NoError(t, err)
		v := New("main", opts)
		require.NoError(t, s.Register(v))
		return s, v
	}

	s, v := open(Options{})
	fill(t, s, v, "G", 10)
	require.NoError(t, update(t, s, v, func(w *WriteTx) error {
		return w.SetPageSize(3)
	}))
	err := update(t, s, v, func(w *WriteTx) error {
		require.NoError(t, w.SetPageSize(9))
		return fmt.Errorf("rolled back")
	})
	assert.EqualError(t, err, "rolled back")
	var pages []PageInfo
	var tuples []tuple.Tuple
	read(t, s, v, func(r *ReadTx) {
		assert.Equal(t, []int{3, 3, 3, 1}, pageCounts(t, r, "G"))
		var err error
		pages, err = r.Pages("G")
		require.NoError(t, err)
		tuples = groupTuples(t, r, "G")
	})
	require.NoError(t, s.Close())

	s, v = open(Options{PageSize: 40})
	defer s.Close()
	read(t, s, v, func(r *ReadTx) {
		assert.Equal(t, 3, pageSize(t, r))
		got, err := r.Pages("G")
		require.NoError(t, err)
		assert.Equal(t, pages, got)
		assert.Equal(t, tuples, groupTuples(t, r, "G"))
		assert.NoError(t, r.Verify())
	})

	// splits after reopening follow the persisted size
	require.NoError(t, update(t, s, v, func(w *WriteTx) error {
		return w.Assign(tk(11), "G", 10)
	}))
	read(t, s, v, func(r *ReadTx) {
		assert.Equal(t, []int{3, 3, 3, 2}, pageCounts(t, r, "G"))
	})
}

func TestEmptyGroups(t *testing.T) {
	s, v := testStore(t, "main", Options{})
	read(t, s, v, func(r *ReadTx) {
		groups, err := r.AllGroups()
		require.NoError(t, err)
		assert.Nil(t, groups)
	})
	fill(t, s, v, "G", 2)
	require.NoError(t, update(t, s, v, func(w *WriteTx) error {
		require.NoError(t, w.ApplyChangeset(Changeset{Remove(tk(1)), Remove(tk(2))}))
		groups, err := w.AllGroups()
		require.NoError(t, err)
		assert.Nil(t, groups)
		n, err := w.NumberOfGroups()
		require.NoError(t, err)
		assert.Zero(t, n)
		return nil
	}))
	read(t, s, v, func(r *ReadTx) {
		groups, err := r.AllGroups()
		require.NoError(t, err)
		assert.Nil(t, groups)
	})
}

func TestChangesetFinalPositions(t *testing.T) {
	s, v := testStore(t, "main", Options{PageSize: 3})
	a, b, c, d := tk(1), tk(2), tk(3), tk(4)
	fill(t, s, v, "G", 4)

	require.NoError(t, update(t, s, v, func(w *WriteTx) error {
		return w.ApplyChangeset(Changeset{Reposition(d, 0), Reposition(a, 3)})
	}))
	read(t, s, v, func(r *ReadTx) {
		assert.Equal(t, []tuple.Tuple{d, b, c, a}, groupTuples(t, r, "G"))
	})

	// single same-group move
	require.NoError(t, update(t, s, v, func(w *WriteTx) error {
		return w.Reposition(c, 0)
	}))
	read(t, s, v, func(r *ReadTx) {
		assert.Equal(t, []tuple.Tuple{c, d, b, a}, groupTuples(t, r, "G"))
		assert.NoError(t, r.Verify())
	})

	x, y := tuple.New("x", "x"), tuple.New("y", "y")
	require.NoError(t, update(t, s, v, func(w *WriteTx) error {
		return w.ApplyChangeset(Changeset{
			Assign(x, "G", 1),
			Assign(y, "G", 1),
			Assign(b, "H", 0),
			Assign(a, "G", 0),
			Reposition(a, 4),
			Reposition(tuple.New("no", "where"), 0),
		})
	}))
	read(t, s, v, func(r *ReadTx) {
		assert.Equal(t, []tuple.Tuple{c, y, x, d}, groupTuples(t, r, "G")[:4])
		assert.Equal(t, a, groupTuples(t, r, "G")[4])
		assert.Equal(t, []tuple.Tuple{b}, groupTuples(t, r, "H"))
		groups, err := r.AllGroups()
		require.NoError(t, err)
		assert.Equal(t, []string{"G", "H"}, groups)
		total, err := r.NumberOfKeysInAllGroups()
		require.NoError(t, err)
		assert.Equal(t, 6, total)
		assert.NoError(t, r.Verify())
	})
}

func TestChangesetErrors(t *testing.T) {
	s, v := testStore(t, "main", Options{})
	fill(t, s, v, "G", 3)

	err := s.Update(context.Background(), func(tx *ordview.Tx) error {
		require.NoError(t, tx.Set(tk(100), []byte("lost")))
		w, err := v.Write(tx)
		require.NoError(t, err)
		return w.Assign(tk(100), "G", 9)
	})
	assert.ErrorIs(t, err, ordview_errors.ErrIndexOutOfRange)

	require.NoError(t, s.View(context.Background(), func(tx *ordview.Tx) error {
		_, ok, err := tx.Get(tk(100))
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))

	tx, err := s.BeginWrite(context.Background())
	require.NoError(t, err)
	w, err := v.Write(tx)
	require.NoError(t, err)
	err = w.ApplyChangeset(Changeset{Assign(tk(5), "G", -1)})
	assert.ErrorIs(t, err, ordview_errors.ErrIndexOutOfRange)
	assert.ErrorIs(t, w.Assign(tk(5), "G", 0), ordview_errors.ErrIndexOutOfRange)
	_, err = w.NumberOfGroups()
	assert.ErrorIs(t, err, ordview_errors.ErrIndexOutOfRange)
	assert.ErrorIs(t, tx.Commit(), ordview_errors.ErrIndexOutOfRange)

	err = update(t, s, v, func(w *WriteTx) error {
		return w.ApplyChangeset(Changeset{{Kind: 'X', Tuple: tk(1)}})
	})
	assert.ErrorIs(t, err, ordview_errors.ErrBadOp)

	read(t, s, v, func(r *ReadTx) {
		assert.Equal(t, []tuple.Tuple{tk(1), tk(2), tk(3)}, groupTuples(t, r, "G"))
	})
}

func TestTransactionStates(t *testing.T) {
	s, v := testStore(t, "main", Options{})
	fill(t, s, v, "G", 3)

	rtx, err := s.BeginRead(context.Background())
	require.NoError(t, err)
	_, err = v.Write(rtx)
	assert.ErrorIs(t, err, ordview_errors.ErrReadOnly)
	q, err := v.Tx(rtx)
	require.NoError(t, err)
	assert.False(t, q.Writable())
	assert.NoError(t, q.SetPageSize(10))
	assert.Equal(t, DefaultPageSize, pageSize(t, q))
	r, err := v.Read(rtx)
	require.NoError(t, err)
	assert.Same(t, r, q)
	require.NoError(t, rtx.Commit())

	_, err = r.TupleAt(0, "G")
	assert.ErrorIs(t, err, ordview_errors.ErrInvalidTransactionState)
	_, err = r.PageSize()
	assert.ErrorIs(t, err, ordview_errors.ErrInvalidTransactionState)
	assert.ErrorIs(t, r.SetPageSize(10), ordview_errors.ErrInvalidTransactionState)
	_, err = v.Read(rtx)
	assert.ErrorIs(t, err, ordview_errors.ErrInvalidTransactionState)

	wtx, err := s.BeginWrite(context.Background())
	require.NoError(t, err)
	w, err := v.Write(wtx)
	require.NoError(t, err)
	assert.ErrorIs(t, w.SetPageSize(0), ordview_errors.ErrBadPageSize)
	require.NoError(t, w.ApplyChangeset(Changeset{Remove(tk(2))}))
	sr, err := v.Read(wtx)
	require.NoError(t, err)
	n, err := sr.NumberOfKeysInGroup("G")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, wtx.Abort())
	assert.ErrorIs(t, w.Remove(tk(1)), ordview_errors.ErrInvalidTransactionState)

	read(t, s, v, func(r *ReadTx) {
		n, err := r.NumberOfKeysInGroup("G")
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.NoError(t, r.Verify())
	})
}

func TestSnapshotIsolation(t *testing.T) {
	s, v := testStore(t, "main", Options{PageSize: 2})
	fill(t, s, v, "G", 5)

	old, err := s.BeginRead(context.Background())
	require.NoError(t, err)
	defer old.Abort()
	r, err := v.Read(old)
	require.NoError(t, err)
	assert.Equal(t, []tuple.Tuple{tk(1), tk(2), tk(3), tk(4), tk(5)}, groupTuples(t, r, "G"))

	require.NoError(t, update(t, s, v, func(w *WriteTx) error {
		return w.ApplyChangeset(Changeset{Remove(tk(1)), Assign(tk(9), "G", 2), Reposition(tk(5), 0)})
	}))

	assert.Equal(t, []tuple.Tuple{tk(1), tk(2), tk(3), tk(4), tk(5)}, groupTuples(t, r, "G"))
	assert.NoError(t, r.Verify())
	read(t, s, v, func(r *ReadTx) {
		assert.Equal(t, []tuple.Tuple{tk(5), tk(2), tk(9), tk(3), tk(4)}, groupTuples(t, r, "G"))
		assert.NoError(t, r.Verify())
	})
}

func TestEnumerateRange(t *testing.T) {
	s, v := testStore(t, "main", Options{PageSize: 3})
	fill(t, s, v, "G", 10)
	read(t, s, v, func(r *ReadTx) {
		for a := 0; a <= 10; a++ {
			for b := a; b <= 10; b++ {
				var asc, desc []int
				require.NoError(t, r.EnumerateRange("G", EnumOptions{}, Range{a, b}, func(tu tuple.Tuple, index int) bool {
					assert.Equal(t, tk(index+1), tu)
					asc = append(asc, index)
					return true
				}))
				require.NoError(t, r.EnumerateRange("G", EnumOptions{Reverse: true}, Range{a, b}, func(tu tuple.Tuple, index int) bool {
					assert.Equal(t, tk(index+1), tu)
					desc = append([]int{index}, desc...)
					return true
				}))
				assert.Len(t, asc, b-a)
				assert.Equal(t, asc, desc)
				if len(asc) > 0 {
					assert.Equal(t, a, asc[0])
				}
			}
		}
		err := r.EnumerateRange("G", EnumOptions{}, Range{2, 11}, func(tuple.Tuple, int) bool { return true })
		assert.ErrorIs(t, err, ordview_errors.ErrIndexOutOfRange)
		err = r.EnumerateRange("G", EnumOptions{}, Range{3, 2}, func(tuple.Tuple, int) bool { return true })
		assert.ErrorIs(t, err, ordview_errors.ErrIndexOutOfRange)

		var seen []int
		require.NoError(t, r.Enumerate("G", EnumOptions{Reverse: true}, func(_ tuple.Tuple, index int) bool {
			seen = append(seen, index)
			return len(seen) < 4
		}))
		assert.Equal(t, []int{9, 8, 7, 6}, seen)

		var keys []tuple.Tuple
		for i, tu := range r.Tuples("G", EnumOptions{}) {
			if i == 2 {
				break
			}
			keys = append(keys, tu)
		}
		assert.Equal(t, []tuple.Tuple{tk(1), tk(2)}, keys)
		require.NoError(t, r.Enumerate("empty", EnumOptions{}, func(tuple.Tuple, int) bool {
			t.Fatal("visited a tuple of an empty group")
			return false
		}))
	})
}

func TestGroupingAndSorting(t *testing.T) {
	s, v := testStore(t, "main", Options{
		Grouping: func(row Row) (string, bool) {
			if len(row.Value) == 0 {
				return "", false
			}
			return row.Tuple.Collection, true
		},
		Sorting: func(_ string, a, b Row) int {
			return bytes.Compare(a.Value, b.Value)
		},
	})
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(tx *ordview.Tx) error {
		require.NoError(t, tx.Set(tuple.New("fruit", "1"), []byte("banana")))
		require.NoError(t, tx.Set(tuple.New("fruit", "2"), []byte("apple")))
		require.NoError(t, tx.Set(tuple.New("fruit", "3"), []byte("cherry")))
		require.NoError(t, tx.Set(tuple.New("veg", "1"), []byte("leek")))
		return tx.Set(tuple.New("veg", "2"), nil)
	}))
	read(t, s, v, func(r *ReadTx) {
		assert.Equal(t, []tuple.Tuple{tuple.New("fruit", "2"), tuple.New("fruit", "1"), tuple.New("fruit", "3")},
			groupTuples(t, r, "fruit"))
		assert.Equal(t, []tuple.Tuple{tuple.New("veg", "1")}, groupTuples(t, r, "veg"))

		value, ok, err := r.ValueAt(2, "fruit")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("cherry"), value)

		var values []string
		require.NoError(t, r.EnumerateValues("fruit", EnumOptions{Reverse: true}, Range{0, 2},
			func(_ tuple.Tuple, _ int, value []byte) bool {
				values = append(values, string(value))
				return true
			}))
		assert.Equal(t, []string{"banana", "apple"}, values)
	})

	require.NoError(t, s.Update(ctx, func(tx *ordview.Tx) error {
		require.NoError(t, tx.Set(tuple.New("fruit", "2"), []byte("date")))
		return tx.Remove(tuple.New("fruit", "3"))
	}))
	read(t, s, v, func(r *ReadTx) {
		assert.Equal(t, []tuple.Tuple{tuple.New("fruit", "1"), tuple.New("fruit", "2")}, groupTuples(t, r, "fruit"))
		assert.NoError(t, r.Verify())
	})
}

func TestMetadata(t *testing.T) {
	s, v := testStore(t, "main", Options{
		Grouping: func(row Row) (string, bool) {
			if len(row.Metadata) == 0 {
				return "", false
			}
			return string(row.Metadata[:1]), true
		},
		Sorting: func(_ string, a, b Row) int {
			return bytes.Compare(a.Value, b.Value)
		},
	})
	ctx := context.Background()
	a, b, c, d := tuple.New("m", "a"), tuple.New("m", "b"), tuple.New("m", "c"), tuple.New("m", "d")
	require.NoError(t, s.Update(ctx, func(tx *ordview.Tx) error {
		require.NoError(t, tx.Set(a, []byte("3")))
		require.NoError(t, tx.SetMetadata(a, []byte("o1")))
		require.NoError(t, tx.Set(b, []byte("2")))
		require.NoError(t, tx.SetMetadata(b, []byte("e1")))
		require.NoError(t, tx.Set(c, []byte("1")))
		require.NoError(t, tx.SetMetadata(c, []byte("o2")))
		return tx.Set(d, []byte("0"))
	}))
	read(t, s, v, func(r *ReadTx) {
		groups, err := r.AllGroups()
		require.NoError(t, err)
		assert.Equal(t, []string{"e", "o"}, groups)
		assert.Equal(t, []tuple.Tuple{c, a}, groupTuples(t, r, "o"))
		_, ok, err := r.GroupFor(d)
		require.NoError(t, err)
		assert.False(t, ok)

		md, ok, err := r.MetadataAt(1, "o")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("o1"), md)
		_, _, err = r.MetadataAt(2, "o")
		assert.ErrorIs(t, err, ordview_errors.ErrIndexOutOfRange)

		var mds []string
		require.NoError(t, r.EnumerateMetadata("o", EnumOptions{}, Range{0, 2},
			func(_ tuple.Tuple, _ int, md []byte) bool {
				mds = append(mds, string(md))
				return true
			}))
		assert.Equal(t, []string{"o2", "o1"}, mds)

		var records []string
		require.NoError(t, r.EnumerateRecords("o", EnumOptions{Reverse: true}, Range{0, 2},
			func(tu tuple.Tuple, index int, value, md []byte) bool {
				records = append(records, fmt.Sprintf("%d %s %s %s", index, tu.Key, value, md))
				return true
			}))
		assert.Equal(t, []string{"1 a 3 o1", "0 c 1 o2"}, records)
	})

	// a metadata change alone moves the record
	require.NoError(t, s.Update(ctx, func(tx *ordview.Tx) error {
		require.NoError(t, tx.SetMetadata(a, []byte("e9")))
		return tx.SetMetadata(b, nil)
	}))
	read(t, s, v, func(r *ReadTx) {
		assert.Equal(t, []tuple.Tuple{a}, groupTuples(t, r, "e"))
		assert.Equal(t, []tuple.Tuple{c}, groupTuples(t, r, "o"))
		_, ok, err := r.GroupFor(b)
		require.NoError(t, err)
		assert.False(t, ok)

		var records []string
		require.NoError(t, r.EnumerateRecords("e", EnumOptions{}, Range{0, 1},
			func(tu tuple.Tuple, _ int, value, md []byte) bool {
				records = append(records, fmt.Sprintf("%s %s %s", tu.Key, value, md))
				return true
			}))
		assert.Equal(t, []string{"a 3 e9"}, records)
		assert.NoError(t, r.Verify())
	})
}

func TestPageCache(t *testing.T) {
	s, v := testStore(t, "cached", Options{PageSize: 2})
	fill(t, s, v, "G", 6)
	hits := testutil.ToFloat64(PageCache.WithLabelValues("cached", "hit"))
	read(t, s, v, func(r *ReadTx) {
		assert.Len(t, groupTuples(t, r, "G"), 6)
	})
	assert.Equal(t, hits+3, testutil.ToFloat64(PageCache.WithLabelValues("cached", "hit")))
}

func TestVerifyDetectsDamage(t *testing.T) {
	s, v := testStore(t, "main", Options{PageSize: 2})
	fill(t, s, v, "G", 4)

	fresh := New("main", Options{PageSize: 2})
	require.NoError(t, s.Update(context.Background(), func(tx *ordview.Tx) error {
		return tx.Batch().Delete(reverseKey("main", tk(2)), nil)
	}))
	read(t, s, fresh, func(r *ReadTx) {
		assert.ErrorIs(t, r.Verify(), ordview_errors.ErrCorrupted)
	})

	require.NoError(t, s.Update(context.Background(), func(tx *ordview.Tx) error {
		return tx.Batch().Set(pageRecordKey("main", 1), []byte("garbage"), nil)
	}))
	read(t, s, New("main", Options{}), func(r *ReadTx) {
		assert.ErrorIs(t, r.Verify(), ordview_errors.ErrBadRecord)
	})
}
