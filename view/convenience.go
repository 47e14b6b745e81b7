package view

import "github.com/drpcorg/ordview/tuple"

// ValueVisitor gets every enumerated tuple with its index and record value,
// nil for tuples with no record; false stops the walk. EnumerateMetadata
// passes the record metadata as value.
type ValueVisitor func(t tuple.Tuple, index int, value []byte) bool

// RecordVisitor gets both the value and the metadata of every record.
type RecordVisitor func(t tuple.Tuple, index int, value, metadata []byte) bool

// ValueAt returns the record of the tuple at index of the group.
func (q *queries) ValueAt(index int, group string) ([]byte, bool, error) {
	t, err := q.TupleAt(index, group)
	if err != nil {
		return nil, false, err
	}
	return q.tx.Get(t)
}

// MetadataAt returns the metadata of the record at index of the group.
func (q *queries) MetadataAt(index int, group string) ([]byte, bool, error) {
	t, err := q.TupleAt(index, group)
	if err != nil {
		return nil, false, err
	}
	return q.tx.GetMetadata(t)
}

// EnumerateValues walks a range of the group along with the records.
func (q *queries) EnumerateValues(group string, opts EnumOptions, r Range, fn ValueVisitor) error {
	return q.enumerateWith(group, opts, r, q.tx.Get, fn)
}

func (q *queries) EnumerateMetadata(group string, opts EnumOptions, r Range, fn ValueVisitor) error {
	return q.enumerateWith(group, opts, r, q.tx.GetMetadata, fn)
}

// EnumerateRecords walks a range of the group with values and metadata.
func (q *queries) EnumerateRecords(group string, opts EnumOptions, r Range, fn RecordVisitor) error {
	var ferr error
	err := q.EnumerateRange(group, opts, r, func(t tuple.Tuple, index int) bool {
		row, err := recordRow(q.tx, t)
		if err != nil {
			ferr = err
			return false
		}
		return fn(t, index, row.Value, row.Metadata)
	})
	if err != nil {
		return err
	}
	return ferr
}

func (q *queries) enumerateWith(group string, opts EnumOptions, r Range,
	get func(tuple.Tuple) ([]byte, bool, error), fn ValueVisitor) error {
	var ferr error
	err := q.EnumerateRange(group, opts, r, func(t tuple.Tuple, index int) bool {
		value, _, err := get(t)
		if err != nil {
			ferr = err
			return false
		}
		return fn(t, index, value)
	})
	if err != nil {
		return err
	}
	return ferr
}
