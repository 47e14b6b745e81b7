// Package tuple defines the (collection, key) identifier of a host record.
package tuple

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/drpcorg/ordview/ordview_errors"
	"github.com/drpcorg/ordview/protocol"
)

// Tuple identifies one record of the host store. Tuples are plain values,
// usable as map keys.
type Tuple struct {
	Collection string
	Key        string
}

func New(collection, key string) Tuple {
	return Tuple{Collection: collection, Key: key}
}

func (t Tuple) String() string {
	return t.Collection + "/" + t.Key
}

func Compare(a, b Tuple) int {
	if c := strings.Compare(a.Collection, b.Collection); c != 0 {
		return c
	}
	return strings.Compare(a.Key, b.Key)
}

// AppendKey appends the storage key form: uvarint(len(collection)),
// collection, key. Keys of one collection are contiguous and ordered by key.
func (t Tuple) AppendKey(into []byte) []byte {
	into = binary.AppendUvarint(into, uint64(len(t.Collection)))
	into = append(into, t.Collection...)
	return append(into, t.Key...)
}

// CollectionPrefix is the common key prefix of every tuple in collection.
func CollectionPrefix(collection string) []byte {
	return Tuple{Collection: collection}.AppendKey(nil)
}

// ParseKey reverses AppendKey.
func ParseKey(key []byte) (t Tuple, err error) {
	l, n := binary.Uvarint(key)
	if n <= 0 || uint64(len(key)-n) < l {
		return t, errors.Join(ordview_errors.ErrBadTuple, fmt.Errorf("key %q", key))
	}
	t.Collection = string(key[n : n+int(l)])
	t.Key = string(key[n+int(l):])
	return t, nil
}

// Parse reads "collection/key"; the first slash separates the parts.
func Parse(s string) (t Tuple, err error) {
	c, k, ok := strings.Cut(s, "/")
	if !ok {
		return t, errors.Join(ordview_errors.ErrBadTuple, fmt.Errorf("no collection in %q", s))
	}
	return New(c, k), nil
}

// AppendTLV appends the tuple as a 'T' record holding 'C' and 'K' records.
func (t Tuple) AppendTLV(into []byte) []byte {
	body := protocol.AppendString(nil, 'C', t.Collection)
	body = protocol.AppendString(body, 'K', t.Key)
	return protocol.Append(into, 't', body)
}

// TakeTLV reads one tuple written by AppendTLV.
func TakeTLV(data []byte) (t Tuple, rest []byte, err error) {
	var body []byte
	body, rest, err = protocol.TakeWary('T', data)
	if err != nil {
		return
	}
	t.Collection, body, err = protocol.TakeString('C', body)
	if err != nil {
		return
	}
	t.Key, body, err = protocol.TakeString('K', body)
	if err == nil && len(body) != 0 {
		err = protocol.ErrBadRecord
	}
	return
}
