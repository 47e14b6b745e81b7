package host

import (
	"encoding/binary"

	"github.com/drpcorg/ordview/tuple"
)

// Key layout:
//
//	'D' + tuple key                      -> record metadata
//	'O' + tuple key                      -> record value
//	'V' + uvarint(len(view)) + view + .. -> view records, see ViewKey
const (
	MetadataPrefix = 'D'
	RecordPrefix   = 'O'
	ViewPrefix     = 'V'
)

func RecordKey(t tuple.Tuple) []byte {
	return t.AppendKey([]byte{RecordPrefix})
}

func MetadataKey(t tuple.Tuple) []byte {
	return t.AppendKey([]byte{MetadataPrefix})
}

func RecordKeyTuple(key []byte) (tuple.Tuple, error) {
	return tuple.ParseKey(key[1:])
}

// CollectionRange bounds the record keys of one collection.
func CollectionRange(collection string) (fro, til []byte) {
	fro = append([]byte{RecordPrefix}, tuple.CollectionPrefix(collection)...)
	return fro, PrefixEnd(fro)
}

// ViewKey builds the key of a view record of kind lit.
func ViewKey(view string, lit byte, suffix ...[]byte) []byte {
	key := []byte{ViewPrefix}
	key = binary.AppendUvarint(key, uint64(len(view)))
	key = append(key, view...)
	key = append(key, lit)
	for _, s := range suffix {
		key = append(key, s...)
	}
	return key
}

// ViewRange bounds the records of kind lit of one view.
func ViewRange(view string, lit byte) (fro, til []byte) {
	fro = ViewKey(view, lit)
	return fro, PrefixEnd(fro)
}

// PrefixEnd returns the smallest key greater than every key with the prefix.
func PrefixEnd(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] != 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
