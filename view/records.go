package view

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/drpcorg/ordview/host"
	"github.com/drpcorg/ordview/ordview_errors"
	"github.com/drpcorg/ordview/protocol"
	"github.com/drpcorg/ordview/tuple"
)

// View record kinds, see host.ViewKey.
const (
	metaLit    = 'M'
	chainLit   = 'G'
	pageLit    = 'P'
	reverseLit = 'R'
)

func metaKey(view string) []byte {
	return host.ViewKey(view, metaLit)
}

func chainKey(view, group string) []byte {
	return host.ViewKey(view, chainLit, []byte(group))
}

func pageRecordKey(view string, id uint64) []byte {
	return host.ViewKey(view, pageLit, binary.BigEndian.AppendUint64(nil, id))
}

func reverseKey(view string, t tuple.Tuple) []byte {
	return host.ViewKey(view, reverseLit, t.AppendKey(nil))
}

type meta struct {
	pageSize int
	nextPage uint64
	nextRev  uint64
}

func defaultMeta(pageSize int) meta {
	return meta{pageSize: pageSize, nextPage: 1, nextRev: 1}
}

func (m meta) encode() []byte {
	buf := protocol.AppendUint(nil, 'S', uint64(m.pageSize))
	buf = protocol.AppendUint(buf, 'N', m.nextPage)
	return protocol.AppendUint(buf, 'R', m.nextRev)
}

func decodeMeta(data []byte) (m meta, err error) {
	var size uint64
	rest := data
	if size, rest, err = protocol.TakeUint('S', rest); err == nil {
		if m.nextPage, rest, err = protocol.TakeUint('N', rest); err == nil {
			m.nextRev, _, err = protocol.TakeUint('R', rest)
		}
	}
	if err == nil && size == 0 {
		err = ordview_errors.ErrBadPageSize
	}
	if err != nil {
		return m, errors.Join(ordview_errors.ErrBadRecord, fmt.Errorf("meta: %w", err))
	}
	m.pageSize = int(size)
	return m, nil
}

// revEntry places a tuple. Only group and page are persisted, the offset is
// looked up in the page on load and then maintained in memory.
type revEntry struct {
	group  string
	page   uint64
	offset int
}

func (e revEntry) encode() []byte {
	buf := protocol.AppendString(nil, 'G', e.group)
	return protocol.AppendUint(buf, 'P', e.page)
}

func decodeRevEntry(data []byte) (e revEntry, err error) {
	var rest []byte
	if e.group, rest, err = protocol.TakeString('G', data); err == nil {
		e.page, _, err = protocol.TakeUint('P', rest)
	}
	if err != nil {
		err = errors.Join(ordview_errors.ErrBadRecord, fmt.Errorf("reverse entry: %w", err))
	}
	e.offset = -1
	return
}
