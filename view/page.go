package view

import (
	"errors"
	"fmt"
	"slices"

	"github.com/cespare/xxhash"
	"github.com/drpcorg/ordview/ordview_errors"
	"github.com/drpcorg/ordview/protocol"
	"github.com/drpcorg/ordview/tuple"
)

// page is a contiguous run of one group's order. A page gets a fresh
// revision every time it is rewritten, so (id, rev) names immutable content.
type page struct {
	id     uint64
	rev    uint64
	group  string
	tuples []tuple.Tuple
}

type pageKey struct {
	id, rev uint64
}

func (p *page) key() pageKey {
	return pageKey{p.id, p.rev}
}

func (p *page) clone() *page {
	c := *p
	c.tuples = slices.Clone(p.tuples)
	return &c
}

func (p *page) indexOf(t tuple.Tuple) int {
	return slices.Index(p.tuples, t)
}

// encode lays out 'I' id, 'R' rev, 'G' group, one 'T' per tuple and an 'H'
// xxhash of everything before it.
func (p *page) encode() []byte {
	buf := protocol.AppendUint(nil, 'I', p.id)
	buf = protocol.AppendUint(buf, 'R', p.rev)
	buf = protocol.AppendString(buf, 'G', p.group)
	for _, t := range p.tuples {
		buf = t.AppendTLV(buf)
	}
	return protocol.Append(buf, 'H', protocol.ZipUint(xxhash.Sum64(buf)))
}

func badPage(err error) error {
	return errors.Join(ordview_errors.ErrBadRecord, fmt.Errorf("page: %w", err))
}

func decodePage(data []byte) (p *page, err error) {
	p = &page{}
	rest := data
	if p.id, rest, err = protocol.TakeUint('I', rest); err != nil {
		return nil, badPage(err)
	}
	if p.rev, rest, err = protocol.TakeUint('R', rest); err != nil {
		return nil, badPage(err)
	}
	if p.group, rest, err = protocol.TakeString('G', rest); err != nil {
		return nil, badPage(err)
	}
	for len(rest) > 0 {
		if protocol.Lit(rest) == 'H' {
			sum, tail, err := protocol.TakeUint('H', rest)
			if err != nil {
				return nil, badPage(err)
			}
			if len(tail) != 0 {
				return nil, badPage(errors.New("data after checksum"))
			}
			if sum != xxhash.Sum64(data[:len(data)-len(rest)]) {
				return nil, badPage(fmt.Errorf("checksum mismatch in page %d", p.id))
			}
			return p, nil
		}
		var t tuple.Tuple
		if t, rest, err = tuple.TakeTLV(rest); err != nil {
			return nil, badPage(err)
		}
		p.tuples = append(p.tuples, t)
	}
	return nil, badPage(errors.New("no checksum"))
}
