package protocol

import "encoding/binary"

// ZipUint encodes v little-endian with trailing zero bytes dropped, 0 is empty.
func ZipUint(v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	n := 8
	for n > 0 && buf[n-1] == 0 {
		n--
	}
	return buf[:n]
}

// UnzipUint reverses ZipUint. Bodies longer than 8 bytes are rejected.
func UnzipUint(body []byte) (v uint64, err error) {
	if len(body) > 8 {
		return 0, ErrBadRecord
	}
	var buf [8]byte
	copy(buf[:], body)
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// AppendUint appends a lowercase (tiny-capable) record holding a zipped uint.
func AppendUint(into []byte, lit byte, v uint64) []byte {
	return Append(into, lit|CaseBit, ZipUint(v))
}

// TakeUint reads a record written by AppendUint.
func TakeUint(lit byte, data []byte) (v uint64, rest []byte, err error) {
	var body []byte
	body, rest, err = TakeWary(lit, data)
	if err != nil {
		return
	}
	v, err = UnzipUint(body)
	return
}

// AppendString appends a record holding the raw bytes of s.
func AppendString(into []byte, lit byte, s string) []byte {
	return Append(into, lit|CaseBit, []byte(s))
}

// TakeString reads a record written by AppendString.
func TakeString(lit byte, data []byte) (s string, rest []byte, err error) {
	var body []byte
	body, rest, err = TakeWary(lit, data)
	if err != nil {
		return
	}
	return string(body), rest, nil
}
