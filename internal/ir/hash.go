package ir

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Kind tags for the hash encoding. Distinct tags keep Int(1) and Bool(true)
// from colliding.
const (
	tagNull byte = iota
	tagString
	tagInt
	tagBool
	tagUUID
)

// HashTuple hashes values under a domain. Keys use the hierarchy root name
// as domain so equal values in unrelated hierarchies hash apart.
// Format: xxhash64(domain + 0x00 + enc(v0) + enc(v1) ...)
func HashTuple(domain string, values Tuple) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(domain)
	_, _ = d.Write([]byte{0x00})
	var buf [24]byte
	for _, v := range values {
		_, _ = d.Write(appendValue(buf[:0], v))
	}
	return d.Sum64()
}

// HashValue hashes a single value with no domain.
func HashValue(v Value) uint64 {
	var buf [24]byte
	return xxhash.Sum64(appendValue(buf[:0], v))
}

// appendValue appends the tagged binary encoding of v. Strings carry a
// length prefix so ("ab", "c") and ("a", "bc") encode differently.
func appendValue(buf []byte, v Value) []byte {
	switch val := v.(type) {
	case String:
		buf = append(buf, tagString)
		buf = binary.AppendUvarint(buf, uint64(len(val)))
		return append(buf, val...)
	case Int:
		buf = append(buf, tagInt)
		return binary.BigEndian.AppendUint64(buf, uint64(val))
	case Bool:
		if val {
			return append(buf, tagBool, 1)
		}
		return append(buf, tagBool, 0)
	case UUID:
		buf = append(buf, tagUUID)
		return append(buf, val[:]...)
	default:
		return append(buf, tagNull)
	}
}
