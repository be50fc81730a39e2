package attestation

import (
	"encoding/binary"
	"fmt"
)

const wordSize = 32

// Encode packs the payload values for a schema into ABI-style dynamic-string
// layout: one offset word per field, then for each field a length word
// followed by the UTF-8 bytes padded to a 32-byte boundary.
func (s Schema) Encode(values map[string]string) ([]byte, error) {
	n := len(s.Fields)
	head := make([]byte, 0, n*wordSize)
	tail := make([]byte, 0)

	for _, field := range s.Fields {
		v, ok := values[field]
		if !ok {
			return nil, fmt.Errorf("missing value for field %q", field)
		}
		offset := n*wordSize + len(tail)
		head = append(head, word(uint64(offset))...)
		tail = append(tail, word(uint64(len(v)))...)
		tail = append(tail, pad([]byte(v))...)
	}
	return append(head, tail...), nil
}

// Decode unpacks an encoded payload back into field name → value. It is the
// exact inverse of Encode and rejects payloads whose offsets or lengths fall
// outside the buffer.
func (s Schema) Decode(data []byte) (map[string]string, error) {
	n := len(s.Fields)
	if len(data) < n*wordSize {
		return nil, fmt.Errorf("payload too short: %d bytes for %d fields", len(data), n)
	}

	// Bounds checks stay in uint64; converting an attacker-controlled word to
	// int first would wrap negative and slip past the comparisons.
	size := uint64(len(data))
	values := make(map[string]string, n)
	for i, field := range s.Fields {
		offset, err := readWord(data, i*wordSize)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		if offset > size-wordSize {
			return nil, fmt.Errorf("field %q: offset %d out of range", field, offset)
		}
		length, err := readWord(data, int(offset))
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		start := offset + wordSize
		if length > size-start {
			return nil, fmt.Errorf("field %q: value of %d bytes overruns payload", field, length)
		}
		values[field] = string(data[start : start+length])
	}
	return values, nil
}

func word(v uint64) []byte {
	w := make([]byte, wordSize)
	binary.BigEndian.PutUint64(w[wordSize-8:], v)
	return w
}

func readWord(data []byte, at int) (uint64, error) {
	if at < 0 || at > len(data)-wordSize {
		return 0, fmt.Errorf("offset %d out of range", at)
	}
	for _, b := range data[at : at+wordSize-8] {
		if b != 0 {
			return 0, fmt.Errorf("word at %d exceeds uint64 range", at)
		}
	}
	return binary.BigEndian.Uint64(data[at+wordSize-8 : at+wordSize]), nil
}

func pad(b []byte) []byte {
	if rem := len(b) % wordSize; rem != 0 {
		b = append(b, make([]byte, wordSize-rem)...)
	}
	return b
}
