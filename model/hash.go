package model

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// canonicalBits returns a deterministic bit pattern for x: -0.0 maps to 0.0,
// every NaN maps to one quiet NaN, and integral values hash as their integer
// value so that 3.0 and 3 produce identical keys.
func canonicalBits(x float64) uint64 {
	if x == 0 {
		return 0
	}
	if math.IsNaN(x) {
		return math.Float64bits(math.NaN())
	}
	if x == math.Floor(x) && !math.IsInf(x, 0) {
		return uint64(int64(x))
	}
	return math.Float64bits(x)
}

// Hash returns a structural hash of the vector. Numbers hash by canonical
// bit pattern, strings by content, and other objects by identity.
func (v Vector) Hash() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, x := range v.nums {
		binary.LittleEndian.PutUint64(buf[:], canonicalBits(x))
		h.Write(buf[:])
	}
	for _, obj := range v.objs {
		switch o := obj.(type) {
		case float64:
			binary.LittleEndian.PutUint64(buf[:], canonicalBits(o))
			h.Write(buf[:])
		case string:
			h.Write([]byte{0xff})
			h.Write([]byte(o))
		default:
			binary.LittleEndian.PutUint64(buf[:], identity(obj))
			h.Write(buf[:])
		}
	}
	return h.Sum64()
}

func identity(obj Object) uint64 {
	rv := reflect.ValueOf(obj)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Func, reflect.Map, reflect.Chan, reflect.UnsafePointer:
		return uint64(rv.Pointer())
	}
	return 0
}

// Key returns the canonical string form of the vector used for state-map
// and interning lookups. Vectors with equal keys hash equal.
func (v Vector) Key() string {
	var b strings.Builder
	for _, x := range v.nums {
		b.WriteByte('n')
		b.WriteString(strconv.FormatUint(canonicalBits(x), 16))
		b.WriteByte(';')
	}
	for _, obj := range v.objs {
		switch o := obj.(type) {
		case float64:
			b.WriteByte('n')
			b.WriteString(strconv.FormatUint(canonicalBits(o), 16))
		case string:
			b.WriteByte('s')
			b.WriteString(strconv.Itoa(len(o)))
			b.WriteByte(':')
			b.WriteString(o)
		default:
			b.WriteByte('o')
			b.WriteString(strconv.FormatUint(identity(obj), 16))
		}
		b.WriteByte(';')
	}
	return b.String()
}
