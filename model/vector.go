// Package model provides the runtime value types shared by every stage of
// the Flitter engine: the universal Vector value, scene-graph Node and Query,
// the persistent StateDict, and the per-run Context.
//
// A Vector is either a densely-packed array of float64s or a list of
// heterogeneous objects (strings, nodes, callables, sub-programs). Code that
// receives a Vector will usually branch on IsNumeric:
//
//	if v.IsNumeric() {
//	    // work with v.Numbers()
//	} else {
//	    // work with v.Objects()
//	}
package model

import (
	"math"
	"reflect"
	"strconv"
	"strings"
	"sync"
)

// Object is any non-numeric element a Vector can hold: a string, a *Node,
// a *Builtin / *ContextBuiltin, a host callable, a compiled sub-program,
// or a boxed float64.
type Object = any

// Vector is the universal runtime value. The zero value is the null vector.
//
// A Vector holds either numbers or objects, never both. Vectors are treated
// as immutable by the engine with the exception of the Nodes they may
// contain, which are mutable tree elements.
type Vector struct {
	nums []float64
	objs []Object
}

// Canonical singleton vectors.
var (
	Null     = Vector{}
	True     = Vector{nums: []float64{1}}
	False    = Vector{nums: []float64{0}}
	MinusOne = Vector{nums: []float64{-1}}
)

// NewFloat returns a numeric vector of length 1.
func NewFloat(x float64) Vector {
	return Vector{nums: []float64{x}}
}

// NewInt returns a numeric vector of length 1.
func NewInt(n int) Vector {
	return Vector{nums: []float64{float64(n)}}
}

// NewBool returns True or False.
func NewBool(b bool) Vector {
	if b {
		return True
	}
	return False
}

// NewString returns an object vector containing the single string s.
// The empty string yields a length-1 vector, not null.
func NewString(s string) Vector {
	return Vector{objs: []Object{s}}
}

// NewFloats returns a numeric vector wrapping xs. The slice is not copied.
func NewFloats(xs []float64) Vector {
	if len(xs) == 0 {
		return Null
	}
	return Vector{nums: xs}
}

// NewObjects builds a vector from arbitrary objects, packing back down to
// the numeric representation when every element is a number. Nil elements
// are dropped.
func NewObjects(items []Object) Vector {
	numeric := true
	n := 0
	for _, item := range items {
		if item == nil {
			continue
		}
		n++
		switch item.(type) {
		case float64, int:
		default:
			numeric = false
		}
	}
	if n == 0 {
		return Null
	}
	if numeric {
		nums := make([]float64, 0, n)
		for _, item := range items {
			switch x := item.(type) {
			case float64:
				nums = append(nums, x)
			case int:
				nums = append(nums, float64(x))
			}
		}
		return Vector{nums: nums}
	}
	objs := make([]Object, 0, n)
	for _, item := range items {
		if item != nil {
			objs = append(objs, item)
		}
	}
	return Vector{objs: objs}
}

// NewNodeVector returns an object vector holding the given nodes.
func NewNodeVector(nodes ...*Node) Vector {
	if len(nodes) == 0 {
		return Null
	}
	objs := make([]Object, len(nodes))
	for i, node := range nodes {
		objs[i] = node
	}
	return Vector{objs: objs}
}

// Symbol returns the interned single-string vector used for state keys and
// enum-style attribute values.
func Symbol(name string) Vector {
	return NewString(name).Intern()
}

// Len returns the number of elements.
func (v Vector) Len() int {
	if v.objs != nil {
		return len(v.objs)
	}
	return len(v.nums)
}

// IsNull reports whether the vector is empty.
func (v Vector) IsNull() bool {
	return len(v.nums) == 0 && len(v.objs) == 0
}

// IsNumeric reports whether the vector uses the packed numeric
// representation. The null vector is considered numeric.
func (v Vector) IsNumeric() bool {
	return v.objs == nil
}

// Numbers returns the packed numeric storage, nil for object vectors.
// Callers must not mutate the returned slice.
func (v Vector) Numbers() []float64 {
	return v.nums
}

// Objects returns the object storage, nil for numeric vectors.
// Callers must not mutate the returned slice.
func (v Vector) Objects() []Object {
	return v.objs
}

// Truthy reports whether the vector is true in a boolean context: non-empty
// with at least one non-zero number, non-empty string, or live object.
func (v Vector) Truthy() bool {
	for _, x := range v.nums {
		if x != 0 {
			return true
		}
	}
	for _, obj := range v.objs {
		switch o := obj.(type) {
		case string:
			if o != "" {
				return true
			}
		case float64:
			if o != 0 {
				return true
			}
		case *Node:
			if o != nil {
				return true
			}
		default:
			if obj != nil {
				return true
			}
		}
	}
	return false
}

// AsBool returns True or False according to Truthy.
func (v Vector) AsBool() Vector {
	return NewBool(v.Truthy())
}

// AsFloat returns the single number held by a length-1 numeric vector.
func (v Vector) AsFloat() (float64, bool) {
	if len(v.nums) == 1 && v.objs == nil {
		return v.nums[0], true
	}
	if len(v.objs) == 1 {
		if x, ok := v.objs[0].(float64); ok {
			return x, true
		}
	}
	return 0, false
}

// AsString flattens the vector into a string: string elements are joined
// verbatim and numbers are formatted minimally.
func (v Vector) AsString() string {
	var b strings.Builder
	for _, x := range v.nums {
		b.WriteString(formatFloat(x))
	}
	for _, obj := range v.objs {
		switch o := obj.(type) {
		case string:
			b.WriteString(o)
		case float64:
			b.WriteString(formatFloat(o))
		case *Node:
			b.WriteString("!" + o.Kind())
		}
	}
	return b.String()
}

func formatFloat(x float64) string {
	if x == math.Floor(x) && !math.IsInf(x, 0) && math.Abs(x) < 1e15 {
		return strconv.FormatInt(int64(x), 10)
	}
	return strconv.FormatFloat(x, 'g', -1, 64)
}

// Item returns the i'th element as a length-1 vector, wrapping the index
// modulo the vector length. The null vector yields null.
func (v Vector) Item(i int) Vector {
	n := v.Len()
	if n == 0 {
		return Null
	}
	i = ((i % n) + n) % n
	if v.objs != nil {
		return Vector{objs: []Object{v.objs[i]}}
	}
	return Vector{nums: []float64{v.nums[i]}}
}

// Slice indexes the vector by each (floored) element of index, wrapping
// modulo the vector length. The result has the index's length and keeps the
// numeric representation iff v is numeric. A null v or non-numeric index
// yields null.
func (v Vector) Slice(index Vector) Vector {
	if !index.IsNumeric() || index.IsNull() || v.IsNull() {
		return Null
	}
	n := v.Len()
	if v.objs != nil {
		objs := make([]Object, len(index.nums))
		for k, x := range index.nums {
			i := wrapIndex(x, n)
			objs[k] = v.objs[i]
		}
		return Vector{objs: objs}
	}
	nums := make([]float64, len(index.nums))
	for k, x := range index.nums {
		i := wrapIndex(x, n)
		nums[k] = v.nums[i]
	}
	return Vector{nums: nums}
}

func wrapIndex(x float64, n int) int {
	i := int(math.Floor(x)) % n
	if i < 0 {
		i += n
	}
	return i
}

// Compose concatenates vectors, preserving the packed numeric representation
// when every input is numeric. Composing zero or only-null vectors yields
// null.
func Compose(vs []Vector) Vector {
	total := 0
	numeric := true
	for _, v := range vs {
		total += v.Len()
		if !v.IsNumeric() {
			numeric = false
		}
	}
	if total == 0 {
		return Null
	}
	if numeric {
		nums := make([]float64, 0, total)
		for _, v := range vs {
			nums = append(nums, v.nums...)
		}
		return Vector{nums: nums}
	}
	objs := make([]Object, 0, total)
	for _, v := range vs {
		if v.objs != nil {
			objs = append(objs, v.objs...)
		} else {
			for _, x := range v.nums {
				objs = append(objs, x)
			}
		}
	}
	return Vector{objs: objs}
}

// Range returns the numeric vector [start, start+step, ...) stopping before
// stop, honouring the sign of step. A zero step yields null; a null start
// defaults to 0 and a null step to 1.
func Range(start, stop, step Vector) Vector {
	begin := 0.0
	if x, ok := start.AsFloat(); ok {
		begin = x
	} else if !start.IsNull() {
		return Null
	}
	end, ok := stop.AsFloat()
	if !ok {
		return Null
	}
	delta := 1.0
	if x, ok := step.AsFloat(); ok {
		delta = x
	} else if !step.IsNull() {
		return Null
	}
	if delta == 0 {
		return Null
	}
	n := int(math.Ceil((end - begin) / delta))
	if n <= 0 {
		return Null
	}
	nums := make([]float64, n)
	for i := 0; i < n; i++ {
		nums[i] = begin + float64(i)*delta
	}
	return Vector{nums: nums}
}

// Equal reports element-wise equality, coercing boxed numbers in object
// vectors so that a numeric vector and an object vector with the same
// numbers compare equal.
func (v Vector) Equal(other Vector) bool {
	n := v.Len()
	if n != other.Len() {
		return false
	}
	for i := 0; i < n; i++ {
		if !elementsEqual(v.element(i), other.element(i)) {
			return false
		}
	}
	return true
}

func (v Vector) element(i int) Object {
	if v.objs != nil {
		return v.objs[i]
	}
	return v.nums[i]
}

func elementsEqual(a, b Object) bool {
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		return ok && (x == y || (math.IsNaN(x) && math.IsNaN(y)))
	case string:
		y, ok := b.(string)
		return ok && x == y
	default:
		return a == b
	}
}

// Compare orders two vectors lexicographically, returning -1, 0 or 1.
// The second result is false when the vectors are not comparable (mixed
// numeric/object representations or non-ordered elements); all ordering
// comparisons on such pairs are false.
func (v Vector) Compare(other Vector) (int, bool) {
	if v.IsNumeric() != other.IsNumeric() {
		return 0, false
	}
	n, m := v.Len(), other.Len()
	limit := n
	if m < limit {
		limit = m
	}
	for i := 0; i < limit; i++ {
		if v.objs != nil {
			x, xok := v.objs[i].(string)
			y, yok := other.objs[i].(string)
			if !xok || !yok {
				return 0, false
			}
			if x != y {
				if x < y {
					return -1, true
				}
				return 1, true
			}
		} else {
			x, y := v.nums[i], other.nums[i]
			if x != y {
				if x < y {
					return -1, true
				}
				return 1, true
			}
		}
	}
	switch {
	case n < m:
		return -1, true
	case n > m:
		return 1, true
	}
	return 0, true
}

// CopyNodes returns a vector in which every node that is already attached to
// a parent has been replaced by a deep copy. Vectors without attached nodes
// are returned unchanged.
func (v Vector) CopyNodes() Vector {
	if v.objs == nil {
		return v
	}
	copied := false
	for _, obj := range v.objs {
		if node, ok := obj.(*Node); ok && node.parent != nil {
			copied = true
			break
		}
	}
	if !copied {
		return v
	}
	objs := make([]Object, len(v.objs))
	for i, obj := range v.objs {
		if node, ok := obj.(*Node); ok && node.parent != nil {
			objs[i] = node.Copy()
		} else {
			objs[i] = obj
		}
	}
	return Vector{objs: objs}
}

// CopyAllNodes returns a vector in which every node, attached or not, has
// been replaced by a deep copy. Used when pushing node-bearing literals so
// that a program can be run repeatedly without sharing graph state.
func (v Vector) CopyAllNodes() Vector {
	if v.objs == nil {
		return v
	}
	hasNode := false
	for _, obj := range v.objs {
		if _, ok := obj.(*Node); ok {
			hasNode = true
			break
		}
	}
	if !hasNode {
		return v
	}
	objs := make([]Object, len(v.objs))
	for i, obj := range v.objs {
		if node, ok := obj.(*Node); ok {
			objs[i] = node.Copy()
		} else {
			objs[i] = obj
		}
	}
	return Vector{objs: objs}
}

// ContainsNode reports whether any element is a *Node.
func (v Vector) ContainsNode() bool {
	for _, obj := range v.objs {
		if _, ok := obj.(*Node); ok {
			return true
		}
	}
	return false
}

// Repr returns a debugging representation resembling source syntax.
func (v Vector) Repr() string {
	if v.IsNull() {
		return "null"
	}
	parts := make([]string, 0, v.Len())
	for _, x := range v.nums {
		parts = append(parts, formatFloat(x))
	}
	for _, obj := range v.objs {
		switch o := obj.(type) {
		case string:
			parts = append(parts, strconv.Quote(o))
		case float64:
			parts = append(parts, formatFloat(o))
		case *Node:
			parts = append(parts, "!"+o.Kind())
		case interface{ String() string }:
			parts = append(parts, o.String())
		default:
			parts = append(parts, reflect.TypeOf(obj).String())
		}
	}
	return strings.Join(parts, ";")
}

func (v Vector) String() string {
	return v.Repr()
}

// internable reports whether the vector may safely share a canonical
// instance: only numbers and strings, never mutable nodes or callables.
func (v Vector) internable() bool {
	for _, obj := range v.objs {
		switch obj.(type) {
		case string, float64:
		default:
			return false
		}
	}
	return true
}

const maxInternLen = 16

var internTable = struct {
	sync.RWMutex
	vectors map[string]Vector
}{vectors: make(map[string]Vector)}

// Intern returns a canonical instance for short literal vectors of numbers
// and strings. Vectors containing mutable objects are returned unchanged.
func (v Vector) Intern() Vector {
	if v.IsNull() || v.Len() > maxInternLen || !v.internable() {
		return v
	}
	key := v.Key()
	internTable.RLock()
	canon, ok := internTable.vectors[key]
	internTable.RUnlock()
	if ok {
		return canon
	}
	internTable.Lock()
	defer internTable.Unlock()
	if canon, ok := internTable.vectors[key]; ok {
		return canon
	}
	internTable.vectors[key] = v
	return v
}
