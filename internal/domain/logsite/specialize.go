package logsite

import "reflect"

// Lifetime is implemented by qualifiers whose specialized keys must be
// discarded when the qualifier's lifetime ends (scope tokens).
//
// Stores holding state for a specialized key register a removal hook for
// every Lifetime qualifier found in the key.
type Lifetime interface {
	OnClose(hook func())
}

// Specializer derives a key from another, such as a scope or a bucketed
// aggregation key.
type Specializer interface {
	Specialize(key Key) Key
}

// specialized is a key derived from parent by a single qualifier.
// It is comparable as long as parent and qualifier are.
type specialized struct {
	parent    Key
	qualifier any
}

func (k specialized) String() string {
	return k.parent.String() + "[" + describe(k.qualifier) + "]"
}

// Specialize returns a new key derived from key and qualifier.
//
// Specialization is order sensitive: specializing by A then B yields a key
// different from specializing by B then A. A nil key, a nil qualifier or a
// qualifier that is not comparable leave key unchanged.
func Specialize(key Key, qualifier any) Key {
	if key == nil || qualifier == nil {
		return key
	}
	if !reflect.TypeOf(qualifier).Comparable() {
		return key
	}
	return specialized{parent: key, qualifier: qualifier}
}

// Lifetimes returns the qualifiers of key implementing Lifetime.
func Lifetimes(key Key) []Lifetime {
	var out []Lifetime
	for {
		sk, ok := key.(specialized)
		if !ok {
			return out
		}
		if lt, ok := sk.qualifier.(Lifetime); ok {
			out = append(out, lt)
		}
		key = sk.parent
	}
}
