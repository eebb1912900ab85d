// Package bucketing maps unbounded aggregation keys onto bounded sets of
// bucket identifiers.
//
// Per-key aggregation specializes a log site key by a bucket identifier, so
// every distinct identifier returned by a strategy becomes persistent state
// at every log site using it. Strategies therefore must return values from a
// small, bounded set, ideally with singleton semantics (small ints, types,
// interned strings).
package bucketing

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/Sentinel-Gate/ratelog/internal/domain/logsite"
)

// Configuration errors returned by strategy constructors.
var (
	ErrInvalidBuckets = errors.New("bucketing: maxBuckets must be positive")
	ErrNoKnownKeys    = errors.New("bucketing: known keys must not be empty")
	ErrInvalidKey     = errors.New("bucketing: known keys must be non-nil and comparable")
)

// Strategy maps an aggregation key to a bucket identifier.
//
// Apply returns false when the key should not be aggregated; the caller then
// ignores the aggregation request for that statement. Apply never panics for
// well-formed input and a nil key is always absent.
type Strategy interface {
	Apply(key any) (any, bool)
	String() string
}

type funcStrategy struct {
	name string
	fn   func(key any) (any, bool)
}

func (s *funcStrategy) Apply(key any) (any, bool) {
	if key == nil {
		return nil, false
	}
	id, ok := s.fn(key)
	if !ok || id == nil || !reflect.TypeOf(id).Comparable() {
		return nil, false
	}
	return id, true
}

func (s *funcStrategy) String() string { return "Strategy[" + s.name + "]" }

// Func builds a strategy from fn. Identifiers returned by fn that are nil or
// not comparable are treated as absent.
func Func(name string, fn func(key any) (any, bool)) Strategy {
	return &funcStrategy{name: name, fn: fn}
}

var (
	knownBounded = Func("KnownBounded", func(key any) (any, bool) {
		return key, true
	})

	byClass = Func("ByClass", func(key any) (any, bool) {
		return reflect.TypeOf(key), true
	})

	byClassName = Func("ByClassName", func(key any) (any, bool) {
		return typeName(reflect.TypeOf(key)), true
	})
)

// KnownBounded uses keys as-is. Only use it when keys come from a strictly
// bounded set with singleton semantics (enum-like constants); the caller is
// responsible for that, nothing is validated.
func KnownBounded() Strategy { return knownBounded }

// ByClass aggregates by the dynamic type of the key. The number of buckets
// is bounded by the number of distinct types passed.
func ByClass() Strategy { return byClass }

// ByClassName aggregates by the package-qualified type name of the key.
// Unlike ByClass it holds no reflect.Type, but distinct unnamed types with
// the same spelling are conflated.
func ByClassName() Strategy { return byClassName }

func typeName(t reflect.Type) string {
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

// ForKnownKeys aggregates by membership in a fixed set of keys. Each known
// key maps to the index of its first occurrence; duplicates collapse and
// unknown keys are absent.
func ForKnownKeys(keys ...any) (Strategy, error) {
	index := make(map[any]int, len(keys))
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == nil || !reflect.TypeOf(k).Comparable() {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, k)
		}
		if _, dup := index[k]; dup {
			continue
		}
		index[k] = len(names)
		names = append(names, fmt.Sprint(k))
	}
	if len(index) == 0 {
		return nil, ErrNoKnownKeys
	}
	name := "ForKnownKeys(" + strings.Join(names, ", ") + ")"
	return Func(name, func(key any) (any, bool) {
		if !reflect.TypeOf(key).Comparable() {
			return nil, false
		}
		i, ok := index[key]
		return i, ok
	}), nil
}

// Aggregation pairs an aggregation key with the strategy bounding it.
type Aggregation struct {
	Key      any
	Strategy Strategy
}

// Per returns an aggregation of key under strategy.
func Per(key any, strategy Strategy) Aggregation {
	return Aggregation{Key: key, Strategy: strategy}
}

// Specialize implements logsite.Specializer. The key is specialized by the
// bucket identifier; a nil strategy or an absent bucket leaves it unchanged.
func (a Aggregation) Specialize(key logsite.Key) logsite.Key {
	if a.Strategy == nil {
		return key
	}
	id, ok := a.Strategy.Apply(a.Key)
	if !ok {
		return key
	}
	return logsite.Specialize(key, id)
}

func (a Aggregation) String() string {
	if a.Strategy == nil {
		return fmt.Sprintf("per(%v)", a.Key)
	}
	return fmt.Sprintf("per(%v, %s)", a.Key, a.Strategy)
}

// Compile-time interface verification.
var _ logsite.Specializer = Aggregation{}
