package bucketing

import (
	"fmt"
	"math"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Hasher is implemented by keys providing their own hash for ByHashCode.
type Hasher interface {
	HashCode() int64
}

// ByHashCode aggregates by the key's hash modulo maxBuckets. Identifiers are
// ints in [0, maxBuckets), never negative.
//
// Collisions conflate unrelated keys: maxBuckets trades memory per log site
// against conflation risk. Keep it below 256 so bucket identifiers box into
// interfaces without allocating.
func ByHashCode(maxBuckets int) (Strategy, error) {
	if maxBuckets <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBuckets, maxBuckets)
	}
	m := int64(maxBuckets)
	name := "ByHashCode(" + strconv.Itoa(maxBuckets) + ")"
	return Func(name, func(key any) (any, bool) {
		r := HashCode(key) % m
		if r < 0 {
			r += m
		}
		return int(r), true
	}), nil
}

// HashCode returns a stable 64-bit hash for key.
//
// Integers hash to their own value, strings, byte slices and fmt.Stringer
// values use xxhash, and anything else is hashed through its Go-syntax
// representation.
func HashCode(key any) int64 {
	switch k := key.(type) {
	case Hasher:
		return k.HashCode()
	case int:
		return int64(k)
	case int8:
		return int64(k)
	case int16:
		return int64(k)
	case int32:
		return int64(k)
	case int64:
		return k
	case uint:
		return int64(k)
	case uint8:
		return int64(k)
	case uint16:
		return int64(k)
	case uint32:
		return int64(k)
	case uint64:
		return int64(k)
	case bool:
		if k {
			return 1
		}
		return 0
	case float32:
		return int64(math.Float32bits(k))
	case float64:
		return int64(math.Float64bits(k))
	case string:
		return int64(xxhash.Sum64String(k))
	case []byte:
		return int64(xxhash.Sum64(k))
	case fmt.Stringer:
		return int64(xxhash.Sum64String(k.String()))
	default:
		return int64(xxhash.Sum64String(fmt.Sprintf("%#v", k)))
	}
}
