package permission

import "math/bits"

// Set is a 64-bit permission mask; bit i is granted when set.
type Set uint64

// Contains reports whether every bit of other is present in s.
func (s Set) Contains(other Set) bool {
	return s&other == other
}

// With returns s with p's bit set.
func (s Set) With(p Permission) Set {
	return s | p.Mask()
}

// Without returns s with p's bit cleared.
func (s Set) Without(p Permission) Set {
	return s &^ p.Mask()
}

// Count returns the number of granted bits.
func (s Set) Count() int {
	return bits.OnesCount64(uint64(s))
}

// Int64 converts s for storage in a signed BIGINT column.
func (s Set) Int64() int64 {
	return int64(s)
}

// FromInt64 converts a stored BIGINT back into a Set.
func FromInt64(v int64) Set {
	return Set(uint64(v))
}
