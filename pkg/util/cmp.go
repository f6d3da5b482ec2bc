package util

import (
	"cmp"
	"slices"
)

// EqualSlices compares a and b element by element. With ignoreOrder the
// slices only need to hold the same elements the same number of times.
func EqualSlices[T any](a, b []T, equal func(x, y T) bool, ignoreOrder bool) bool {
	if len(a) != len(b) {
		return false
	}

	if !ignoreOrder {
		for i := range a {
			if !equal(a[i], b[i]) {
				return false
			}
		}
		return true
	}

	used := make([]bool, len(b))
	for _, x := range a {
		found := false
		for j, y := range b {
			if !used[j] && equal(x, y) {
				used[j] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// SortedUnique returns the sorted distinct values of in, or nil if in is
// empty. in is not modified.
func SortedUnique[T cmp.Ordered](in []T) []T {
	if len(in) == 0 {
		return nil
	}
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}
