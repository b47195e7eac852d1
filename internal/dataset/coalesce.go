package dataset

import (
	"iter"
	"time"
)

// Coalesce groups consecutive items of seq. An item joins the current group while
// joinable(last, next) holds for the group's last item; otherwise the group is
// emitted and a new one starts. Every item lands in exactly one non-empty group,
// and groups are emitted in input order. Each yielded slice is freshly allocated.
func Coalesce[T any](seq iter.Seq[T], joinable func(last, next T) bool) iter.Seq[[]T] {
	return func(yield func([]T) bool) {
		var current []T
		for item := range seq {
			if len(current) > 0 && !joinable(current[len(current)-1], item) {
				if !yield(current) {
					return
				}
				current = nil
			}
			current = append(current, item)
		}
		if len(current) > 0 {
			yield(current)
		}
	}
}

// within returns a predicate that holds while the delta between two items'
// timestamps is strictly below threshold.
func within[T any](at func(T) time.Time, threshold time.Duration) func(last, next T) bool {
	return func(last, next T) bool {
		return at(next).Sub(at(last)) < threshold
	}
}
