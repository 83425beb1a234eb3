package score

import "slices"

// Sortable is an event with a natural time-then-tiebreak order.
type Sortable[E any] interface {
	comparable
	Compare(E) int
}

// Seq is an ordered, growable container of one event type. Appends never
// reorder; call Sort or SortInPlace to restore time order. Negative indices
// count from the end. A Seq is not safe for concurrent mutation.
type Seq[E Sortable[E]] []E

// Len returns the number of events.
func (s Seq[E]) Len() int { return len(s) }

func (s Seq[E]) index(i int) (int, error) {
	n := len(s)
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return 0, indexError(i, n)
	}
	return i, nil
}

// bounds clamps a half-open [start, stop) range the way slice expressions
// with negative indices are usually resolved.
func (s Seq[E]) bounds(start, stop int) (int, int) {
	n := len(s)
	clamp := func(i int) int {
		if i < 0 {
			i += n
		}
		return max(0, min(i, n))
	}
	start, stop = clamp(start), clamp(stop)
	if stop < start {
		stop = start
	}
	return start, stop
}

func (s Seq[E]) Get(i int) (E, error) {
	i, err := s.index(i)
	if err != nil {
		var zero E
		return zero, err
	}
	return s[i], nil
}

func (s Seq[E]) Set(i int, e E) error {
	i, err := s.index(i)
	if err != nil {
		return err
	}
	s[i] = e
	return nil
}

// GetSlice returns an owned copy of [start, stop).
func (s Seq[E]) GetSlice(start, stop int) Seq[E] {
	start, stop = s.bounds(start, stop)
	return slices.Clone(s[start:stop])
}

// SetSlice replaces [start, stop) with items, which may differ in length.
func (s *Seq[E]) SetSlice(start, stop int, items []E) {
	start, stop = s.bounds(start, stop)
	*s = slices.Replace(*s, start, stop, items...)
}

// DeleteSlice removes [start, stop).
func (s *Seq[E]) DeleteSlice(start, stop int) {
	start, stop = s.bounds(start, stop)
	*s = slices.Delete(*s, start, stop)
}

func (s *Seq[E]) Append(e E) { *s = append(*s, e) }

func (s *Seq[E]) Extend(items ...E) { *s = append(*s, items...) }

// Insert places e before position i; i is clamped to [0, Len].
func (s *Seq[E]) Insert(i int, e E) {
	n := len(*s)
	if i < 0 {
		i += n
	}
	i = max(0, min(i, n))
	*s = slices.Insert(*s, i, e)
}

func (s *Seq[E]) Delete(i int) error {
	i, err := s.index(i)
	if err != nil {
		return err
	}
	*s = slices.Delete(*s, i, i+1)
	return nil
}

// Pop removes and returns the element at i.
func (s *Seq[E]) Pop(i int) (E, error) {
	i, err := s.index(i)
	if err != nil {
		var zero E
		return zero, err
	}
	e := (*s)[i]
	*s = slices.Delete(*s, i, i+1)
	return e, nil
}

func compareFunc[E Sortable[E]](reverse bool) func(a, b E) int {
	if reverse {
		return func(a, b E) int { return b.Compare(a) }
	}
	return func(a, b E) int { return a.Compare(b) }
}

// Sort returns a stably sorted copy.
func (s Seq[E]) Sort(reverse bool) Seq[E] {
	out := slices.Clone(s)
	slices.SortStableFunc(out, compareFunc[E](reverse))
	return out
}

// SortInPlace stably sorts the receiver.
func (s Seq[E]) SortInPlace(reverse bool) {
	slices.SortStableFunc(s, compareFunc[E](reverse))
}

func (s Seq[E]) IsSorted() bool {
	return slices.IsSortedFunc(s, compareFunc[E](false))
}

// Filter keeps the events for which keep returns true, preserving order.
// With inplace false the receiver is left untouched and a new Seq is
// returned; with inplace true the receiver is compacted and returned.
func (s *Seq[E]) Filter(keep func(E) bool, inplace bool) Seq[E] {
	if inplace {
		*s = slices.DeleteFunc(*s, func(e E) bool { return !keep(e) })
		return *s
	}
	out := make(Seq[E], 0, len(*s))
	for _, e := range *s {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func (s Seq[E]) Copy() Seq[E] {
	if s == nil {
		return nil
	}
	return slices.Clone(s)
}

// Equal compares element-wise; nil and empty are equal.
func (s Seq[E]) Equal(o Seq[E]) bool { return slices.Equal(s, o) }
