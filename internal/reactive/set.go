package reactive

// Set is an insertion-ordered set of comparable values.
type Set[T comparable] struct {
	*List[T]
	index map[T]struct{}
}

// NewSet creates an empty set.
func NewSet[T comparable]() *Set[T] {
	return &Set[T]{List: NewList[T](), index: make(map[T]struct{})}
}

// Add inserts the values not yet present. Subscribers are notified once,
// and only when something was added.
func (s *Set[T]) Add(values ...T) bool {
	var added []T
	for _, v := range values {
		if _, ok := s.index[v]; ok {
			continue
		}
		s.index[v] = struct{}{}
		added = append(added, v)
	}
	if len(added) == 0 {
		return false
	}
	s.Append(added...)
	return true
}

// Has reports whether v is in the set.
func (s *Set[T]) Has(v T) bool {
	_, ok := s.index[v]
	return ok
}
