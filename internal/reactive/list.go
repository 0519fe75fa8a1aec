package reactive

// List is a cell over a slice. Every mutation notifies, and subscribers
// receive a fresh slice they may retain but must not modify.
type List[T any] struct {
	*Cell[[]T]
}

// NewList creates an empty list.
func NewList[T any]() *List[T] {
	return &List[T]{NewWithEqual[[]T](nil, nil)}
}

// Items returns the current elements.
func (l *List[T]) Items() []T {
	return l.Get()
}

// Len returns the number of elements.
func (l *List[T]) Len() int {
	return len(l.Get())
}

// Append adds items at the end.
func (l *List[T]) Append(items ...T) {
	cur := l.Get()
	next := make([]T, 0, len(cur)+len(items))
	next = append(next, cur...)
	next = append(next, items...)
	l.Set(next)
}

// RemoveAt deletes the element at index i. Out of range indexes are ignored.
func (l *List[T]) RemoveAt(i int) {
	cur := l.Get()
	if i < 0 || i >= len(cur) {
		return
	}
	next := make([]T, 0, len(cur)-1)
	next = append(next, cur[:i]...)
	next = append(next, cur[i+1:]...)
	l.Set(next)
}

// IndexFunc returns the first index for which match is true, or -1.
func (l *List[T]) IndexFunc(match func(T) bool) int {
	for i, item := range l.Get() {
		if match(item) {
			return i
		}
	}
	return -1
}
