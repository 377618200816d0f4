package heap

// ToSlice walks a proper list into a Go slice. It performs no
// allocation, so it is always GC-safe regardless of root registration.
func (h *Heap) ToSlice(list Value) []Value {
	result := make([]Value, 0, 4)
	for list != Nil {
		result = append(result, h.Car(list))
		list = h.Cdr(list)
	}
	return result
}

// Length returns the number of elements in a proper list.
func (h *Heap) Length(list Value) int {
	n := 0
	for list != Nil {
		n++
		list = h.Cdr(list)
	}
	return n
}

// Reverse destructively reverses a list in place by rewriting cdr
// fields; it allocates nothing, so — unlike building a fresh list with
// Cons — it needs no root registration.
func (h *Heap) Reverse(list Value) Value {
	newList := Nil
	for list != Nil {
		next := h.Cdr(list)
		h.SetCdr(list, newList)
		newList = list
		list = next
	}
	return newList
}
