package cart

import "github.com/google/uuid"

// Line is a product and quantity pair inside a cart.
type Line struct {
	ProductID uuid.UUID
	Quantity  int
}

// Merge folds guest lines into user lines and returns a new slice. Quantities
// of matching products are summed; guest-only products are appended in guest
// order with their quantity unchanged. Repeated product ids within either input
// are coalesced. Neither input is modified.
func Merge(guest, user []Line) []Line {
	out := make([]Line, 0, len(user)+len(guest))
	index := make(map[uuid.UUID]int, len(user)+len(guest))
	add := func(l Line) {
		if i, ok := index[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			return
		}
		index[l.ProductID] = len(out)
		out = append(out, l)
	}
	for _, l := range user {
		add(l)
	}
	for _, l := range guest {
		add(l)
	}
	return out
}
