package matchmaking

// chooseSide picks the side for a ticket of ticketSize players given the
// current roster sizes. The coin selects the preferred side; the other side is
// tried next. ok is false when neither side can take the whole ticket without
// exceeding required.
func chooseSide(sizes [2]int, required, ticketSize int, preferA bool) (side Side, ok bool) {
	first := SideB
	if preferA {
		first = SideA
	}
	for _, s := range [2]Side{first, first.Other()} {
		if sizes[s]+ticketSize <= required {
			return s, true
		}
	}
	return 0, false
}
