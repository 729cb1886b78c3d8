package runtime

// InGroupOf splits items into consecutive chunks of at most length elements.
func InGroupOf[T any](items []T, length int) [][]T {
	if length <= 0 || len(items) <= length {
		return [][]T{items}
	}

	groups := make([][]T, 0, (len(items)+length-1)/length)
	for start := 0; start < len(items); start += length {
		end := start + length
		if end > len(items) {
			end = len(items)
		}
		groups = append(groups, items[start:end])
	}
	return groups
}
