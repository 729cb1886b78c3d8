package differenceutil

// DifferenceAndIntersectionStrings  O(len(src) + len(des))
func DifferenceAndIntersectionStrings(src, des []string) (onlySrc, intersection, onlyDes []string) {
	m := make(map[string]uint8)
	for _, k := range src {
		m[k] |= 1 << 0
	}
	for _, k := range des {
		m[k] |= 1 << 1
	}

	for k, v := range m {
		a := v&(1<<0) != 0
		b := v&(1<<1) != 0
		switch {
		case a && b:
			intersection = append(intersection, k)
		case a && !b:
			onlySrc = append(onlySrc, k)
		case !a && b:
			onlyDes = append(onlyDes, k)
		}
	}

	return
}

// SameSet reports whether src and des hold the same distinct strings.
func SameSet(src, des []string) bool {
	onlySrc, _, onlyDes := DifferenceAndIntersectionStrings(src, des)
	return len(onlySrc) == 0 && len(onlyDes) == 0
}
