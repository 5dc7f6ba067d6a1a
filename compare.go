package flagdb

import "sort"

type Comparator func(a, b []byte) int

// BytesComparator orders row keys bytewise, shorter keys first on a tie.
func BytesComparator(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] < b[i] {
			return -1
		} else if a[i] > b[i] {
			return 1
		}
	}
	if len(a) > len(b) {
		return 1
	} else if len(a) < len(b) {
		return -1
	}
	return 0
}

func sortKeys(keys []string, cmp Comparator) {
	sort.Slice(keys, func(i, j int) bool {
		return cmp([]byte(keys[i]), []byte(keys[j])) < 0
	})
}
