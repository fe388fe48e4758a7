package source

// blockRange is an inclusive block range.
type blockRange struct {
	from uint64
	to   uint64
}

// pendingRanges covers the blocks after last up to and including head in
// ranges of at most size blocks. It returns nil when head <= last.
func pendingRanges(last, head, size uint64) []blockRange {
	if head <= last || size == 0 {
		return nil
	}

	var ranges []blockRange
	for start := last + 1; start <= head; {
		end := head
		if head-start+1 > size {
			end = start + size - 1
		}
		ranges = append(ranges, blockRange{from: start, to: end})
		if end == head {
			break
		}
		start = end + 1
	}
	return ranges
}
