// Package planner computes the byte-range split for a parallel download.
package planner

// SmallObjectThreshold is the size below which a single direct download
// is used instead of ranged parts.
const SmallObjectThreshold = 1024 * 1024

// ByteRange is a contiguous byte interval of the source object. End is
// inclusive.
type ByteRange struct {
	Start int64
	End   int64
}

// Length returns the number of bytes covered by the range.
func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// Plan splits an object of the given size into consecutive ranges of at
// most partSize bytes. The ranges are contiguous, non-overlapping, and
// cover [0, size-1] exactly. Both arguments must be positive.
func Plan(size, partSize int64) []ByteRange {
	numParts := (size + partSize - 1) / partSize
	if numParts < 1 {
		numParts = 1
	}
	ranges := make([]ByteRange, 0, numParts)
	for i := int64(0); i < numParts; i++ {
		start := i * partSize
		end := min((i+1)*partSize-1, size-1)
		ranges = append(ranges, ByteRange{Start: start, End: end})
	}
	return ranges
}
