package query

// DefaultChunkSize is the number of ids sent per request by façades that
// accept variable-length id lists.
const DefaultChunkSize = 32

// Chunks splits seq into contiguous sub-slices of at most size elements.
// A non-positive size selects DefaultChunkSize. The sub-slices share seq's
// backing array.
func Chunks[T any](seq []T, size int) [][]T {
	if size <= 0 {
		size = DefaultChunkSize
	}

	if len(seq) == 0 {
		return nil
	}

	out := make([][]T, 0, (len(seq)+size-1)/size)

	for start := 0; start < len(seq); start += size {
		end := min(start+size, len(seq))
		out = append(out, seq[start:end:end])
	}

	return out
}
