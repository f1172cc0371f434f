package binary

// Chunker splits root id lists into batches no larger than chunkSize.
type Chunker[T any] struct {
	chunkSize int
}

func NewChunker[T any](chunkSize int) *Chunker[T] {
	return &Chunker[T]{chunkSize: chunkSize}
}

// Chunk returns consecutive sub-slices of data. The chunks share data's
// backing array.
func (c *Chunker[T]) Chunk(data []T) [][]T {
	if len(data) == 0 {
		return nil
	}

	if c.chunkSize <= 0 {
		return [][]T{data}
	}

	chunkCount := (len(data) + c.chunkSize - 1) / c.chunkSize

	chunks := make([][]T, chunkCount)

	for i := range chunks {
		start := min(i*c.chunkSize, len(data))
		end := min(start+c.chunkSize, len(data))
		chunks[i] = data[start:end:end]
	}
	return chunks
}

// ChunkSize clamps a requested batch size to (0, limit].
func ChunkSize(requested, limit int) int {
	if requested <= 0 || requested > limit {
		return limit
	}
	return requested
}
