package chunkdl

// MinChunkSize is the floor applied to the chunk size in Partition.
const MinChunkSize int64 = 1 << 20 // 1 MiB

// Chunk is a disjoint byte range [Start, End] (inclusive) of a task's
// content, fetched by a single worker.
type Chunk struct {
	Index int
	Start int64
	End   int64
}

// Partition splits [0, contentLength-1] into chunks sized around
// chunkSizeBytes, enlarging it to contentLength/(2*threadCount) first when
// chunkSizeBytes would produce more chunks than that (never below
// MinChunkSize). Chunks are contiguous, disjoint, and fully cover the
// range; the last chunk ends at contentLength-1 and may be shorter than
// the others.
func Partition(contentLength int64, threadCount int, chunkSizeBytes int64) []Chunk {
	if threadCount < 1 {
		threadCount = 1
	}
	if chunkSizeBytes < 1 {
		chunkSizeBytes = MinChunkSize
	}

	minChunks := int64(2 * threadCount)
	if contentLength/minChunks > chunkSizeBytes {
		chunkSizeBytes = contentLength / minChunks
	}
	if chunkSizeBytes < MinChunkSize {
		chunkSizeBytes = MinChunkSize
	}

	var chunks []Chunk
	var start int64
	for idx := 0; start < contentLength; idx++ {
		end := start + chunkSizeBytes - 1
		if end > contentLength-1 {
			end = contentLength - 1
		}
		chunks = append(chunks, Chunk{Index: idx, Start: start, End: end})
		start = end + 1
	}
	return chunks
}
