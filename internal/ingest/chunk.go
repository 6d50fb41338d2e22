package ingest

// Default chunking geometry. Consecutive chunks share overlap runes so a
// sentence split across a boundary still matches queries on either side.
const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

// chunkText splits text into rune slices of at most size, each starting
// overlap runes before the end of its predecessor. size must exceed overlap;
// callers validate the geometry up front.
func chunkText(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := size - overlap
	chunks := make([]string, 0, (len(runes)+step-1)/step)
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
