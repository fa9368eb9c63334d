package chunker

import "strings"

// MinChunkLen is the floor below which a window's trimmed text is discarded
// instead of emitted.
const MinChunkLen = 60

// Chunk splits text into overlapping windows of at most size characters.
// The input is line-ending normalized first, so the same document produces
// the same chunk sequence no matter where it was authored. Windows whose
// trimmed text does not exceed MinChunkLen are dropped.
func Chunk(text string, size, overlap int) []string {
	text = normalize(text)
	if size <= 0 {
		size = 1200
	}
	if overlap < 0 {
		overlap = 0
	}

	var out []string
	for i := 0; i < len(text); {
		end := i + size
		if end > len(text) {
			end = len(text)
		}

		piece := strings.TrimSpace(text[i:end])
		if len(piece) > MinChunkLen {
			out = append(out, piece)
		}

		if end == len(text) {
			break
		}

		next := end - overlap
		if next <= i {
			// overlap >= size must still advance
			next = i + 1
		}
		i = next
	}
	return out
}

func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}
