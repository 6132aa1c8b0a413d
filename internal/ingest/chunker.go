package ingest

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultChunkSize is the target chunk length in runes.
	DefaultChunkSize = 1000

	// MaxChunksPerDocument bounds index size for very large documents; a
	// split that exceeds it is redone once with a proportionally larger
	// chunk size.
	MaxChunksPerDocument = 1000

	maxOverlap = 200
)

// separators is the split cascade: paragraph, line, CJK sentence enders,
// latin sentence end, word, then raw runes as a last resort.
var separators = []string{"\n\n", "\n", "。", "！", "？", ". ", " "}

// OverlapFor returns the chunk overlap for a given chunk size:
// min(200, chunkSize/10) runes.
func OverlapFor(chunkSize int) int {
	overlap := chunkSize / 10
	if overlap > maxOverlap {
		overlap = maxOverlap
	}
	return overlap
}

// SplitText splits text into chunks of roughly chunkSize runes along the
// separator cascade. Each chunk after the first starts with the last
// OverlapFor(chunkSize) runes of its predecessor, so stripping that prefix
// and concatenating reproduces the source text.
func SplitText(text string, chunkSize int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if text == "" {
		return nil
	}
	pieces := splitRecursive(text, separators, chunkSize)
	return mergePieces(pieces, chunkSize, OverlapFor(chunkSize))
}

// splitRecursive cuts text into ordered pieces of at most chunkSize runes,
// preferring the earliest separator in the cascade. Separators stay attached
// to the preceding piece so concatenating the pieces reproduces text.
func splitRecursive(text string, seps []string, chunkSize int) []string {
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= chunkSize {
		return []string{text}
	}
	if len(seps) == 0 {
		return splitRunes(text, chunkSize)
	}

	parts := strings.SplitAfter(text, seps[0])
	var out []string
	for _, part := range parts {
		if part == "" {
			continue
		}
		if utf8.RuneCountInString(part) > chunkSize {
			out = append(out, splitRecursive(part, seps[1:], chunkSize)...)
		} else {
			out = append(out, part)
		}
	}
	return out
}

func splitRunes(text string, chunkSize int) []string {
	runes := []rune(text)
	var out []string
	for i := 0; i < len(runes); i += chunkSize {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}

// mergePieces packs pieces into chunks of up to chunkSize runes and carries
// the overlap suffix of each flushed chunk into the next one.
func mergePieces(pieces []string, chunkSize, overlap int) []string {
	var chunks []string
	var cur strings.Builder
	curLen := 0

	for _, piece := range pieces {
		pieceLen := utf8.RuneCountInString(piece)
		if curLen > 0 && curLen+pieceLen > chunkSize {
			flushed := cur.String()
			chunks = append(chunks, flushed)
			prefix := tailRunes(flushed, overlap)
			cur.Reset()
			cur.WriteString(prefix)
			curLen = utf8.RuneCountInString(prefix)
		}
		cur.WriteString(piece)
		curLen += pieceLen
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

func tailRunes(text string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[len(runes)-n:])
}
