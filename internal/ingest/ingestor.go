// Package ingest turns raw uploaded files into overlapping text chunks
// ready for embedding. It is a pure transformation: no side effects beyond
// reading the source file.
package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Chunk is one retrievable unit of a document, self-describing through its
// metadata.
type Chunk struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

// Result reports the chunks together with the split parameters actually
// used, which may differ from the requested chunk size after adaptive
// re-chunking.
type Result struct {
	Chunks     []Chunk `json:"chunks"`
	ChunkCount int     `json:"chunk_count"`
	ChunkSize  int     `json:"chunk_size"`
	Overlap    int     `json:"overlap"`
}

// Ingest extracts text from the file at path by MIME type and splits it into
// overlapping chunks. Every chunk carries extra merged with its position, so
// retrieval results are self-describing. If the initial split produces more
// than MaxChunksPerDocument chunks, the text is re-split once with a
// proportionally larger chunk size.
func Ingest(path, mimeType string, extra map[string]string, chunkSize int) (*Result, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	text, err := ExtractText(path, mimeType)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("document contains no extractable text")
	}

	texts := SplitText(text, chunkSize)
	if len(texts) > MaxChunksPerDocument {
		chunkSize = int(math.Ceil(float64(chunkSize) * float64(len(texts)) / float64(MaxChunksPerDocument)))
		texts = SplitText(text, chunkSize)
	}

	chunks := make([]Chunk, len(texts))
	for i, t := range texts {
		metadata := make(map[string]string, len(extra)+1)
		for k, v := range extra {
			metadata[k] = v
		}
		metadata["chunk_index"] = strconv.Itoa(i)
		chunks[i] = Chunk{Text: t, Metadata: metadata}
	}

	return &Result{
		Chunks:     chunks,
		ChunkCount: len(chunks),
		ChunkSize:  chunkSize,
		Overlap:    OverlapFor(chunkSize),
	}, nil
}
