package ingest

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestExtractTextPlain(t *testing.T) {
	path := writeTempFile(t, "note.txt", "hello plain text")
	text, err := ExtractText(path, "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "hello plain text", text)
}

func TestExtractTextMarkdownAndCSV(t *testing.T) {
	mdPath := writeTempFile(t, "doc.md", "# Title\n\nbody")
	text, err := ExtractText(mdPath, "text/markdown")
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\nbody", text)

	csvPath := writeTempFile(t, "data.csv", "a,b\n1,2\n")
	text, err = ExtractText(csvPath, "text/csv")
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", text)
}

func TestExtractTextCharsetSuffixIgnored(t *testing.T) {
	path := writeTempFile(t, "note.txt", "charset test")
	text, err := ExtractText(path, "text/plain; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, "charset test", text)
}

func TestExtractTextUnsupportedFormat(t *testing.T) {
	path := writeTempFile(t, "legacy.doc", "binary junk")

	_, err := ExtractText(path, "application/msword")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = ExtractText(path, "image/png")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtractTextMissingFile(t *testing.T) {
	_, err := ExtractText(filepath.Join(t.TempDir(), "missing.txt"), "text/plain")
	require.Error(t, err)
}

func writeDOCX(t *testing.T, documentXML string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return path
}

func TestExtractDOCX(t *testing.T) {
	path := writeDOCX(t, `<?xml version="1.0"?>
<document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <body>
    <p><r><t>First paragraph.</t></r></p>
    <p><r><t>Second</t></r><r><tab/><t>tabbed</t></r></p>
  </body>
</document>`)

	text, err := ExtractText(path, "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	require.NoError(t, err)
	assert.Contains(t, text, "First paragraph.")
	assert.Contains(t, text, "Second\ttabbed")
}

func TestExtractDOCXWithoutDocumentXML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/other.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte("<x/>"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	_, err = ExtractText(path, "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	require.Error(t, err)
}

func TestExtractXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")
	f, err := os.Create(path)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	shared, err := zw.Create("xl/sharedStrings.xml")
	require.NoError(t, err)
	_, err = shared.Write([]byte(`<?xml version="1.0"?>
<sst><si><t>name</t></si><si><t>alice</t></si></sst>`))
	require.NoError(t, err)

	sheet, err := zw.Create("xl/worksheets/sheet1.xml")
	require.NoError(t, err)
	_, err = sheet.Write([]byte(`<?xml version="1.0"?>
<worksheet><sheetData>
  <row><c t="s"><v>0</v></c><c><v>42</v></c></row>
  <row><c t="s"><v>1</v></c><c><v>7</v></c></row>
</sheetData></worksheet>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	text, err := ExtractText(path, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	require.NoError(t, err)
	assert.Contains(t, text, "name,42")
	assert.Contains(t, text, "alice,7")
}

func TestIngestProducesIndexedChunks(t *testing.T) {
	path := writeTempFile(t, "long.txt", "First sentence. Second sentence. Third sentence.")

	result, err := Ingest(path, "text/plain", map[string]string{"original_name": "long.txt"}, 0)
	require.NoError(t, err)
	require.NotEmpty(t, result.Chunks)
	assert.Equal(t, len(result.Chunks), result.ChunkCount)

	for i, chunk := range result.Chunks {
		assert.Equal(t, "long.txt", chunk.Metadata["original_name"])
		assert.Equal(t, i, mustAtoi(t, chunk.Metadata["chunk_index"]))
	}
}

func TestIngestEmptyDocument(t *testing.T) {
	path := writeTempFile(t, "blank.txt", "   \n\t ")
	_, err := Ingest(path, "text/plain", nil, 0)
	require.Error(t, err)
}

func TestIngestAdaptiveChunkSize(t *testing.T) {
	// 2M runes at the default chunk size would produce roughly 2000 chunks,
	// which forces a single re-split with a larger size.
	big := make([]byte, 2_000_000)
	for i := range big {
		big[i] = 'a'
	}
	path := writeTempFile(t, "big.txt", string(big))

	result, err := Ingest(path, "text/plain", nil, DefaultChunkSize)
	require.NoError(t, err)
	assert.LessOrEqual(t, result.ChunkCount, MaxChunksPerDocument)
	assert.Greater(t, result.ChunkSize, DefaultChunkSize)
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	n := 0
	for _, r := range s {
		require.True(t, r >= '0' && r <= '9')
		n = n*10 + int(r-'0')
	}
	return n
}
