package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrUnsupportedFormat is returned for MIME types with no extraction
// strategy. Unknown types fail closed instead of being mis-parsed as text.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// MaxFileSize is the hard limit for text extraction.
const MaxFileSize = 50 << 20 // 50 MB

type extractFunc func(path string) (string, error)

// extractors maps MIME type to its text-extraction strategy.
var extractors = map[string]extractFunc{
	"application/pdf": extractPDF,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": extractDOCX,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       extractXLSX,
	"text/plain":    extractText,
	"text/markdown": extractText,
	"text/csv":      extractText,
}

// ExtractText pulls plain text out of the file at path according to its MIME
// type. Legacy binary formats (.doc, .xls, .ppt) have no pure-Go extractor
// and return ErrUnsupportedFormat.
func ExtractText(path, mimeType string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat document failed: %w", err)
	}
	if info.Size() > MaxFileSize {
		return "", fmt.Errorf("document exceeds %d byte extraction limit", MaxFileSize)
	}

	extract, ok := extractors[normalizeMime(mimeType)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, mimeType)
	}
	return extract(path)
}

func normalizeMime(mimeType string) string {
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

func extractText(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read document failed: %w", err)
	}
	return string(content), nil
}

func extractPDF(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read pdf failed: %w", err)
	}
	reader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", fmt.Errorf("open pdf failed: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text failed: %w", err)
	}
	out, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text failed: %w", err)
	}
	return string(out), nil
}

// extractDOCX unzips the document and walks word/document.xml, emitting a
// newline per paragraph element.
func extractDOCX(path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open docx failed: %w", err)
	}
	defer r.Close()

	var documentXML *zip.File
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			documentXML = f
			break
		}
	}
	if documentXML == nil {
		return "", fmt.Errorf("invalid docx: missing word/document.xml")
	}

	rc, err := documentXML.Open()
	if err != nil {
		return "", fmt.Errorf("open docx content failed: %w", err)
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var sb strings.Builder
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse docx xml failed: %w", err)
		}
		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				sb.WriteString("\n")
			case "tab":
				sb.WriteString("\t")
			}
		case xml.CharData:
			sb.Write(t)
		}
	}
	return sb.String(), nil
}

// extractXLSX flattens every worksheet to CSV-style lines, one row per line,
// sheets separated by a blank line.
func extractXLSX(path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open xlsx failed: %w", err)
	}
	defer r.Close()

	var shared []string
	var sheets []*zip.File
	for _, f := range r.File {
		switch {
		case f.Name == "xl/sharedStrings.xml":
			shared, err = parseSharedStrings(f)
			if err != nil {
				return "", err
			}
		case strings.HasPrefix(f.Name, "xl/worksheets/sheet") && strings.HasSuffix(f.Name, ".xml"):
			sheets = append(sheets, f)
		}
	}
	if len(sheets) == 0 {
		return "", fmt.Errorf("invalid xlsx: no worksheets")
	}
	sort.Slice(sheets, func(i, j int) bool { return sheets[i].Name < sheets[j].Name })

	var sb strings.Builder
	for i, sheet := range sheets {
		if i > 0 {
			sb.WriteString("\n")
		}
		if err := flattenSheet(sheet, shared, &sb); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

func parseSharedStrings(f *zip.File) ([]string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open shared strings failed: %w", err)
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var strs []string
	var cur strings.Builder
	inItem := false
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse shared strings failed: %w", err)
		}
		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local == "si" {
				inItem = true
				cur.Reset()
			}
		case xml.CharData:
			if inItem {
				cur.Write(t)
			}
		case xml.EndElement:
			if t.Name.Local == "si" {
				inItem = false
				strs = append(strs, cur.String())
			}
		}
	}
	return strs, nil
}

func flattenSheet(f *zip.File, shared []string, sb *strings.Builder) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open worksheet failed: %w", err)
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var row []string
	var cellValue strings.Builder
	cellIsShared := false
	inValue := false
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("parse worksheet failed: %w", err)
		}
		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "row":
				row = row[:0]
			case "c":
				cellIsShared = false
				for _, attr := range t.Attr {
					if attr.Name.Local == "t" && attr.Value == "s" {
						cellIsShared = true
					}
				}
			case "v":
				inValue = true
				cellValue.Reset()
			}
		case xml.CharData:
			if inValue {
				cellValue.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "v":
				inValue = false
				value := cellValue.String()
				if cellIsShared {
					if idx, err := strconv.Atoi(value); err == nil && idx >= 0 && idx < len(shared) {
						value = shared[idx]
					}
				}
				row = append(row, value)
			case "row":
				if len(row) > 0 {
					sb.WriteString(strings.Join(row, ","))
					sb.WriteString("\n")
				}
			}
		}
	}
	return nil
}
