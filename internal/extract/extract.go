package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

var (
	// ErrUnsupportedFormat is returned for files that are not PDF, DOCX or plain text
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrTooLarge is returned when an upload exceeds the configured limit
	ErrTooLarge = errors.New("file too large")
)

// Supported file extensions
const (
	FormatPDF  = ".pdf"
	FormatDOCX = ".docx"
	FormatText = ".txt"
)

// Extractor turns uploaded documents into plain text
type Extractor struct {
	maxBytes int64
}

// New creates an extractor that refuses inputs over maxBytes (0 disables the limit)
func New(maxBytes int64) *Extractor {
	return &Extractor{maxBytes: maxBytes}
}

// Format returns the lowercased extension of filename
func Format(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// IsDocument reports whether filename is a PDF or DOCX upload
func IsDocument(filename string) bool {
	switch Format(filename) {
	case FormatPDF, FormatDOCX:
		return true
	}
	return false
}

// Supported reports whether Extract can handle filename
func Supported(filename string) bool {
	return IsDocument(filename) || Format(filename) == FormatText
}

// Extract reads r fully and returns its text content
func (e *Extractor) Extract(ctx context.Context, r io.Reader, filename string) (string, error) {
	format := Format(filename)
	if !Supported(filename) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	data, err := e.readAll(r)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	switch format {
	case FormatPDF:
		return pdfText(data)
	case FormatDOCX:
		return docxText(data)
	default:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("text file is not valid UTF-8")
		}
		return string(data), nil
	}
}

func (e *Extractor) readAll(r io.Reader) ([]byte, error) {
	if e.maxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, e.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > e.maxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, e.maxBytes)
	}
	return data, nil
}

// pdfText concatenates the plain text of every page in order
func pdfText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("failed to extract pdf text: %w", err)
	}
	return buf.String(), nil
}

const wordNamespace = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

// docxText returns the text of each w:p paragraph in word/document.xml,
// joined with newlines
func docxText(data []byte) (string, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}

	var document *zip.File
	for _, f := range archive.File {
		if f.Name == "word/document.xml" {
			document = f
			break
		}
	}
	if document == nil {
		return "", fmt.Errorf("failed to open docx: word/document.xml not found")
	}

	rc, err := document.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open docx body: %w", err)
	}
	defer rc.Close()

	paragraphs, err := paragraphTexts(xml.NewDecoder(rc))
	if err != nil {
		return "", fmt.Errorf("failed to parse docx body: %w", err)
	}
	return strings.Join(paragraphs, "\n"), nil
}

func paragraphTexts(decoder *xml.Decoder) ([]string, error) {
	var (
		paragraphs []string
		current    strings.Builder
		depth      int // nesting of open w:p elements
		inText     bool
	)

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			return paragraphs, nil
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordNamespace {
				continue
			}
			switch t.Name.Local {
			case "p":
				if depth == 0 {
					current.Reset()
				}
				depth++
			case "t":
				inText = true
			case "tab":
				if depth > 0 {
					current.WriteByte('\t')
				}
			case "br", "cr":
				if depth > 0 {
					current.WriteByte('\n')
				}
			}
		case xml.EndElement:
			if t.Name.Space != wordNamespace {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				depth--
				if depth == 0 {
					paragraphs = append(paragraphs, current.String())
				}
			}
		case xml.CharData:
			if inText && depth > 0 {
				current.Write(t)
			}
		}
	}
}
