package extract

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
)

var (
	// ErrUnsupportedDocument indicates the document type cannot be read by this extractor.
	ErrUnsupportedDocument = errors.New("unsupported document type")
	// ErrUnreadableDocument indicates the document matched a known type but could not be decoded.
	ErrUnreadableDocument = errors.New("document could not be read")
)

const (
	mimeText = "text/plain"
	mimeJSON = "application/json"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeZip  = "application/zip"
	mimePDF  = "application/pdf"

	docxBody = "word/document.xml"
)

// Document is a submitted file.
type Document struct {
	Filename string
	Data     []byte
}

// Extractor pulls gradeable content out of a submitted document.
type Extractor interface {
	StructuredFields(ctx context.Context, doc Document) (map[string]string, error)
	PlainText(ctx context.Context, doc Document) (string, error)
}

// DefaultExtractor understands plain text, JSON field maps, DOCX and PDF files.
type DefaultExtractor struct {
	maxUncompressed uint64
	logger          zerolog.Logger
}

// NewDefaultExtractor constructs an extractor. maxUncompressedMB bounds DOCX
// inflation and extracted PDF text.
func NewDefaultExtractor(maxUncompressedMB int, logger zerolog.Logger) *DefaultExtractor {
	if maxUncompressedMB <= 0 {
		maxUncompressedMB = 50
	}
	return &DefaultExtractor{
		maxUncompressed: uint64(maxUncompressedMB) * 1024 * 1024,
		logger:          logger.With().Str("component", "extractor").Logger(),
	}
}

// DetectType returns the sniffed MIME type of a document without parameters.
func DetectType(doc Document) string {
	detected := mimetype.Detect(doc.Data)
	mime := detected.String()
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = mime[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mime))
}

// StructuredFields returns the named form fields of a document. JSON documents
// must be a flat object. PDF documents export their AcroForm fields, falling
// back to text lines when the form is flat. Text documents are read as
// "name: value" lines.
func (e *DefaultExtractor) StructuredFields(ctx context.Context, doc Document) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch e.kind(doc) {
	case mimeJSON:
		return jsonFields(doc.Data)
	case mimeText:
		return lineFields(string(doc.Data)), nil
	case mimeDOCX:
		text, err := e.docxText(doc.Data)
		if err != nil {
			return nil, err
		}
		return lineFields(text), nil
	case mimePDF:
		return e.pdfFields(doc)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDocument, DetectType(doc))
	}
}

func (e *DefaultExtractor) pdfFields(doc Document) (map[string]string, error) {
	reader, err := openPDF(doc.Data)
	if err != nil {
		return nil, err
	}

	fields, err := pdfFormFields(reader)
	if err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		e.logger.Debug().Str("filename", doc.Filename).Int("fields", len(fields)).Msg("read pdf form fields")
		return fields, nil
	}

	text, err := e.pdfText(reader)
	if err != nil {
		return nil, err
	}
	return lineFields(text), nil
}

// PlainText returns the document's readable text.
func (e *DefaultExtractor) PlainText(ctx context.Context, doc Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	switch e.kind(doc) {
	case mimeText, mimeJSON:
		return strings.TrimSpace(string(doc.Data)), nil
	case mimeDOCX:
		text, err := e.docxText(doc.Data)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(text), nil
	case mimePDF:
		reader, err := openPDF(doc.Data)
		if err != nil {
			return "", err
		}
		text, err := e.pdfText(reader)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(text), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDocument, DetectType(doc))
	}
}

func (e *DefaultExtractor) kind(doc Document) string {
	mime := DetectType(doc)
	switch {
	case mime == mimePDF:
		return mimePDF
	case mime == mimeDOCX:
		return mimeDOCX
	case mime == mimeZip && strings.HasSuffix(strings.ToLower(doc.Filename), ".docx"):
		return mimeDOCX
	case mime == mimeJSON:
		return mimeJSON
	case strings.HasPrefix(mime, "text/"):
		return mimeText
	default:
		return mime
	}
}

func (e *DefaultExtractor) docxText(data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
	}

	var total uint64
	for _, file := range reader.File {
		total += file.UncompressedSize64
		if total > e.maxUncompressed {
			return "", fmt.Errorf("%w: archive too large", ErrUnreadableDocument)
		}
	}

	for _, file := range reader.File {
		if file.Name != docxBody {
			continue
		}
		handle, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
		}
		defer handle.Close()
		return paragraphs(io.LimitReader(handle, int64(e.maxUncompressed)))
	}

	return "", fmt.Errorf("%w: missing %s", ErrUnreadableDocument, docxBody)
}

// paragraphs walks WordprocessingML and emits one line per paragraph.
func paragraphs(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var (
		out    strings.Builder
		inText bool
	)

	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
		}

		switch el := token.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				inText = true
			case "tab":
				out.WriteString("\t")
			case "br":
				out.WriteString("\n")
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				out.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				out.Write(el)
			}
		}
	}

	return out.String(), nil
}

func jsonFields(data []byte) (map[string]string, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var raw map[string]interface{}
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
	}

	fields := make(map[string]string, len(raw))
	for name, value := range raw {
		switch v := value.(type) {
		case nil:
			fields[name] = ""
		case string:
			fields[name] = v
		case json.Number:
			fields[name] = v.String()
		case bool:
			if v {
				fields[name] = "true"
			} else {
				fields[name] = "false"
			}
		default:
			return nil, fmt.Errorf("%w: field %q is not a scalar", ErrUnreadableDocument, name)
		}
	}
	return fields, nil
}

func lineFields(text string) map[string]string {
	fields := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			name, value, ok = strings.Cut(line, "=")
		}
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" || strings.ContainsAny(name, " \t") {
			continue
		}
		fields[name] = strings.TrimSpace(value)
	}
	return fields
}
