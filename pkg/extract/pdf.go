package extract

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// maxFieldDepth bounds the AcroForm Kids walk.
const maxFieldDepth = 32

func openPDF(data []byte) (reader *pdf.Reader, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			reader, err = nil, fmt.Errorf("%w: %v", ErrUnreadableDocument, recovered)
		}
	}()

	reader, err = pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
	}
	return reader, nil
}

// pdfText concatenates the text of every page.
func (e *DefaultExtractor) pdfText(reader *pdf.Reader) (text string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			text, err = "", fmt.Errorf("%w: %v", ErrUnreadableDocument, recovered)
		}
	}()

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
	}

	data, err := io.ReadAll(io.LimitReader(plain, int64(e.maxUncompressed)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
	}
	return string(data), nil
}

// pdfFormFields exports the AcroForm fields keyed by their fully qualified name.
func pdfFormFields(reader *pdf.Reader) (fields map[string]string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			fields, err = nil, fmt.Errorf("%w: %v", ErrUnreadableDocument, recovered)
		}
	}()

	fields = make(map[string]string)
	roots := reader.Trailer().Key("Root").Key("AcroForm").Key("Fields")
	for i := 0; i < roots.Len(); i++ {
		collectField(roots.Index(i), "", fields, 0)
	}
	return fields, nil
}

func collectField(field pdf.Value, parent string, fields map[string]string, depth int) {
	if depth > maxFieldDepth || field.Kind() != pdf.Dict {
		return
	}

	name := parent
	if partial := field.Key("T").Text(); partial != "" {
		if name != "" {
			name += "."
		}
		name += partial
	}

	namedKids := 0
	kids := field.Key("Kids")
	for i := 0; i < kids.Len(); i++ {
		kid := kids.Index(i)
		if kid.Key("T").Kind() == pdf.Null {
			// Widget annotation; the value lives on this field.
			continue
		}
		namedKids++
		collectField(kid, name, fields, depth+1)
	}

	if name == "" {
		return
	}
	value := field.Key("V")
	if value.Kind() == pdf.Null && namedKids > 0 {
		return
	}
	fields[name] = fieldValue(value)
}

func fieldValue(value pdf.Value) string {
	switch value.Kind() {
	case pdf.Name:
		return value.Name()
	case pdf.String:
		return value.Text()
	case pdf.Integer, pdf.Real, pdf.Bool:
		return value.String()
	case pdf.Array:
		parts := make([]string, 0, value.Len())
		for i := 0; i < value.Len(); i++ {
			if part := fieldValue(value.Index(i)); part != "" {
				parts = append(parts, part)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}
