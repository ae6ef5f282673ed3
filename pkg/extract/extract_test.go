package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	writer := zip.NewWriter(buf)

	contentTypes, err := writer.Create("[Content_Types].xml")
	require.NoError(t, err)
	_, err = contentTypes.Write([]byte(`<?xml version="1.0"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"></Types>`))
	require.NoError(t, err)

	document, err := writer.Create("word/document.xml")
	require.NoError(t, err)
	_, err = document.Write([]byte(`<?xml version="1.0"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + body + `</w:body></w:document>`))
	require.NoError(t, err)

	require.NoError(t, writer.Close())
	return buf.Bytes()
}

func TestStructuredFieldsFromJSON(t *testing.T) {
	extractor := NewDefaultExtractor(5, zerolog.Nop())

	fields, err := extractor.StructuredFields(context.Background(), Document{
		Filename: "form.json",
		Data:     []byte(`{"q1_a": "off", "q1_b": "Yes", "age": 21, "agree": true, "notes": null}`),
	})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"q1_a": "off", "q1_b": "Yes", "age": "21", "agree": "true", "notes": ""}, fields)
}

func TestStructuredFieldsFromText(t *testing.T) {
	extractor := NewDefaultExtractor(5, zerolog.Nop())

	fields, err := extractor.StructuredFields(context.Background(), Document{
		Filename: "form.txt",
		Data:     []byte("name: Ada\nyear=1843\nthis line is prose\n"),
	})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"name": "Ada", "year": "1843"}, fields)
}

func TestPlainTextFromDocx(t *testing.T) {
	extractor := NewDefaultExtractor(5, zerolog.Nop())
	data := buildDocx(t, `<w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p><w:p><w:r><w:t>Second</w:t><w:tab/><w:t>one.</w:t></w:r></w:p>`)

	text, err := extractor.PlainText(context.Background(), Document{Filename: "essay.docx", Data: data})
	require.NoError(t, err)
	require.Equal(t, "First paragraph.\nSecond\tone.", text)
}

func TestMalformedJSONIsUnreadable(t *testing.T) {
	extractor := NewDefaultExtractor(5, zerolog.Nop())

	_, err := extractor.StructuredFields(context.Background(), Document{Filename: "form.json", Data: []byte(`{"q1": ["a"]}`)})
	require.ErrorIs(t, err, ErrUnreadableDocument)
}
