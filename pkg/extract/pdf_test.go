package extract

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// buildPDF lays out numbered objects with a matching xref table. Object 1 is the catalog.
func buildPDF(t *testing.T, objects ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	offsets := make([]int, len(objects))
	for i, body := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, offset := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offset)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func stream(content string) string {
	return fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content)
}

func textPDF(t *testing.T, content string) []byte {
	t.Helper()
	return buildPDF(t,
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>",
		stream(content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)
}

func TestStructuredFieldsFromPDFForm(t *testing.T) {
	extractor := NewDefaultExtractor(5, zerolog.Nop())
	data := buildPDF(t,
		"<< /Type /Catalog /Pages 2 0 R /AcroForm << /Fields [4 0 R 5 0 R 6 0 R] >> >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
		"<< /FT /Tx /T (q1) /V (Paris) >>",
		"<< /FT /Btn /T (agree) /V /Yes >>",
		"<< /T (part2) /Kids [7 0 R 8 0 R] >>",
		"<< /FT /Tx /T (city) /V (Lyon) /Parent 6 0 R >>",
		"<< /FT /Tx /T (blank) /Parent 6 0 R >>",
	)

	fields, err := extractor.StructuredFields(context.Background(), Document{Filename: "n400.pdf", Data: data})
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"q1":          "Paris",
		"agree":       "Yes",
		"part2.city":  "Lyon",
		"part2.blank": "",
	}, fields)
}

func TestPlainTextFromPDF(t *testing.T) {
	extractor := NewDefaultExtractor(5, zerolog.Nop())
	data := textPDF(t, "BT /F1 12 Tf 72 720 Td (Rivers shape valleys.) Tj ET")

	text, err := extractor.PlainText(context.Background(), Document{Filename: "essay.pdf", Data: data})
	require.NoError(t, err)
	require.Contains(t, text, "Rivers shape valleys.")
}

func TestStructuredFieldsFromFlatPDFUsesText(t *testing.T) {
	extractor := NewDefaultExtractor(5, zerolog.Nop())
	data := textPDF(t, "BT /F1 12 Tf 72 720 Td (q1: Paris) Tj ET")

	fields, err := extractor.StructuredFields(context.Background(), Document{Filename: "answers.pdf", Data: data})
	require.NoError(t, err)
	require.Equal(t, "Paris", fields["q1"])
}

func TestTruncatedPDFIsUnreadable(t *testing.T) {
	extractor := NewDefaultExtractor(5, zerolog.Nop())

	_, err := extractor.PlainText(context.Background(), Document{Filename: "essay.pdf", Data: []byte("%PDF-1.7\n1 0 obj\n")})
	require.ErrorIs(t, err, ErrUnreadableDocument)
}
