package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDOCX(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.Create("[Content_Types].xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"></Types>`))
	require.NoError(t, err)

	w, err = zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body +
		`</w:body></w:document>`))
	require.NoError(t, err)

	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtractDOCXJoinsParagraphs(t *testing.T) {
	doc := buildDOCX(t,
		`<w:p><w:r><w:t>Contact John Smith</w:t></w:r><w:r><w:t xml:space="preserve"> today</w:t></w:r></w:p>`+
			`<w:p><w:r><w:t>Email: john.smith@example.com</w:t></w:r></w:p>`+
			`<w:p></w:p>`+
			`<w:p><w:r><w:t>a</w:t><w:tab/><w:t>b</w:t></w:r></w:p>`)

	text, err := New(0).Extract(context.Background(), bytes.NewReader(doc), "Report.DOCX")
	require.NoError(t, err)
	assert.Equal(t, "Contact John Smith today\nEmail: john.smith@example.com\n\na\tb", text)
}

func TestExtractDOCXWithoutBody(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("other.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = New(0).Extract(context.Background(), &buf, "empty.docx")
	assert.Error(t, err)
}

func TestExtractPlainText(t *testing.T) {
	text, err := New(0).Extract(context.Background(), strings.NewReader("Meeting in London"), "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "Meeting in London", text)

	_, err = New(0).Extract(context.Background(), bytes.NewReader([]byte{0xff, 0xfe}), "bad.txt")
	assert.Error(t, err)
}

func TestExtractRejectsUnsupportedFormat(t *testing.T) {
	_, err := New(0).Extract(context.Background(), strings.NewReader("x"), "image.png")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = New(0).Extract(context.Background(), strings.NewReader("x"), "noextension")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtractEnforcesSizeLimit(t *testing.T) {
	e := New(4)

	_, err := e.Extract(context.Background(), strings.NewReader("12345"), "big.txt")
	assert.ErrorIs(t, err, ErrTooLarge)

	text, err := e.Extract(context.Background(), strings.NewReader("1234"), "fits.txt")
	require.NoError(t, err)
	assert.Equal(t, "1234", text)
}

func TestExtractInvalidPDF(t *testing.T) {
	_, err := New(0).Extract(context.Background(), strings.NewReader("not a pdf"), "scan.pdf")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtractHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(0).Extract(ctx, strings.NewReader("text"), "a.txt")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFormats(t *testing.T) {
	assert.True(t, IsDocument("a.pdf"))
	assert.True(t, IsDocument("A.Docx"))
	assert.False(t, IsDocument("a.txt"))
	assert.True(t, Supported("a.txt"))
	assert.False(t, Supported("a.doc"))
}
