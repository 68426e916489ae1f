package document

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainTextParser(t *testing.T) {
	content := "Hello, this is a plain text file.\nSecond line."
	file := createTempFile(t, content, ".txt")

	parser := NewPlainTextParser()
	text, err := parser.Parse(file)
	require.NoError(t, err)
	assert.Equal(t, content, text)

	t.Run("reader", func(t *testing.T) {
		text, err := parser.ParseReader(strings.NewReader(content), "test.txt")
		require.NoError(t, err)
		assert.Equal(t, content, text)
	})

	t.Run("invalid utf8", func(t *testing.T) {
		_, err := parser.ParseReader(strings.NewReader("\xff\xfe\xfd"), "bad.txt")
		assert.ErrorIs(t, err, ErrOpenSource)
	})
}

func TestMarkdownParser(t *testing.T) {
	content := "# Title\n\nThis is a **markdown** file.\n\n- Item 1\n- Item 2"
	file := createTempFile(t, content, ".md")

	text, err := NewMarkdownParser().Parse(file)
	require.NoError(t, err)

	assert.Contains(t, text, "Title")
	assert.Contains(t, text, "This is a markdown file.")
	assert.Contains(t, text, "- Item 1")
	assert.NotContains(t, text, "<")

	// 块之间用空行分隔，段落分块可以直接使用
	chunks, err := ChunkText(text, "paragraph", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Title", "This is a markdown file.", "- Item 1", "- Item 2"}, chunks)
}

func TestPDFParser(t *testing.T) {
	file := createTempPDF(t, "This is a PDF test.", "Second page here.")

	text, err := NewPDFParser(WithHost(testHost)).Parse(file)
	require.NoError(t, err)
	assert.Contains(t, text, "PDF test")
	assert.Contains(t, text, "Second page")
	assert.Less(t, strings.Index(text, "PDF test"), strings.Index(text, "Second page"))
}

func TestDocParser(t *testing.T) {
	file := createDocx(t, "Quarterly report", "Revenue grew in every region.")

	text, err := NewDocParser().Parse(file)
	require.NoError(t, err)
	assert.Contains(t, text, "Quarterly report")
	assert.Contains(t, text, "Revenue grew in every region.")

	_, err = NewDocParser().ParseReader(strings.NewReader("x"), "notes.rtf")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestParserFactory(t *testing.T) {
	tests := []struct {
		file     string
		expected string
	}{
		{createTempFile(t, "plain text", ".txt"), "plain text"},
		{createTempFile(t, "# Markdown", ".md"), "Markdown"},
		{createTempPDF(t, "PDF content"), "PDF content"},
		{createDocx(t, "Word content"), "Word content"},
		{createPPTX(t), "Agenda for today"},
		{createTempFile(t, "Subject: Hi\r\n\r\nEmail content", ".eml"), "Email content"},
	}

	for _, tt := range tests {
		t.Run(filepath.Ext(tt.file), func(t *testing.T) {
			parser, err := ParserFactory(tt.file, WithHost(testHost))
			require.NoError(t, err)
			text, err := parser.Parse(tt.file)
			require.NoError(t, err)
			assert.Contains(t, text, tt.expected)
		})
	}

	t.Run("unsupported", func(t *testing.T) {
		_, err := ParserFactory("archive.zip")
		assert.ErrorIs(t, err, ErrUnsupportedType)
	})
}

func TestOpenSource(t *testing.T) {
	file := createTempFile(t, "content", ".txt")

	src, err := OpenSource(file)
	require.NoError(t, err)
	assert.Equal(t, "docqa-test.txt", src.Name)
	assert.Equal(t, "docqa-test", src.Stem())
	assert.Equal(t, PlainText, src.Type)
	assert.Equal(t, int64(7), src.Size)
	assert.NoError(t, src.Require(PlainText, Markdown))
	assert.ErrorIs(t, src.Require(PDF), ErrUnsupportedType)

	_, err = OpenSource(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.ErrorIs(t, err, ErrOpenSource)
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, PDF, DetectContentType("a/b/REPORT.PDF"))
	assert.Equal(t, Markdown, DetectContentType("readme.markdown"))
	assert.Equal(t, Audio, DetectContentType("call.wav"))
	assert.Equal(t, Unknown, DetectContentType("noext"))
	assert.Equal(t, "message/rfc822", Email.MimeType())
	assert.Equal(t, "application/octet-stream", Unknown.MimeType())
}

// TestPDFExtractor 逐页提取，顺序与页码一致
func TestPDFExtractor(t *testing.T) {
	pages := []string{"Page one text", "Page two text", "Page three text", "Page four text",
		"Page five text", "Page six text", "Page seven text"}
	file := createTempPDF(t, pages...)

	logger, _ := logtest.NewNullLogger()
	extractor := NewPDFExtractor(WithHost(testHost), WithLogger(logger))
	result, err := extractor.ExtractPages(context.Background(), file)
	require.NoError(t, err)
	require.Len(t, result.Units, len(pages))
	assert.Empty(t, result.Failures)

	for i, u := range result.Units {
		assert.Equal(t, i, u.Index)
		assert.Contains(t, u.Text, pages[i])
	}
}

func TestPDFExtractorCorruptFile(t *testing.T) {
	file := createTempFile(t, "%PDF-1.4 this is not really a pdf", ".pdf")

	_, err := NewPDFExtractor(WithHost(testHost)).ExtractPages(context.Background(), file)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOpenSource)

	_, err = NewPDFExtractor().ExtractPages(context.Background(), filepath.Join(t.TempDir(), "none.pdf"))
	assert.ErrorIs(t, err, ErrOpenSource)
}

func TestPDFImageExtractor(t *testing.T) {
	file := createPDFWithImage(t)

	logger, _ := logtest.NewNullLogger()
	result, err := NewPDFImageExtractor(WithHost(testHost), WithLogger(logger)).Extract(context.Background(), file)
	require.NoError(t, err)
	require.Len(t, result.Units, 2)

	require.Len(t, result.Units[0].Blobs, 1)
	assert.NotEmpty(t, result.Units[0].Blobs[0].Data)
	assert.NotEmpty(t, result.Units[0].Blobs[0].Ext)
	assert.Empty(t, result.Units[1].Blobs)
}

func TestPDFRenderer(t *testing.T) {
	file := createTempPDF(t, "first", "second")

	logger, _ := logtest.NewNullLogger()
	renderer := NewPDFRenderer(72, 100, WithHost(testHost), WithLogger(logger))
	result, err := renderer.Render(context.Background(), file)
	require.NoError(t, err)
	require.Len(t, result.Units, 2)

	for _, u := range result.Units {
		require.Len(t, u.Blobs, 1)
		assert.Equal(t, "png", u.Blobs[0].Ext)
		// PNG文件头
		assert.Equal(t, "\x89PNG", string(u.Blobs[0].Data[:4]))
	}
	assert.Equal(t, 2, result.Total)
}

func TestPPTXExtractor(t *testing.T) {
	file := createPPTX(t)
	logger, _ := logtest.NewNullLogger()

	t.Run("slides only", func(t *testing.T) {
		extractor := NewPPTXExtractor(PPTXOptions{}, WithHost(testHost), WithLogger(logger))
		result, err := extractor.Extract(context.Background(), file)
		require.NoError(t, err)
		require.Len(t, result.Units, 3)

		assert.Equal(t, "Welcome\nAgenda for today", result.Units[0].Text)
		assert.Equal(t, "Quarterly numbers", result.Units[1].Text)
		assert.Equal(t, "Closing\nThanks for listening", result.Units[2].Text)
	})

	t.Run("notes and tables", func(t *testing.T) {
		extractor := NewPPTXExtractor(PPTXOptions{ExtractNotes: true, ExtractTables: true},
			WithHost(testHost), WithLogger(logger))
		result, err := extractor.Extract(context.Background(), file)
		require.NoError(t, err)
		require.Len(t, result.Units, 3)

		assert.Equal(t, "Welcome\nAgenda for today\n"+SpeakerNotesMarker+"\nRemember to introduce the team",
			result.Units[0].Text)
		assert.Equal(t, "Quarterly numbers\nRegion\tSales\nNorth\t42", result.Units[1].Text)
		assert.NotContains(t, result.Units[2].Text, SpeakerNotesMarker)
	})

	t.Run("presentation order", func(t *testing.T) {
		extractor := NewPPTXExtractor(PPTXOptions{}, WithHost(testHost), WithLogger(logger))
		result, err := extractor.Extract(context.Background(), createReorderedPPTX(t))
		require.NoError(t, err)
		require.Len(t, result.Units, 2)

		assert.Equal(t, "First\nshown first", result.Units[0].Text)
		assert.Equal(t, "Second\nshown second", result.Units[1].Text)
		assert.Equal(t, 2, result.Total)
	})

	t.Run("dangling slide relationship", func(t *testing.T) {
		deck := writeZip(t, "broken.pptx", map[string]string{
			"ppt/presentation.xml": `<p:presentation ` + pmlNS + ` xmlns:r="` + relNS + `"><p:sldIdLst><p:sldId id="256" r:id="rId9"/></p:sldIdLst></p:presentation>`,
			"ppt/_rels/presentation.xml.rels": `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`,
		})
		_, err := NewPPTXExtractor(PPTXOptions{}).Extract(context.Background(), deck)
		assert.ErrorIs(t, err, ErrOpenSource)
	})

	t.Run("not a zip", func(t *testing.T) {
		bad := createTempFile(t, "plain", ".pptx")
		_, err := NewPPTXExtractor(PPTXOptions{}).Extract(context.Background(), bad)
		assert.ErrorIs(t, err, ErrOpenSource)
	})
}

func TestEmailParser(t *testing.T) {
	multipart := strings.Join([]string{
		"From: Alice <alice@example.com>",
		"To: Bob <bob@example.com>",
		"Cc: Carol <carol@example.com>",
		"Subject: =?utf-8?q?Quarterly_update?=",
		"Date: Mon, 02 Jun 2025 10:00:00 +0000",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="outer"`,
		"",
		"--outer",
		`Content-Type: multipart/alternative; boundary="inner"`,
		"",
		"--inner",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Numbers are up this quarter.",
		"--inner",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<html><body><p>Numbers are <b>up</b>\n this quarter.</p></body></html>",
		"--inner--",
		"--outer",
		`Content-Type: application/pdf; name="report.pdf"`,
		`Content-Disposition: attachment; filename="report.pdf"`,
		"",
		"0123456789",
		"--outer--",
		"",
	}, "\r\n")

	t.Run("headers body attachments", func(t *testing.T) {
		parser := NewEmailParser(EmailOptions{ExtractHeaders: true, ExtractAttachments: true})
		text, err := parser.ParseReader(strings.NewReader(multipart), "update.eml")
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(text, EmailHeadersSection+"\nFrom: Alice <alice@example.com>\nTo: Bob <bob@example.com>"))
		assert.Contains(t, text, "Subject: Quarterly update")
		assert.Contains(t, text, "Cc: Carol <carol@example.com>")
		assert.NotContains(t, text, "Bcc:")
		assert.Contains(t, text, EmailBodySection+"\nNumbers are up this quarter.\n\nNumbers are up this quarter.")
		assert.True(t, strings.HasSuffix(text, EmailAttachmentsSection+"\n- report.pdf (application/pdf, 10 bytes)"))
	})

	t.Run("body only", func(t *testing.T) {
		parser := NewEmailParser(EmailOptions{})
		text, err := parser.ParseReader(strings.NewReader(multipart), "update.eml")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(text, EmailBodySection))
		assert.NotContains(t, text, EmailAttachmentsSection)
	})

	t.Run("missing headers and body", func(t *testing.T) {
		parser := NewEmailParser(DefaultEmailOptions())
		text, err := parser.ParseReader(strings.NewReader("Content-Type: text/plain\r\n\r\n   \r\n"), "empty.eml")
		require.NoError(t, err)
		assert.Contains(t, text, "From: Unknown")
		assert.Contains(t, text, "Subject: No Subject")
		assert.Contains(t, text, emptyBodyText)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "update.eml")
		require.NoError(t, os.WriteFile(path, []byte(multipart), 0644))
		text, err := NewEmailParser(DefaultEmailOptions()).Parse(path)
		require.NoError(t, err)
		assert.Contains(t, text, "Numbers are up")
	})
}
