package document

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/doc-pipeline/internal/resources"
)

// testHost 固定的资源快照，避免测试依赖运行机器
var testHost = resources.HostResources{CPUCores: 4, TotalMemoryGB: 8, AvailableMemoryGB: 4}

func createTempFile(t *testing.T, content, ext string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docqa-test"+ext)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// createTempPDF 每个参数生成一页
func createTempPDF(t *testing.T, pages ...string) string {
	t.Helper()

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	for _, text := range pages {
		pdf.AddPage()
		pdf.MultiCell(0, 10, text, "", "", false)
	}

	path := filepath.Join(t.TempDir(), "docqa-test.pdf")
	require.NoError(t, pdf.OutputFileAndClose(path))
	return path
}

// createPDFWithImage 第一页带一张PNG图片，第二页只有文字
func createPDFWithImage(t *testing.T) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for x := 0; x < 16; x++ {
		for y := 0; y < 16; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()
	pdf.RegisterImageOptionsReader("square", gofpdf.ImageOptions{ImageType: "PNG"}, &buf)
	pdf.ImageOptions("square", 10, 20, 30, 30, false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")
	pdf.AddPage()
	pdf.Cell(40, 10, "No images here")

	path := filepath.Join(t.TempDir(), "images.pdf")
	require.NoError(t, pdf.OutputFileAndClose(path))
	return path
}

func writeZip(t *testing.T, name string, files map[string]string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

const (
	pmlNS = `xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"`
	relNS = `http://schemas.openxmlformats.org/officeDocument/2006/relationships`
)

func slideXML(title, body string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<p:sld %s><p:cSld><p:spTree>
<p:sp><p:nvSpPr><p:nvPr><p:ph type="title"/></p:nvPr></p:nvSpPr><p:txBody><a:p><a:r><a:t>%s</a:t></a:r></a:p></p:txBody></p:sp>
<p:sp><p:txBody><a:p><a:r><a:t>%s</a:t></a:r></a:p></p:txBody></p:sp>
<p:sp><p:nvSpPr><p:nvPr><p:ph type="sldNum"/></p:nvPr></p:nvSpPr><p:txBody><a:p><a:r><a:t>99</a:t></a:r></a:p></p:txBody></p:sp>
</p:spTree></p:cSld></p:sld>`, pmlNS, title, body)
}

const tableSlideXML = `<?xml version="1.0" encoding="UTF-8"?>
<p:sld ` + pmlNS + `><p:cSld><p:spTree>
<p:sp><p:txBody><a:p><a:r><a:t>Quarterly numbers</a:t></a:r></a:p></p:txBody></p:sp>
<p:graphicFrame><a:graphic><a:graphicData><a:tbl>
<a:tr><a:tc><a:txBody><a:p><a:r><a:t>Region</a:t></a:r></a:p></a:txBody></a:tc><a:tc><a:txBody><a:p><a:r><a:t>Sales</a:t></a:r></a:p></a:txBody></a:tc></a:tr>
<a:tr><a:tc><a:txBody><a:p><a:r><a:t>North</a:t></a:r></a:p></a:txBody></a:tc><a:tc><a:txBody><a:p><a:r><a:t>42</a:t></a:r></a:p></a:txBody></a:tc></a:tr>
</a:tbl></a:graphicData></a:graphic></p:graphicFrame>
</p:spTree></p:cSld></p:sld>`

func notesXML(text string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<p:notes %s><p:cSld><p:spTree>
<p:sp><p:nvSpPr><p:nvPr><p:ph type="sldImg"/></p:nvPr></p:nvSpPr></p:sp>
<p:sp><p:nvSpPr><p:nvPr><p:ph type="body"/></p:nvPr></p:nvSpPr><p:txBody><a:p><a:r><a:t>%s</a:t></a:r></a:p></p:txBody></p:sp>
<p:sp><p:nvSpPr><p:nvPr><p:ph type="sldNum"/></p:nvPr></p:nvSpPr><p:txBody><a:p><a:r><a:t>1</a:t></a:r></a:p></p:txBody></p:sp>
</p:spTree></p:cSld></p:notes>`, pmlNS, text)
}

// createPPTX 三张幻灯片，第10张排在第2张之后；第1张带备注，第2张带表格
func createPPTX(t *testing.T) string {
	t.Helper()
	return writeZip(t, "deck.pptx", map[string]string{
		"ppt/slides/slide1.xml":  slideXML("Welcome", "Agenda for today"),
		"ppt/slides/slide2.xml":  tableSlideXML,
		"ppt/slides/slide10.xml": slideXML("Closing", "Thanks for listening"),
		"ppt/slides/_rels/slide1.xml.rels": `<?xml version="1.0" encoding="UTF-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId2" Type="` + relNS + `/notesSlide" Target="../notesSlides/notesSlide1.xml"/>
</Relationships>`,
		"ppt/notesSlides/notesSlide1.xml": notesXML("Remember to introduce the team"),
	})
}

// createReorderedPPTX 放映顺序为slide2、slide1，slide3未被引用
func createReorderedPPTX(t *testing.T) string {
	t.Helper()
	return writeZip(t, "reordered.pptx", map[string]string{
		"ppt/presentation.xml": `<?xml version="1.0" encoding="UTF-8"?>
<p:presentation ` + pmlNS + ` xmlns:r="` + relNS + `"><p:sldIdLst>
<p:sldId id="256" r:id="rId3"/>
<p:sldId id="257" r:id="rId2"/>
</p:sldIdLst></p:presentation>`,
		"ppt/_rels/presentation.xml.rels": `<?xml version="1.0" encoding="UTF-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="` + relNS + `/slideMaster" Target="slideMasters/slideMaster1.xml"/>
<Relationship Id="rId2" Type="` + relNS + `/slide" Target="slides/slide1.xml"/>
<Relationship Id="rId3" Type="` + relNS + `/slide" Target="/ppt/slides/slide2.xml"/>
</Relationships>`,
		"ppt/slides/slide1.xml": slideXML("Second", "shown second"),
		"ppt/slides/slide2.xml": slideXML("First", "shown first"),
		"ppt/slides/slide3.xml": slideXML("Orphan", "not in the deck"),
	})
}

// createDocx 最小的docx，只包含内容类型声明和正文
func createDocx(t *testing.T, paragraphs ...string) string {
	t.Helper()

	var body bytes.Buffer
	for _, p := range paragraphs {
		fmt.Fprintf(&body, `<w:p><w:r><w:t>%s</w:t></w:r></w:p>`, p)
	}
	return writeZip(t, "report.docx", map[string]string{
		"[Content_Types].xml": `<?xml version="1.0" encoding="UTF-8"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`,
		"word/document.xml": `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
			body.String() + `</w:body></w:document>`,
	})
}
