package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/doc-pipeline/internal/resources"
	"github.com/fyerfyer/doc-pipeline/pkg/storage"
)

var testHost = resources.HostResources{CPUCores: 4, TotalMemoryGB: 8, AvailableMemoryGB: 4}

type testEnv struct {
	store   *storage.LocalStorage
	runner  *Runner
	tempDir string
	logs    *logtest.Hook
}

func newTestEnv(t *testing.T, opts ...RunnerOption) *testEnv {
	t.Helper()

	store, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)

	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	tempDir := t.TempDir()

	opts = append([]RunnerOption{
		WithLogger(logger),
		WithHost(testHost),
		WithTempDir(tempDir),
	}, opts...)
	runner := NewRunner(DefaultRegistry(), store, opts...)
	return &testEnv{store: store, runner: runner, tempDir: tempDir, logs: hook}
}

func (e *testEnv) save(t *testing.T, name string, data []byte) storage.FileInfo {
	t.Helper()
	info, err := e.store.Save(context.Background(), bytes.NewReader(data), name, nil)
	require.NoError(t, err)
	return info
}

func (e *testEnv) read(t *testing.T, id string) string {
	t.Helper()
	rc, err := e.store.Get(context.Background(), id)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func outputNames(result *RunResult) []string {
	names := make([]string, len(result.Outputs))
	for i, o := range result.Outputs {
		names[i] = o.Name
	}
	return names
}

// pdfBytes 每个参数生成一页，withImage时第一页带一张PNG
func pdfBytes(t *testing.T, withImage bool, pages ...string) []byte {
	t.Helper()

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	for i, text := range pages {
		pdf.AddPage()
		pdf.MultiCell(0, 10, text, "", "", false)
		if withImage && i == 0 {
			img := image.NewRGBA(image.Rect(0, 0, 8, 8))
			for x := 0; x < 8; x++ {
				for y := 0; y < 8; y++ {
					img.Set(x, y, color.RGBA{R: uint8(x * 32), G: uint8(y * 32), B: 200, A: 255})
				}
			}
			var buf bytes.Buffer
			require.NoError(t, png.Encode(&buf, img))
			opts := gofpdf.ImageOptions{ImageType: "PNG"}
			pdf.RegisterImageOptionsReader("logo", opts, &buf)
			pdf.ImageOptions("logo", 10, 40, 20, 20, false, opts, 0, "")
		}
	}

	var out bytes.Buffer
	require.NoError(t, pdf.Output(&out))
	return out.Bytes()
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.Copy(w, strings.NewReader(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

const pmlNS = `xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"`

func slideXML(text string) string {
	return `<?xml version="1.0" encoding="UTF-8"?><p:sld ` + pmlNS + `><p:cSld><p:spTree>` +
		`<p:sp><p:txBody><a:p><a:r><a:t>` + text + `</a:t></a:r></a:p></p:txBody></p:sp>` +
		`</p:spTree></p:cSld></p:sld>`
}

func pptxBytes(t *testing.T, slides ...string) []byte {
	t.Helper()
	files := map[string]string{}
	for i, s := range slides {
		files["ppt/slides/slide"+strconv.Itoa(i+1)+".xml"] = slideXML(s)
	}
	return zipBytes(t, files)
}

func docxBytes(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var body strings.Builder
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`)
	}
	return zipBytes(t, map[string]string{
		"[Content_Types].xml": `<?xml version="1.0" encoding="UTF-8"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`,
		"word/document.xml": `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
			body.String() + `</w:body></w:document>`,
	})
}

// tempDirEmpty 检查执行结束后临时目录已被清理
func tempDirEmpty(t *testing.T, dir string) bool {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries) == 0
}
