package document

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ledongthuc/pdf"

	"github.com/fyerfyer/doc-pipeline/internal/batch"
	"github.com/fyerfyer/doc-pipeline/internal/resources"
)

// PDFExtractor 按页提取PDF文本
type PDFExtractor struct {
	opts extractorOptions
}

// NewPDFExtractor 创建PDF页文本提取器
func NewPDFExtractor(opts ...ExtractorOption) *PDFExtractor {
	return &PDFExtractor{opts: newExtractorOptions(opts...)}
}

// openPDF 读入整个文件并解析交叉引用表
// 返回的reader在各页之间只读共享
func openPDF(path string) (*pdf.Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpenSource, err)
	}
	return openPDFBytes(data, filepath.Base(path))
}

func openPDFBytes(data []byte, name string) (r *pdf.Reader, err error) {
	// 损坏的文件可能让解析库panic
	defer func() {
		if rec := recover(); rec != nil {
			r, err = nil, fmt.Errorf("%w: %s: %v", ErrOpenSource, name, rec)
		}
	}()

	r, err = pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpenSource, name, err)
	}
	return r, nil
}

// ExtractPages 提取每一页的文本，Unit.Index为从0开始的页序号
// 空白页得到空文本，不算失败
func (e *PDFExtractor) ExtractPages(ctx context.Context, path string) (*batch.Result, error) {
	reader, err := openPDF(path)
	if err != nil {
		return nil, err
	}
	return e.extract(ctx, reader)
}

// ExtractPagesReader 从Reader提取每一页的文本
func (e *PDFExtractor) ExtractPagesReader(ctx context.Context, r io.Reader, filename string) (*batch.Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpenSource, err)
	}
	reader, err := openPDFBytes(data, filename)
	if err != nil {
		return nil, err
	}
	return e.extract(ctx, reader)
}

func (e *PDFExtractor) extract(ctx context.Context, reader *pdf.Reader) (*batch.Result, error) {
	total := reader.NumPage()
	if total == 0 {
		return &batch.Result{}, nil
	}

	plan := e.opts.plan(ctx, total, resources.IOBound)
	return e.opts.batcher.Run(ctx, plan, total, func(ctx context.Context, index int) (batch.Payload, error) {
		page := reader.Page(index + 1)
		if page.V.IsNull() {
			return batch.Payload{}, nil
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return batch.Payload{}, fmt.Errorf("failed to get text from page %d: %w", index+1, err)
		}
		return batch.Payload{Text: text}, nil
	})
}

// PDFParser 将所有页文本按顺序拼接成整篇文本
type PDFParser struct {
	extractor *PDFExtractor
}

// NewPDFParser 创建一个新的PDF解析器
func NewPDFParser(opts ...ExtractorOption) Parser {
	return &PDFParser{extractor: NewPDFExtractor(opts...)}
}

// Parse 解析PDF文件并提取其文本内容
func (p *PDFParser) Parse(filePath string) (string, error) {
	result, err := p.extractor.ExtractPages(context.Background(), filePath)
	if err != nil {
		return "", fmt.Errorf("failed to extract text from PDF: %w", err)
	}
	return PagesText(result)
}

// ParseReader 从Reader解析PDF
func (p *PDFParser) ParseReader(r io.Reader, filename string) (string, error) {
	result, err := p.extractor.ExtractPagesReader(context.Background(), r, filename)
	if err != nil {
		return "", fmt.Errorf("failed to extract text from PDF: %w", err)
	}
	return PagesText(result)
}

// PagesText 按页序拼接提取结果，没有任何文本时返回ErrNoText
func PagesText(result *batch.Result) (string, error) {
	texts := make([]string, 0, len(result.Units))
	for _, u := range result.Units {
		texts = append(texts, u.Text)
	}

	text := joinUnits(texts)
	if text == "" {
		return "", fmt.Errorf("%w found in PDF", ErrNoText)
	}
	return text, nil
}
