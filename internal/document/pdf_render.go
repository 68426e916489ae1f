package document

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"

	"github.com/fyerfyer/doc-pipeline/internal/batch"
	"github.com/fyerfyer/doc-pipeline/internal/resources"
)

const (
	// DefaultRenderDPI 默认渲染分辨率
	DefaultRenderDPI = 150
)

// PDFRenderer 将PDF每一页渲染为PNG
// 渲染属于CPU密集任务，使用进程池模式的计划
type PDFRenderer struct {
	opts     extractorOptions
	dpi      float64
	maxWidth int
}

// NewPDFRenderer 创建页面渲染器
// dpi<=0时使用默认值，maxWidth<=0表示不缩放
func NewPDFRenderer(dpi float64, maxWidth int, opts ...ExtractorOption) *PDFRenderer {
	if dpi <= 0 {
		dpi = DefaultRenderDPI
	}
	return &PDFRenderer{
		opts:     newExtractorOptions(opts...),
		dpi:      dpi,
		maxWidth: maxWidth,
	}
}

// Render 每页一个单元，Payload.Blobs只有一张PNG
func (r *PDFRenderer) Render(ctx context.Context, path string) (*batch.Result, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpenSource, filepath.Base(path), err)
	}
	total := doc.NumPage()
	doc.Close()

	if total == 0 {
		return &batch.Result{}, nil
	}

	plan := r.opts.plan(ctx, total, resources.CPUBound)
	return r.opts.batcher.Run(ctx, plan, total, func(ctx context.Context, index int) (batch.Payload, error) {
		// 每个worker持有自己的文档句柄，互不共享渲染状态
		doc, err := fitz.New(path)
		if err != nil {
			return batch.Payload{}, err
		}
		defer doc.Close()

		img, err := doc.ImageDPI(index, r.dpi)
		if err != nil {
			return batch.Payload{}, fmt.Errorf("failed to render page %d: %w", index+1, err)
		}

		var buf bytes.Buffer
		if r.maxWidth > 0 && img.Bounds().Dx() > r.maxWidth {
			err = imaging.Encode(&buf, imaging.Resize(img, r.maxWidth, 0, imaging.Lanczos), imaging.PNG)
		} else {
			err = imaging.Encode(&buf, img, imaging.PNG)
		}
		if err != nil {
			return batch.Payload{}, fmt.Errorf("failed to encode page %d: %w", index+1, err)
		}

		return batch.Payload{Blobs: []batch.Blob{{Ext: "png", Data: buf.Bytes()}}}, nil
	})
}
