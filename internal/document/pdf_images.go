package document

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/fyerfyer/doc-pipeline/internal/batch"
	"github.com/fyerfyer/doc-pipeline/internal/resources"
)

// PDFImageExtractor 按页提取PDF内嵌图片
type PDFImageExtractor struct {
	opts extractorOptions
}

// NewPDFImageExtractor 创建PDF图片提取器
func NewPDFImageExtractor(opts ...ExtractorOption) *PDFImageExtractor {
	return &PDFImageExtractor{opts: newExtractorOptions(opts...)}
}

// Extract 每页一个单元，Payload.Blobs为该页图片，按对象号排序
func (e *PDFImageExtractor) Extract(ctx context.Context, path string) (*batch.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpenSource, err)
	}

	total, err := api.PageCount(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpenSource, filepath.Base(path), err)
	}
	if total == 0 {
		return &batch.Result{}, nil
	}

	plan := e.opts.plan(ctx, total, resources.IOBound)
	return e.opts.batcher.Run(ctx, plan, total, func(ctx context.Context, index int) (batch.Payload, error) {
		// pdfcpu会改写配置，每个单元使用独立的reader和配置
		conf := model.NewDefaultConfiguration()
		pages, err := api.ExtractImagesRaw(bytes.NewReader(data), []string{strconv.Itoa(index + 1)}, conf)
		if err != nil {
			return batch.Payload{}, fmt.Errorf("failed to extract images from page %d: %w", index+1, err)
		}

		var blobs []batch.Blob
		for _, images := range pages {
			objNrs := make([]int, 0, len(images))
			for nr := range images {
				objNrs = append(objNrs, nr)
			}
			slices.Sort(objNrs)

			for _, nr := range objNrs {
				img := images[nr]
				raw, err := io.ReadAll(img)
				if err != nil {
					return batch.Payload{}, fmt.Errorf("failed to read image %d on page %d: %w", nr, index+1, err)
				}
				blobs = append(blobs, batch.Blob{Ext: img.FileType, Data: raw})
			}
		}
		return batch.Payload{Blobs: blobs}, nil
	})
}
