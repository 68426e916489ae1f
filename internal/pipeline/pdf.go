package pipeline

import (
	"context"
	"fmt"

	"github.com/fyerfyer/doc-pipeline/internal/document"
)

// handlePDFExtract 每页一个文本文件，extract_images时追加每页的内嵌图片
func handlePDFExtract(ctx context.Context, run *Run) error {
	stem := run.Source.Stem()

	pages, err := document.NewPDFExtractor(run.ExtractorOptions()...).ExtractPages(ctx, run.Source.Path)
	if err != nil {
		return err
	}
	run.recordFailures(pages)

	for _, u := range pages.Units {
		n := u.Index + 1
		run.Emit(Output{
			Name:      fmt.Sprintf("%s_page_%d.txt", stem, n),
			Data:      []byte(u.Text),
			UnitIndex: n,
		})
	}
	run.Metadata["pages"] = fmt.Sprint(pages.Total)

	if !run.Config.ExtractImages {
		return nil
	}

	images, err := document.NewPDFImageExtractor(run.ExtractorOptions()...).Extract(ctx, run.Source.Path)
	if err != nil {
		return fmt.Errorf("failed to extract images: %w", err)
	}
	run.recordFailures(images)

	count := 0
	for _, u := range images.Units {
		n := u.Index + 1
		for k, blob := range u.Blobs {
			run.Emit(Output{
				Name:      fmt.Sprintf("%s_page_%d_img_%d.%s", stem, n, k+1, blob.Ext),
				Data:      blob.Data,
				UnitIndex: n,
			})
			count++
		}
	}
	run.Metadata["images"] = fmt.Sprint(count)
	return nil
}

// handlePDFToImage 每页渲染为一张PNG，文件名中的页码从0开始
func handlePDFToImage(ctx context.Context, run *Run) error {
	renderer := document.NewPDFRenderer(run.Config.DPI, run.Config.MaxImageWidth, run.ExtractorOptions()...)
	result, err := renderer.Render(ctx, run.Source.Path)
	if err != nil {
		return err
	}
	run.recordFailures(result)

	stem := run.Source.Stem()
	for _, u := range result.Units {
		for _, blob := range u.Blobs {
			run.Emit(Output{
				Name:      fmt.Sprintf("%s-%d.%s", stem, u.Index, blob.Ext),
				Data:      blob.Data,
				UnitIndex: u.Index + 1,
			})
		}
	}
	run.Metadata["pages"] = fmt.Sprint(result.Total)
	return nil
}
