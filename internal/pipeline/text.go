package pipeline

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/fyerfyer/doc-pipeline/internal/batch"
	"github.com/fyerfyer/doc-pipeline/internal/document"
	"github.com/fyerfyer/doc-pipeline/pkg/storage"
)

// 分块元数据键
const (
	metaChunkTag        = "extracted_chunk"
	metaDocument        = "document"
	metaChunkStart      = "chunk_start"
	metaChunkEnd        = "chunk_end"
	metaOriginalChunkID = "original_chunk_id"
)

// validateChunkConfig 分块大小和重叠的约束
func validateChunkConfig(cfg NodeConfig) error {
	if err := cfg.SplitterConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// handleTextChunk 提取整篇文本后按策略分块，每块一个文件
func handleTextChunk(ctx context.Context, run *Run) error {
	splitCfg := run.Config.SplitterConfig()

	text, err := documentText(ctx, run)
	if err != nil {
		return err
	}

	chunks, err := document.NewTextSplitter(splitCfg).Split(text)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		run.Logger().Warn("Document has no text to chunk")
	}

	stem := run.Source.Stem()
	for _, c := range chunks {
		run.Emit(Output{
			Name:      fmt.Sprintf("%s-%d.txt", stem, c.Index),
			Data:      []byte(c.Text),
			UnitIndex: c.Index + 1,
			Metadata: map[string]string{
				metaDocument:   run.Item.Name,
				metaChunkStart: strconv.Itoa(c.Start),
				metaChunkEnd:   strconv.Itoa(c.End),
			},
		})
	}
	run.Metadata["chunks"] = strconv.Itoa(len(chunks))
	run.Metadata["strategy"] = string(splitCfg.Strategy)
	return nil
}

// documentText 提取整篇文本
// PDF逐页提取，失败的页记入运行结果
func documentText(ctx context.Context, run *Run) (string, error) {
	if run.Source.Type == document.PDF {
		result, err := document.NewPDFExtractor(run.ExtractorOptions()...).ExtractPages(ctx, run.Source.Path)
		if result != nil {
			run.recordFailures(result)
		}
		if err != nil {
			return "", err
		}
		return document.PagesText(result)
	}

	parser, err := document.ParserFactory(run.Source.Path, run.ExtractorOptions()...)
	if err != nil {
		return "", err
	}
	return parser.Parse(run.Source.Path)
}

// handleChunkClean 清洗从输入文件提取出的所有分块
// 输入文件没有分块且本身是文本时，直接清洗输入文件
func handleChunkClean(ctx context.Context, run *Run) error {
	chunks, err := run.Storage().List(ctx, map[string]string{
		metaChunkTag:               "true",
		storage.MetaOriginalItemID: run.Item.ID,
	})
	if err != nil {
		return fmt.Errorf("failed to list chunks: %w", err)
	}

	if len(chunks) == 0 {
		if err := run.Source.Require(document.PlainText); err != nil {
			return fmt.Errorf("no chunks found for item %s: %w", run.Item.ID, err)
		}
		chunks = []storage.FileInfo{run.Item}
	}
	slices.SortStableFunc(chunks, compareChunks)

	cleaner := document.NewCleaner(run.Config.Cleaner, document.WithSpeller(run.speller))
	result, err := run.ForEach(ctx, len(chunks), func(ctx context.Context, index int) (batch.Payload, error) {
		rc, err := run.Storage().Get(ctx, chunks[index].ID)
		if err != nil {
			return batch.Payload{}, err
		}
		defer rc.Close()

		raw, err := io.ReadAll(rc)
		if err != nil {
			return batch.Payload{}, fmt.Errorf("failed to read chunk %s: %w", chunks[index].ID, err)
		}
		return batch.Payload{Text: cleaner.Clean(string(raw))}, nil
	})
	if err != nil {
		return err
	}

	for _, u := range result.Units {
		chunk := chunks[u.Index]
		stem := document.Source{Name: chunk.Name}.Stem()
		run.Emit(Output{
			Name:      stem + "-clean.txt",
			Data:      []byte(u.Text),
			UnitIndex: u.Index + 1,
			Metadata:  map[string]string{metaOriginalChunkID: chunk.ID},
		})
	}
	run.Metadata["chunks"] = strconv.Itoa(result.Total)
	return nil
}

// compareChunks 按分块序号排序，没有序号的按文件名
func compareChunks(a, b storage.FileInfo) int {
	ai, aerr := strconv.Atoi(a.Metadata[storage.MetaUnitIndex])
	bi, berr := strconv.Atoi(b.Metadata[storage.MetaUnitIndex])
	if aerr == nil && berr == nil && ai != bi {
		return cmp.Compare(ai, bi)
	}
	return cmp.Compare(a.Name, b.Name)
}
