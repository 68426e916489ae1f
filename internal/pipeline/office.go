package pipeline

import (
	"context"
	"fmt"

	"github.com/fyerfyer/doc-pipeline/internal/document"
)

// handleDocExtract 整篇文档输出为一个文本文件
func handleDocExtract(ctx context.Context, run *Run) error {
	text, err := document.NewDocParser().Parse(run.Source.Path)
	if err != nil {
		return err
	}

	run.Emit(Output{
		Name: run.Source.Stem() + "_text.txt",
		Data: []byte(text),
	})
	return nil
}

// handlePPTExtract 每张幻灯片一个文本文件
func handlePPTExtract(ctx context.Context, run *Run) error {
	extractor := document.NewPPTXExtractor(document.PPTXOptions{
		ExtractNotes:  run.Config.ExtractNotes,
		ExtractTables: run.Config.ExtractTables,
	}, run.ExtractorOptions()...)

	result, err := extractor.Extract(ctx, run.Source.Path)
	if err != nil {
		return err
	}
	run.recordFailures(result)

	stem := run.Source.Stem()
	for _, u := range result.Units {
		n := u.Index + 1
		run.Emit(Output{
			Name:      fmt.Sprintf("%s_slide_%d.txt", stem, n),
			Data:      []byte(u.Text),
			UnitIndex: n,
		})
	}
	run.Metadata["slides"] = fmt.Sprint(result.Total)
	return nil
}

// handleEmailExtract 邮件头、正文和附件列表输出为一个文本文件
func handleEmailExtract(ctx context.Context, run *Run) error {
	parser := document.NewEmailParser(document.EmailOptions{
		ExtractHeaders:     run.Config.ExtractHeaders,
		ExtractAttachments: run.Config.ExtractAttachments,
	})

	text, err := parser.Parse(run.Source.Path)
	if err != nil {
		return err
	}

	run.Emit(Output{
		Name: run.Source.Stem() + "_text.txt",
		Data: []byte(text),
	})
	return nil
}
